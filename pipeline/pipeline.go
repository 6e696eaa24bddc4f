/*
	Package pipeline wires the label stores, classifier trainer, predictors,
	and prediction caches into a multi-lane pixel classification pipeline.

	The original operator-graph design with implicit dirty propagation is
	expressed here as an explicit dependency graph of computation nodes plus
	version counters: every mutable input bumps a counter, every cache
	records the versions it computed from, and reads lazily recompute on
	mismatch.  The one push edge is explicit too: edits to training inputs
	fan an invalidation out to the lane prediction caches, which defer the
	flush while frozen.  There are no hidden notification chains.
*/
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/twinj/uuid"

	"github.com/yutiansut/ilastik/classify"
	"github.com/yutiansut/ilastik/labelarray"
	"github.com/yutiansut/ilastik/pixel"
	"github.com/yutiansut/ilastik/predcache"
)

// Config carries the pipeline's external inputs that are fixed at
// construction.  HyperparametersPath and ModelPath are opaque handles
// passed through to factory implementations, not interpreted by the core.
type Config struct {
	Factory             classify.Factory
	HyperparametersPath string
	ModelPath           string

	// CacheBytes is the per-lane prediction cache size; 0 selects the
	// default.
	CacheBytes int
}

// Pipeline is the top-level orchestrator.  It owns all lane sub-pipelines
// and the shared classifier trainer.  Predictions start frozen: nothing is
// trained or computed until FreezePredictions is set false, matching
// interactive use where the GUI unfreezes once the user asks for live
// updates.
type Pipeline struct {
	id  string
	cfg Config

	mu         sync.RWMutex
	lanes      []*Lane
	labelNames []string
	labelCols  []Color
	pmapCols   []Color
	frozen     bool

	trainer  *classify.Trainer
	trainVer uint64 // bumps on any change to labels, images, or class count
}

// New returns an empty pipeline with predictions frozen.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("pipeline requires a classifier factory")
	}
	p := &Pipeline{
		id:      uuid.NewV4().String(),
		cfg:     cfg,
		frozen:  true,
		trainer: classify.NewTrainer(cfg.Factory),
	}
	pixel.Infof("created pixel classification pipeline %s with %s factory\n", p.id, cfg.Factory.Name())
	return p, nil
}

// ID returns the pipeline's unique id, used by the project serializer.
func (p *Pipeline) ID() string {
	return p.id
}

// Trainer exposes the classifier cache so a serializer can force in a
// pre-calculated classifier loaded from a project file.
func (p *Pipeline) Trainer() *classify.Trainer {
	return p.trainer
}

func (p *Pipeline) bumpTraining() {
	atomic.AddUint64(&p.trainVer, 1)
}

// invalidatePredictions marks every lane's prediction cache dirty after a
// change to the classifier's training inputs.  Frozen caches defer the flush
// until unfreeze, preserving stable reads while the user labels.  Must not be
// called with p.mu held.
func (p *Pipeline) invalidatePredictions() {
	for _, cache := range p.laneCaches() {
		cache.InvalidateAll()
	}
}

// laneCaches snapshots the current lane caches under the lock.  Lane fields
// are guarded by p.mu; callers that keep working after the unlock must hold
// snapshotted pointers, never the lanes themselves.
func (p *Pipeline) laneCaches() []*predcache.Cache {
	p.mu.RLock()
	defer p.mu.RUnlock()
	caches := make([]*predcache.Cache, 0, len(p.lanes))
	for _, lane := range p.lanes {
		if lane.cache != nil {
			caches = append(caches, lane.cache)
		}
	}
	return caches
}

// laneStores snapshots the current lane label stores under the lock.
func (p *Pipeline) laneStores() []*labelarray.Store {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stores := make([]*labelarray.Store, 0, len(p.lanes))
	for _, lane := range p.lanes {
		if lane.labels != nil {
			stores = append(stores, lane.labels)
		}
	}
	return stores
}

// --- classify.TrainingSource implementation --------------------------------

// TrainingVersion implements classify.TrainingSource.
func (p *Pipeline) TrainingVersion() uint64 {
	return atomic.LoadUint64(&p.trainVer)
}

// MaxLabel implements classify.TrainingSource.
func (p *Pipeline) MaxLabel() uint8 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return uint8(len(p.labelNames))
}

// GatherSamples implements classify.TrainingSource: it walks only the
// nonzero blocks of every lane's label store, so images without labeled
// blocks contribute nothing, and pairs each labeled voxel with the raw
// channel values at its coordinate.
func (p *Pipeline) GatherSamples(ctx context.Context) (*classify.SampleSet, error) {
	// Snapshot each ready lane's image and label store under the lock so a
	// concurrent SetInputImage cannot pull them out from under the gather.
	// The volume is immutable and the store has its own locks, so the
	// snapshotted pointers stay safe after the unlock; a lane mutated
	// mid-gather bumps the training version and stales this run's result.
	type laneInput struct {
		lane  *Lane
		image *pixel.Volume
		store *labelarray.Store
	}
	p.mu.RLock()
	inputs := make([]laneInput, 0, len(p.lanes))
	for _, lane := range p.lanes {
		if lane.image == nil || lane.labels == nil {
			continue
		}
		inputs = append(inputs, laneInput{lane, lane.image, lane.labels})
	}
	numClasses := len(p.labelNames)
	p.mu.RUnlock()

	samples := &classify.SampleSet{NumClasses: numClasses}
	for _, in := range inputs {
		in.lane.setState(Training)
		err := p.gatherLaneSamples(ctx, in.image, in.store, samples)
		in.lane.setState(Ready)
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func (p *Pipeline) gatherLaneSamples(ctx context.Context, image *pixel.Volume, store *labelarray.Store, samples *classify.SampleSet) error {
	labelSh := store.Shape()
	ci := labelSh.Index(pixel.ChannelAxis)
	for _, chunk := range store.NonzeroBlocks() {
		if err := ctx.Err(); err != nil {
			return err
		}
		roi := pixel.BlockROI(chunk, store.BlockShape(), labelSh)
		img, err := store.LabelImage(roi)
		if err != nil {
			return err
		}
		roi.Each(func(pt pixel.PointNd) {
			b := img.Data[img.Shape.Linearize(pt.Sub(roi.Offset))]
			if b == 0 {
				return
			}
			samples.Add(image.Features(dropAxis(pt, ci), nil), b)
		})
	}
	return nil
}

// dropAxis returns a copy of the point without the component at index i.
// A negative index copies unchanged.
func dropAxis(pt pixel.PointNd, i int) pixel.PointNd {
	if i < 0 {
		return pt.Duplicate()
	}
	out := make(pixel.PointNd, 0, len(pt)-1)
	for j, v := range pt {
		if j == i {
			continue
		}
		out = append(out, v)
	}
	return out
}

// --- Lane lifecycle ---------------------------------------------------------

// NumLanes returns the current lane count.
func (p *Pipeline) NumLanes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lanes)
}

// Lane returns the lane aggregate at an index.
func (p *Pipeline) Lane(index int) (*Lane, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.laneLocked(index)
}

func (p *Pipeline) laneLocked(index int) (*Lane, error) {
	if index < 0 || index >= len(p.lanes) {
		return nil, fmt.Errorf("lane index %d out of range (%d lanes)", index, len(p.lanes))
	}
	return p.lanes[index], nil
}

// AddLane appends a new, unready lane.  The index must equal the current
// lane count: image lanes are append-only.
func (p *Pipeline) AddLane(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index != len(p.lanes) {
		return fmt.Errorf("image lanes must be appended: index %d with %d lanes", index, len(p.lanes))
	}
	p.lanes = append(p.lanes, &Lane{bookmarks: []Bookmark{}})
	pixel.Infof("pipeline %s: added lane %d\n", p.id, index)
	return nil
}

// RemoveLane removes the lane at an index.  Because a lane is a single
// aggregate, its image, labels, bookmarks, and caches leave together and
// the remaining lanes stay in index-sync.  finalCount is the expected lane
// count after removal.
func (p *Pipeline) RemoveLane(index, finalCount int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.lanes) {
		p.mu.Unlock()
		return fmt.Errorf("lane index %d out of range (%d lanes)", index, len(p.lanes))
	}
	if finalCount != len(p.lanes)-1 {
		p.mu.Unlock()
		return fmt.Errorf("removing lane %d of %d cannot yield %d lanes", index, len(p.lanes), finalCount)
	}
	p.lanes = append(p.lanes[:index], p.lanes[index+1:]...)
	remaining := len(p.lanes)
	p.mu.Unlock()

	p.bumpTraining()
	p.invalidatePredictions()
	pixel.Infof("pipeline %s: removed lane %d, %d remain\n", p.id, index, remaining)
	return nil
}

// AppendLane adds a lane and sets its raw image in one step, rolling the
// lane back if the image violates cross-lane constraints.  The lane count
// is unchanged on failure.
func (p *Pipeline) AppendLane(vol *pixel.Volume) (int, error) {
	index := p.NumLanes()
	if err := p.AddLane(index); err != nil {
		return 0, err
	}
	if err := p.SetInputImage(index, vol); err != nil {
		p.mu.Lock()
		p.lanes = p.lanes[:len(p.lanes)-1]
		p.mu.Unlock()
		return 0, err
	}
	return index, nil
}

// CheckConstraints verifies the lane's image against all other ready
// lanes: same channel count and same dimensionality, ignoring a time axis.
func (p *Pipeline) CheckConstraints(laneIndex int) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	lane, err := p.laneLocked(laneIndex)
	if err != nil {
		return err
	}
	shape, ok := lane.ImageShape()
	if !ok {
		return nil
	}
	return p.checkConstraintsLocked(laneIndex, shape)
}

func (p *Pipeline) checkConstraintsLocked(laneIndex int, shape pixel.TaggedShape) error {
	for i, other := range p.lanes {
		if i == laneIndex || !other.Ready() {
			continue
		}
		valid := other.image.Shape
		if shape.Channels() != valid.Channels() {
			return &pixel.DatasetConstraintError{
				Component: "Pixel Classification",
				Reason: fmt.Sprintf("all input images must have the same number of channels: new image has %d channel(s), but other images have %d channel(s)",
					shape.Channels(), valid.Channels()),
			}
		}
		if shape.Drop(pixel.TimeAxis).NumDims() != valid.Drop(pixel.TimeAxis).NumDims() {
			return &pixel.DatasetConstraintError{
				Component: "Pixel Classification",
				Reason: fmt.Sprintf("all input images must have the same dimensionality: new image has %d dimensions (including channel), but other images have %d dimensions",
					shape.Drop(pixel.TimeAxis).NumDims(), valid.Drop(pixel.TimeAxis).NumDims()),
			}
		}
		break
	}
	return nil
}

// SetInputImage installs or removes a lane's raw image.  A nil volume makes
// the lane unready and shrinks all its dependent outputs to empty in
// lockstep.  A non-nil volume is constraint-checked, block shapes are
// planned from it, and the lane's label store and prediction cache are set
// up.  A same-shaped replacement image keeps the existing labels.
func (p *Pipeline) SetInputImage(laneIndex int, vol *pixel.Volume) error {
	p.mu.Lock()
	err := p.setInputImageLocked(laneIndex, vol)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.bumpTraining()
	p.invalidatePredictions()
	return nil
}

func (p *Pipeline) setInputImageLocked(laneIndex int, vol *pixel.Volume) error {
	lane, err := p.laneLocked(laneIndex)
	if err != nil {
		return err
	}
	if vol == nil {
		lane.image = nil
		lane.labels = nil
		lane.cache = nil
		atomic.AddUint64(&lane.imageVersion, 1)
		lane.setState(Unready)
		pixel.Infof("pipeline %s: lane %d image removed\n", p.id, laneIndex)
		return nil
	}
	if err := p.checkConstraintsLocked(laneIndex, vol.Shape); err != nil {
		return err
	}

	labelSh := labelShape(vol.Shape)
	trainShape, err := classify.TrainingBlockShape(labelSh, p.cfg.Factory)
	if err != nil {
		return err
	}
	bx, by, bz, err := classify.InferenceBlockShapes(vol.Shape, p.cfg.Factory)
	if err != nil {
		return err
	}

	lane.image = vol
	atomic.AddUint64(&lane.imageVersion, 1)
	lane.trainShape = trainShape
	lane.inferShapes = [3]pixel.BlockShape{bx, by, bz}

	// Keep labels across a same-shaped image swap; otherwise start fresh.
	if lane.labels == nil || !lane.labels.Shape().Equals(labelSh) || !lane.labels.BlockShape().Equals(trainShape) {
		store, err := labelarray.NewStore(labelSh, trainShape)
		if err != nil {
			return err
		}
		lane.labels = store
	}

	cache, err := p.newLaneCache(laneIndex, lane, vol.Shape)
	if err != nil {
		return err
	}
	cache.SetFrozen(p.frozen)
	lane.cache = cache
	lane.setState(Ready)
	pixel.Infof("pipeline %s: lane %d ready with shape %s, training blocks %s\n",
		p.id, laneIndex, vol.Shape, trainShape)
	return nil
}

func (p *Pipeline) newLaneCache(laneIndex int, lane *Lane, imageSh pixel.TaggedShape) (*predcache.Cache, error) {
	ci := imageSh.Index(pixel.ChannelAxis)
	spatial := imageSh.Drop(pixel.ChannelAxis)
	var spatialBlocks [3]pixel.BlockShape
	for i, bs := range lane.inferShapes {
		spatialBlocks[i] = pixel.BlockShape(dropAxis(pixel.PointNd(bs), ci))
	}
	compute := func(ctx context.Context, roi pixel.ROI) (*pixel.Volume, error) {
		p.mu.RLock()
		img := lane.image
		frozen := p.frozen
		p.mu.RUnlock()
		if img == nil {
			return nil, fmt.Errorf("lane %d is not ready", laneIndex)
		}
		clf, _, err := p.trainer.Classifier(ctx, p, frozen)
		if err != nil {
			return nil, err
		}
		return classify.Predict(img, roi, clf, p.predictClasses())
	}
	versions := func() (uint64, uint64) {
		return p.trainer.Generation(), lane.ImageVersion()
	}
	return predcache.New(fmt.Sprintf("lane %d", laneIndex), spatial, spatialBlocks,
		compute, versions, p.cfg.CacheBytes)
}

// --- Label classes and edits ------------------------------------------------

// NumClasses returns the number of label classes.
func (p *Pipeline) NumClasses() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.labelNames)
}

// predictClasses is the channel count for probability outputs, at least 1
// so consumers always get a shape-correct volume.
func (p *Pipeline) predictClasses() int {
	if n := p.NumClasses(); n > 0 {
		return n
	}
	return 1
}

// LabelNames returns a copy of the class display names.
func (p *Pipeline) LabelNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.labelNames...)
}

// LabelColors returns a copy of the class label colors.
func (p *Pipeline) LabelColors() []Color {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Color(nil), p.labelCols...)
}

// PmapColors returns a copy of the class probability-map colors.
func (p *Pipeline) PmapColors() []Color {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Color(nil), p.pmapCols...)
}

// SetLabelClass sets the name and colors of one class id, growing the class
// list if needed.  Used by GUIs and the project serializer.
func (p *Pipeline) SetLabelClass(id int, name string, labelColor, pmapColor Color) error {
	if id < 1 || id > int(pixel.MaxClassID) {
		return fmt.Errorf("label class id %d out of range 1..%d", id, pixel.MaxClassID)
	}
	p.ensureClasses(id)
	p.mu.Lock()
	p.labelNames[id-1] = name
	p.labelCols[id-1] = labelColor
	p.pmapCols[id-1] = pmapColor
	p.mu.Unlock()
	return nil
}

// ensureClasses grows the class list to at least n entries, synthesizing
// names and default-table colors for the gap.
func (p *Pipeline) ensureClasses(n int) {
	p.mu.Lock()
	grew := false
	for len(p.labelNames) < n {
		id := len(p.labelNames) + 1
		p.labelNames = append(p.labelNames, fmt.Sprintf("Label %d", id))
		p.labelCols = append(p.labelCols, defaultColor(id))
		p.pmapCols = append(p.pmapCols, defaultColor(id))
		grew = true
	}
	p.mu.Unlock()
	if grew {
		p.bumpTraining()
		p.invalidatePredictions()
	}
}

// laneStore returns a ready lane's label store.
func (p *Pipeline) laneStore(laneIndex int) (*labelarray.Store, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	lane, err := p.laneLocked(laneIndex)
	if err != nil {
		return nil, err
	}
	if lane.labels == nil {
		return nil, fmt.Errorf("lane %d has no image yet", laneIndex)
	}
	return lane.labels, nil
}

// SetLabel writes a single voxel label on one lane.  Painting with a class
// id beyond the current class count creates the missing classes, so a
// first stroke with class 2 yields two classes.  Label writes never block
// on a pending training or prediction computation.
func (p *Pipeline) SetLabel(laneIndex int, coord pixel.PointNd, value pixel.LabelValue) error {
	store, err := p.laneStore(laneIndex)
	if err != nil {
		return err
	}
	if value.State == pixel.Class {
		p.ensureClasses(int(value.ID))
	}
	if err := store.SetLabel(coord, value); err != nil {
		return err
	}
	p.bumpTraining()
	p.invalidatePredictions()
	return nil
}

// ImportLabels bulk-loads an external label volume into a lane.  If the
// volume's highest label id exceeds the current class count, names and
// colors are synthesized for the gap.
func (p *Pipeline) ImportLabels(laneIndex int, vol *pixel.LabelVolume) error {
	store, err := p.laneStore(laneIndex)
	if err != nil {
		return err
	}
	newMax, err := store.Ingest(vol)
	if err != nil {
		return err
	}
	if int(newMax) > p.NumClasses() {
		p.ensureClasses(int(newMax))
	}
	p.bumpTraining()
	p.invalidatePredictions()
	pixel.Infof("pipeline %s: imported labels into lane %d, max label %d\n", p.id, laneIndex, newMax)
	return nil
}

// MergeLabels reassigns all voxels of fromID to intoID across every lane
// and removes the fromID class slot, shifting higher ids down to keep
// class ids contiguous.
func (p *Pipeline) MergeLabels(fromID, intoID uint8) error {
	n := p.NumClasses()
	if int(fromID) > n || int(intoID) > n || fromID == 0 || intoID == 0 {
		return fmt.Errorf("merge of label %d into %d outside 1..%d", fromID, intoID, n)
	}
	if fromID == intoID {
		return fmt.Errorf("cannot merge label %d into itself", fromID)
	}

	for _, store := range p.laneStores() {
		if err := store.MergeLabels(fromID, intoID); err != nil {
			return err
		}
		if err := store.DeleteLabel(fromID); err != nil {
			return err
		}
	}

	p.mu.Lock()
	i := int(fromID) - 1
	p.labelNames = append(p.labelNames[:i], p.labelNames[i+1:]...)
	p.labelCols = append(p.labelCols[:i], p.labelCols[i+1:]...)
	p.pmapCols = append(p.pmapCols[:i], p.pmapCols[i+1:]...)
	p.mu.Unlock()
	p.bumpTraining()
	p.invalidatePredictions()
	pixel.Infof("pipeline %s: merged label %d into %d\n", p.id, fromID, intoID)
	return nil
}

// ClearLabel resets all voxels of one class id to unset on every lane,
// keeping the class slot.
func (p *Pipeline) ClearLabel(id uint8) error {
	if id == 0 || int(id) > p.NumClasses() {
		return fmt.Errorf("clear of label %d outside 1..%d", id, p.NumClasses())
	}
	for _, store := range p.laneStores() {
		if err := store.ClearLabel(id); err != nil {
			return err
		}
	}
	p.bumpTraining()
	p.invalidatePredictions()
	return nil
}

// SetBookmarks replaces a lane's bookmark list.
func (p *Pipeline) SetBookmarks(laneIndex int, bookmarks []Bookmark) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	lane, err := p.laneLocked(laneIndex)
	if err != nil {
		return err
	}
	lane.setBookmarks(bookmarks)
	return nil
}

// --- Freeze -----------------------------------------------------------------

// FreezePredictions returns the freeze flag.
func (p *Pipeline) FreezePredictions() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// SetFreezePredictions toggles the freeze flag.  While frozen, classifier
// retraining and prediction refresh are suppressed and stale cached values
// are served for UI stability; unfreezing lets the next read lazily
// retrain and recompute whatever the version counters say is out of date.
func (p *Pipeline) SetFreezePredictions(frozen bool) {
	p.mu.Lock()
	p.frozen = frozen
	caches := make([]*predcache.Cache, 0, len(p.lanes))
	for _, lane := range p.lanes {
		if lane.cache != nil {
			caches = append(caches, lane.cache)
		}
	}
	p.mu.Unlock()
	for _, cache := range caches {
		cache.SetFrozen(frozen)
	}
	pixel.Infof("pipeline %s: freeze predictions = %t\n", p.id, frozen)
}

// --- Outputs ----------------------------------------------------------------

// PredictionProbabilities computes probabilities for a spatial region of a
// lane through the cacheless path, fresh every call.  This is the headless
// batch surface.
func (p *Pipeline) PredictionProbabilities(ctx context.Context, laneIndex int, roi pixel.ROI) (*pixel.Volume, error) {
	p.mu.RLock()
	lane, err := p.laneLocked(laneIndex)
	var img *pixel.Volume
	var frozen bool
	if err == nil {
		img = lane.image
		frozen = p.frozen
	}
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("lane %d is not ready", laneIndex)
	}
	clf, _, err := p.trainer.Classifier(ctx, p, frozen)
	if err != nil {
		return nil, err
	}
	lane.setState(Predicting)
	defer lane.setState(Ready)
	return classify.Predict(img, roi, clf, p.predictClasses())
}

// CachedPredictionProbabilities returns one cached probability block for
// interactive consumption, recomputing only what the version stamps say is
// invalid.
func (p *Pipeline) CachedPredictionProbabilities(ctx context.Context, laneIndex int, axis predcache.SliceAxis, chunk pixel.ChunkPointNd) (*pixel.Volume, error) {
	cache, err := p.laneCache(laneIndex)
	if err != nil {
		return nil, err
	}
	return cache.Get(ctx, axis, chunk)
}

// PredictionProbabilityChannel returns a single class's probability channel
// of a cached block, independently sliceable by GUI layers.
func (p *Pipeline) PredictionProbabilityChannel(ctx context.Context, laneIndex, class int, axis predcache.SliceAxis, chunk pixel.ChunkPointNd) (*pixel.Volume, error) {
	cache, err := p.laneCache(laneIndex)
	if err != nil {
		return nil, err
	}
	return cache.Channel(ctx, class, axis, chunk)
}

func (p *Pipeline) laneCache(laneIndex int) (*predcache.Cache, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	lane, err := p.laneLocked(laneIndex)
	if err != nil {
		return nil, err
	}
	if lane.cache == nil {
		return nil, fmt.Errorf("lane %d is not ready", laneIndex)
	}
	return lane.cache, nil
}

// LabelImage assembles a lane's stored labels over a region.
func (p *Pipeline) LabelImage(laneIndex int, roi pixel.ROI) (*pixel.LabelVolume, error) {
	store, err := p.laneStore(laneIndex)
	if err != nil {
		return nil, err
	}
	return store.LabelImage(roi)
}

// NonzeroLabelBlocks returns the labeled block indices of one lane.
func (p *Pipeline) NonzeroLabelBlocks(laneIndex int) ([]pixel.ChunkPointNd, error) {
	store, err := p.laneStore(laneIndex)
	if err != nil {
		return nil, err
	}
	return store.NonzeroBlocks(), nil
}
