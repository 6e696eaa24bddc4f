/*
	Package labelarray implements the compressed, block-addressable store for
	sparse user-painted voxel labels.  Blocks holding only unset voxels are
	never materialized, so sparse labeling costs near-zero memory.  Each
	mutation bumps a version counter that downstream caches compare against.
*/
package labelarray

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yutiansut/ilastik/pixel"
)

// Store holds the labels of a single lane as compressed blocks keyed by
// chunk coordinates.  Point writes never block on bulk operations longer
// than a single block rewrite; merge/clear/ingest are serialized against
// each other so two bulk rewrites can never interleave.
type Store struct {
	shape      pixel.TaggedShape
	blockShape pixel.BlockShape

	mu       sync.RWMutex
	blocks   map[pixel.BlockKey][]byte // serialized per-block label bytes
	setCount map[pixel.BlockKey]int64  // labeled voxels per materialized block

	bulkMu  sync.Mutex // serializes ingest/merge/clear
	version uint64
}

// NewStore returns an empty store for the given label shape and block
// shape.  The shape is the lane's image shape with the channel extent
// forced to 1; the block shape comes from the planner and is fixed for the
// lifetime of the lane's setup.
func NewStore(shape pixel.TaggedShape, blockShape pixel.BlockShape) (*Store, error) {
	if shape.NumDims() != len(blockShape) {
		return nil, fmt.Errorf("shape %s and block shape %s differ in rank", shape, blockShape)
	}
	for _, e := range blockShape {
		if e < 1 {
			return nil, fmt.Errorf("invalid block shape %s", blockShape)
		}
	}
	return &Store{
		shape:      shape,
		blockShape: blockShape,
		blocks:     make(map[pixel.BlockKey][]byte),
		setCount:   make(map[pixel.BlockKey]int64),
	}, nil
}

// Shape returns the declared label shape.
func (s *Store) Shape() pixel.TaggedShape {
	return s.shape
}

// BlockShape returns the fixed per-lane block shape.
func (s *Store) BlockShape() pixel.BlockShape {
	return pixel.BlockShape(pixel.PointNd(s.blockShape).Duplicate())
}

// Version returns a counter that increases with every mutation of labeled
// voxels.  Caches compare it against the version they computed from.
func (s *Store) Version() uint64 {
	return atomic.LoadUint64(&s.version)
}

func (s *Store) bumpVersion() {
	atomic.AddUint64(&s.version, 1)
}

// blockVoxels is the full (unclipped) number of voxels in one block.
func (s *Store) blockVoxels() int64 {
	return pixel.PointNd(s.blockShape).Prod()
}

// localIndex returns the row-major index of a voxel within its block.
func (s *Store) localIndex(p pixel.PointNd) int64 {
	local := p.PointInChunk(s.blockShape)
	var idx int64
	stride := int64(1)
	for i := len(local) - 1; i >= 0; i-- {
		idx += int64(local[i]) * stride
		stride *= int64(s.blockShape[i])
	}
	return idx
}

func (s *Store) decodeBlock(key pixel.BlockKey) ([]uint8, error) {
	serialization, found := s.blocks[key]
	if !found {
		return make([]uint8, s.blockVoxels()), nil
	}
	data, _, err := pixel.DeserializeData(serialization, true)
	if err != nil {
		return nil, fmt.Errorf("corrupt label block %v: %v", keyString(key), err)
	}
	return data, nil
}

func (s *Store) encodeBlock(key pixel.BlockKey, data []uint8, count int64) error {
	if count == 0 {
		delete(s.blocks, key)
		delete(s.setCount, key)
		return nil
	}
	serialization, err := pixel.SerializeData(data, pixel.DefaultCompression, pixel.CRC32)
	if err != nil {
		return err
	}
	s.blocks[key] = serialization
	s.setCount[key] = count
	return nil
}

func keyString(key pixel.BlockKey) string {
	if c, err := key.ChunkPoint(); err == nil {
		return c.String()
	}
	return fmt.Sprintf("%x", string(key))
}

// SetLabel writes a single voxel.  An Unset value is a no-op, Erased clears
// any previous label, and a Class value sets its id.  The containing block
// becomes dirty for all dependents via the version counter.
func (s *Store) SetLabel(coord pixel.PointNd, value pixel.LabelValue) error {
	if !s.shape.Contains(coord) {
		return &pixel.RangeError{Coord: coord.Duplicate(), Shape: s.shape}
	}
	if value.State == pixel.Unset {
		return nil
	}
	var b uint8
	if value.State == pixel.Class {
		if value.ID == 0 || value.ID > pixel.MaxClassID {
			return fmt.Errorf("label class id %d out of range 1..%d", value.ID, pixel.MaxClassID)
		}
		b = value.ID
	}
	key := coord.Chunk(s.blockShape).Key()
	idx := s.localIndex(coord)

	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.decodeBlock(key)
	if err != nil {
		return err
	}
	old := data[idx]
	if old == b {
		return nil
	}
	data[idx] = b
	count := s.setCount[key]
	if old == 0 {
		count++
	} else if b == 0 {
		count--
	}
	if err := s.encodeBlock(key, data, count); err != nil {
		return err
	}
	s.bumpVersion()
	return nil
}

// Get returns the label value at a voxel.  Voxels in non-materialized
// blocks are unset.
func (s *Store) Get(coord pixel.PointNd) (pixel.LabelValue, error) {
	if !s.shape.Contains(coord) {
		return pixel.UnsetLabel, &pixel.RangeError{Coord: coord.Duplicate(), Shape: s.shape}
	}
	key := coord.Chunk(s.blockShape).Key()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, found := s.blocks[key]; !found {
		return pixel.UnsetLabel, nil
	}
	data, err := s.decodeBlock(key)
	if err != nil {
		return pixel.UnsetLabel, err
	}
	return pixel.DecodeStoredLabel(data[s.localIndex(coord)]), nil
}

// Ingest bulk-loads an externally supplied label volume.  Zero bytes leave
// existing labels untouched, the legacy eraser value (100) erases, and any
// other byte sets that class id.  Class ids above pixel.MaxClassID are
// rejected before any block is touched, matching the SetLabel bound.
// Returns the highest class id seen in the input so callers can grow their
// label class list.
func (s *Store) Ingest(vol *pixel.LabelVolume) (maxLabel uint8, err error) {
	if !vol.Shape.Equals(s.shape) {
		return 0, fmt.Errorf("ingest volume shape %s does not match label shape %s", vol.Shape, s.shape)
	}
	for _, raw := range vol.Data {
		if pixel.NormalizeIngest(raw) > pixel.MaxClassID {
			return 0, fmt.Errorf("ingest volume has out-of-range label %d (max class id %d)", raw, pixel.MaxClassID)
		}
	}
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()

	changed := false
	for _, chunk := range pixel.BlocksInShape(s.shape, s.blockShape) {
		roi := pixel.BlockROI(chunk, s.blockShape, s.shape)
		key := chunk.Key()

		s.mu.Lock()
		data, derr := s.decodeBlock(key)
		if derr != nil {
			s.mu.Unlock()
			return maxLabel, derr
		}
		count := s.setCount[key]
		blockChanged := false
		roi.Each(func(p pixel.PointNd) {
			raw := vol.Data[vol.Shape.Linearize(p)]
			if raw == 0 {
				return
			}
			b := pixel.NormalizeIngest(raw)
			if b > maxLabel {
				maxLabel = b
			}
			idx := s.localIndex(p)
			old := data[idx]
			if old == b {
				return
			}
			data[idx] = b
			if old == 0 {
				count++
			} else if b == 0 {
				count--
			}
			blockChanged = true
		})
		if blockChanged {
			if err = s.encodeBlock(key, data, count); err != nil {
				s.mu.Unlock()
				return maxLabel, err
			}
			changed = true
		}
		s.mu.Unlock()
	}
	if changed {
		s.bumpVersion()
	}
	return maxLabel, nil
}

// MergeLabels rewrites every voxel holding fromID to intoID.  Readers see
// either the fully-old or fully-new state of each block, never a partial
// merge within one block.  Concurrent merges and clears are serialized.
func (s *Store) MergeLabels(fromID, intoID uint8) error {
	if fromID == 0 || intoID == 0 {
		return fmt.Errorf("cannot merge with unset label (from %d into %d)", fromID, intoID)
	}
	return s.rewrite(fromID, intoID)
}

// ClearLabel rewrites every voxel holding id back to unset.  Idempotent.
func (s *Store) ClearLabel(id uint8) error {
	if id == 0 {
		return fmt.Errorf("cannot clear the unset label")
	}
	return s.rewrite(id, 0)
}

// DeleteLabel removes a class id slot: voxels holding id become unset and
// every id above it shifts down by one, keeping class ids contiguous.
func (s *Store) DeleteLabel(id uint8) error {
	if id == 0 {
		return fmt.Errorf("cannot delete the unset label")
	}
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()

	s.mu.RLock()
	keys := make([]pixel.BlockKey, 0, len(s.blocks))
	for key := range s.blocks {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	changed := false
	for _, key := range keys {
		s.mu.Lock()
		data, err := s.decodeBlock(key)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		count := s.setCount[key]
		blockChanged := false
		for i, b := range data {
			switch {
			case b == id:
				data[i] = 0
				count--
				blockChanged = true
			case b > id && b != 0:
				data[i] = b - 1
				blockChanged = true
			}
		}
		if blockChanged {
			if err := s.encodeBlock(key, data, count); err != nil {
				s.mu.Unlock()
				return err
			}
			changed = true
		}
		s.mu.Unlock()
	}
	if changed {
		s.bumpVersion()
	}
	return nil
}

// rewrite replaces all from bytes with to bytes across all blocks, one
// block at a time under the write lock.
func (s *Store) rewrite(from, to uint8) error {
	s.bulkMu.Lock()
	defer s.bulkMu.Unlock()

	s.mu.RLock()
	keys := make([]pixel.BlockKey, 0, len(s.blocks))
	for key := range s.blocks {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	changed := false
	for _, key := range keys {
		s.mu.Lock()
		data, err := s.decodeBlock(key)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		count := s.setCount[key]
		blockChanged := false
		for i, b := range data {
			if b != from {
				continue
			}
			data[i] = to
			if to == 0 {
				count--
			}
			blockChanged = true
		}
		if blockChanged {
			if err := s.encodeBlock(key, data, count); err != nil {
				s.mu.Unlock()
				return err
			}
			changed = true
		}
		s.mu.Unlock()
	}
	if changed {
		s.bumpVersion()
	}
	return nil
}

// NonzeroBlocks returns the chunk points of all blocks containing at least
// one labeled voxel, in key-sorted order.  The trainer uses this to avoid
// scanning unlabeled regions.
func (s *Store) NonzeroBlocks() []pixel.ChunkPointNd {
	s.mu.RLock()
	keys := make([]string, 0, len(s.blocks))
	for key, count := range s.setCount {
		if count > 0 {
			keys = append(keys, string(key))
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	chunks := make([]pixel.ChunkPointNd, 0, len(keys))
	for _, key := range keys {
		chunk, err := pixel.BlockKey(key).ChunkPoint()
		if err != nil {
			pixel.Errorf("skipping malformed block key in label store: %v\n", err)
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// ReadBlock returns a copy of the decoded label bytes of one block plus the
// in-shape region it covers.  Unmaterialized blocks read as all unset.
func (s *Store) ReadBlock(chunk pixel.ChunkPointNd) ([]uint8, pixel.ROI, error) {
	roi := pixel.BlockROI(chunk, s.blockShape, s.shape)

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.decodeBlock(chunk.Key())
	if err != nil {
		return nil, roi, err
	}
	return data, roi, nil
}

// WriteBlock installs the decoded label bytes of one block wholesale,
// replacing any existing content.  Used by the project serializer when
// loading saved label sets; interactive edits go through SetLabel.
func (s *Store) WriteBlock(chunk pixel.ChunkPointNd, data []uint8) error {
	if int64(len(data)) != s.blockVoxels() {
		return fmt.Errorf("block %s has %d voxels, got %d bytes", chunk, s.blockVoxels(), len(data))
	}
	var count int64
	for _, b := range data {
		if b != 0 {
			count++
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encodeBlock(chunk.Key(), append([]uint8(nil), data...), count); err != nil {
		return err
	}
	s.bumpVersion()
	return nil
}

// LabelImage assembles the stored labels over a region into a dense label
// volume, for the GUI label-image output.
func (s *Store) LabelImage(roi pixel.ROI) (*pixel.LabelVolume, error) {
	roi = roi.Clip(s.shape)
	shape := s.shape
	for i, ext := range roi.Size {
		shape = shape.With(shape.Keys()[i], ext)
	}
	out := pixel.NewLabelVolume(shape)

	s.mu.RLock()
	defer s.mu.RUnlock()
	decoded := make(map[pixel.BlockKey][]uint8)
	var err error
	roi.Each(func(p pixel.PointNd) {
		if err != nil {
			return
		}
		key := p.Chunk(s.blockShape).Key()
		data, found := decoded[key]
		if !found {
			if _, materialized := s.blocks[key]; !materialized {
				decoded[key] = nil
				return
			}
			if data, err = s.decodeBlock(key); err != nil {
				return
			}
			decoded[key] = data
		}
		if data == nil {
			return
		}
		out.Data[out.Shape.Linearize(p.Sub(roi.Offset))] = data[s.localIndex(p)]
	})
	return out, err
}

// NumLabeledVoxels returns the total count of labeled voxels across all
// blocks.
func (s *Store) NumLabeledVoxels() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, count := range s.setCount {
		total += count
	}
	return total
}
