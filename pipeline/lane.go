package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/yutiansut/ilastik/labelarray"
	"github.com/yutiansut/ilastik/pixel"
	"github.com/yutiansut/ilastik/predcache"
)

// LaneState tracks one lane's position in its lifecycle:
// Unready → Ready ⇄ (Training/Predicting).
type LaneState int32

const (
	Unready LaneState = iota
	Ready
	Training
	Predicting
)

func (s LaneState) String() string {
	switch s {
	case Unready:
		return "unready"
	case Ready:
		return "ready"
	case Training:
		return "training"
	case Predicting:
		return "predicting"
	default:
		return "unknown"
	}
}

// Bookmark is GUI-persisted per-lane metadata the core stores but does not
// interpret.
type Bookmark struct {
	Coord pixel.PointNd
	Note  string
}

// Color is an RGB triple for label and probability-map rendering.
type Color [3]uint8

// Lane aggregates everything belonging to one image: the raw input, its
// label store, bookmarks, planned block shapes, and the per-lane prediction
// cache.  A single aggregate insert/remove keeps all of these in index-sync
// by construction, instead of synchronizing parallel containers.
type Lane struct {
	image        *pixel.Volume
	imageVersion uint64
	labels       *labelarray.Store

	bkMu      sync.RWMutex
	bookmarks []Bookmark

	trainShape  pixel.BlockShape
	inferShapes [3]pixel.BlockShape // full-rank planner output, x/y/z-sliced

	cache *predcache.Cache
	state int32 // LaneState, accessed atomically
}

// State returns the lane's current lifecycle state.
func (l *Lane) State() LaneState {
	return LaneState(atomic.LoadInt32(&l.state))
}

func (l *Lane) setState(s LaneState) {
	old := LaneState(atomic.SwapInt32(&l.state, int32(s)))
	if old != s {
		pixel.Debugf("lane state %s -> %s\n", old, s)
	}
}

// Ready reports whether the lane has a raw image.
func (l *Lane) Ready() bool {
	return l.image != nil
}

// ImageShape returns the raw image's tagged shape; the second return is
// false for unready lanes.
func (l *Lane) ImageShape() (pixel.TaggedShape, bool) {
	if l.image == nil {
		return pixel.TaggedShape{}, false
	}
	return l.image.Shape, true
}

// ImageVersion bumps whenever the lane's raw image changes.
func (l *Lane) ImageVersion() uint64 {
	return atomic.LoadUint64(&l.imageVersion)
}

// Labels returns the lane's label store, nil while unready.
func (l *Lane) Labels() *labelarray.Store {
	return l.labels
}

// Bookmarks returns a copy of the lane's bookmark list.
func (l *Lane) Bookmarks() []Bookmark {
	l.bkMu.RLock()
	defer l.bkMu.RUnlock()
	dup := make([]Bookmark, len(l.bookmarks))
	copy(dup, l.bookmarks)
	return dup
}

func (l *Lane) setBookmarks(bookmarks []Bookmark) {
	l.bkMu.Lock()
	l.bookmarks = append([]Bookmark(nil), bookmarks...)
	l.bkMu.Unlock()
}

// labelShape derives the label-store shape from an image shape: labels are
// per-channel-combined, so the channel extent collapses to 1.
func labelShape(image pixel.TaggedShape) pixel.TaggedShape {
	if image.Index(pixel.ChannelAxis) < 0 {
		return image
	}
	return image.With(pixel.ChannelAxis, 1)
}
