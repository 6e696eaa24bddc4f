/*
	Package predcache implements the sliced, blocked probability cache that
	feeds interactive consumers.  Each lane owns three sub-caches tiled thin
	along x, y, and z so a 2D cross-section pull touches few blocks.  Cached
	blocks carry the classifier generation and image version they were
	computed from; reads compare those stamps against the current upstream
	versions and recompute on mismatch, unless the cache is frozen, in which
	case stale blocks are intentionally served to keep the GUI stable while
	the user labels.
*/
package predcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/DmitriyVTitov/size"
	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/yutiansut/ilastik/pixel"
)

// SliceAxis selects one of the three sliced sub-caches.
type SliceAxis uint8

const (
	SlicedX SliceAxis = iota
	SlicedY
	SlicedZ
)

func (a SliceAxis) String() string {
	switch a {
	case SlicedX:
		return "x-sliced"
	case SlicedY:
		return "y-sliced"
	case SlicedZ:
		return "z-sliced"
	default:
		return "unknown"
	}
}

// DefaultCacheBytes is the per-lane freecache size if none is configured.
const DefaultCacheBytes = 64 * pixel.Mega

// ComputeFunc computes a probability block for a spatial region, using the
// currently cached classifier.
type ComputeFunc func(ctx context.Context, roi pixel.ROI) (*pixel.Volume, error)

// VersionFunc reports the current upstream versions: the classifier cache
// generation and the lane's image version.
type VersionFunc func() (classifierGen, imageVersion uint64)

// blockPayload is the gob-encoded cache entry body following the stamp
// header.
type blockPayload struct {
	Axes    string
	Extents []int32
	Data    []float32
}

// Cache is a block-addressable probability cache for one lane.  It is
// single-writer (its own compute path) and multi-reader.
type Cache struct {
	name         string
	spatialShape pixel.TaggedShape
	blockShapes  [3]pixel.BlockShape // spatial block shapes, indexed by SliceAxis

	store    *freecache.Cache
	compute  ComputeFunc
	versions VersionFunc
	group    singleflight.Group

	mu      sync.RWMutex
	frozen  bool
	pending bool // invalidation arrived while frozen

	attempts uint64
	hits     uint64
}

// New returns a cache over the lane's spatial shape.  Block shapes are the
// planner's inference shapes with the channel axis dropped.  The cache
// starts frozen, matching the pipeline's FreezePredictions default.
func New(name string, spatialShape pixel.TaggedShape, blockShapes [3]pixel.BlockShape,
	compute ComputeFunc, versions VersionFunc, cacheBytes int) (*Cache, error) {

	for _, bs := range blockShapes {
		if len(bs) != spatialShape.NumDims() {
			return nil, fmt.Errorf("block shape %s does not match spatial shape %s", bs, spatialShape)
		}
	}
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}
	c := &Cache{
		name:         name,
		spatialShape: spatialShape,
		blockShapes:  blockShapes,
		store:        freecache.NewCache(cacheBytes),
		compute:      compute,
		versions:     versions,
		frozen:       true,
	}
	pixel.Debugf("created %s prediction cache of ~ %s\n", name, humanize.Bytes(uint64(cacheBytes)))
	return c, nil
}

// Blocks returns the chunk points tiling the lane for one slice axis.
func (c *Cache) Blocks(axis SliceAxis) []pixel.ChunkPointNd {
	return pixel.BlocksInShape(c.spatialShape, c.blockShapes[axis])
}

// BlockROI returns the spatial region covered by a block.
func (c *Cache) BlockROI(axis SliceAxis, chunk pixel.ChunkPointNd) pixel.ROI {
	return pixel.BlockROI(chunk, c.blockShapes[axis], c.spatialShape)
}

// SetFrozen toggles freeze.  Freezing records but defers invalidation;
// unfreezing applies any invalidation deferred while frozen so the next
// read recomputes.
func (c *Cache) SetFrozen(frozen bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen == frozen {
		return
	}
	c.frozen = frozen
	if !frozen && c.pending {
		c.store.Clear()
		c.pending = false
	}
}

// Frozen returns the current freeze state.
func (c *Cache) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Invalidate drops a single cached block.  While frozen the request is
// recorded and applied on unfreeze.
func (c *Cache) Invalidate(axis SliceAxis, chunk pixel.ChunkPointNd) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		c.pending = true
		return
	}
	c.store.Del(c.key(axis, chunk))
}

// InvalidateAll drops every cached block, deferred while frozen.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		c.pending = true
		return
	}
	c.store.Clear()
}

func (c *Cache) key(axis SliceAxis, chunk pixel.ChunkPointNd) []byte {
	k := chunk.Key()
	buf := make([]byte, 1+len(k))
	buf[0] = byte(axis)
	copy(buf[1:], k)
	return buf
}

// Get returns the probability block for a chunk, recomputing on a miss or a
// stamp mismatch and serving stale entries while frozen.  A read never
// blocks on an unrelated in-flight retrain: it uses whatever classifier
// generation the trainer last committed (serve-stale-then-refresh).
func (c *Cache) Get(ctx context.Context, axis SliceAxis, chunk pixel.ChunkPointNd) (*pixel.Volume, error) {
	atomic.AddUint64(&c.attempts, 1)
	key := c.key(axis, chunk)

	c.mu.RLock()
	frozen := c.frozen
	c.mu.RUnlock()

	if entry, err := c.store.Get(key); err == nil {
		vol, gen, imgVer, derr := decodeEntry(entry)
		if derr != nil {
			pixel.Errorf("dropping corrupt entry in %s cache: %v\n", c.name, derr)
			c.store.Del(key)
		} else {
			if frozen {
				atomic.AddUint64(&c.hits, 1)
				return vol, nil
			}
			curGen, curImg := c.versions()
			if gen == curGen && imgVer == curImg {
				atomic.AddUint64(&c.hits, 1)
				return vol, nil
			}
		}
	} else if err != freecache.ErrNotFound {
		return nil, err
	}

	// Miss or stale: compute once per key even under concurrent readers.
	result, err, _ := c.group.Do(string(key), func() (interface{}, error) {
		gen, imgVer := c.versions()
		roi := c.BlockROI(axis, chunk)
		vol, err := c.compute(ctx, roi)
		if err != nil {
			return nil, err
		}
		entry, err := encodeEntry(vol, gen, imgVer)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(key, entry, 0); err != nil {
			// An oversized block just stays uncached.
			pixel.Warningf("unable to cache %s block %s in %s: %v\n", axis, chunk, c.name, err)
		}
		return vol, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*pixel.Volume), nil
}

// Channel returns one class's probability channel of a cached block as an
// independently usable volume, re-sliced from the cached output.
func (c *Cache) Channel(ctx context.Context, class int, axis SliceAxis, chunk pixel.ChunkPointNd) (*pixel.Volume, error) {
	block, err := c.Get(ctx, axis, chunk)
	if err != nil {
		return nil, err
	}
	ci := block.Shape.Index(pixel.ChannelAxis)
	if ci < 0 {
		return nil, fmt.Errorf("cached block in %s has no channel axis", c.name)
	}
	channels, _ := block.Shape.Extent(pixel.ChannelAxis)
	if class < 0 || class >= int(channels) {
		return nil, fmt.Errorf("class %d out of range 0..%d", class, channels-1)
	}
	out := pixel.NewVolume(block.Shape.With(pixel.ChannelAxis, 1))
	strides := block.Shape.Strides()
	spatial := pixel.ROI{
		Offset: make(pixel.PointNd, block.Shape.NumDims()),
		Size:   block.Shape.With(pixel.ChannelAxis, 1).Point(),
	}
	spatial.Each(func(p pixel.PointNd) {
		src := block.Shape.Linearize(p) + int64(class)*strides[ci]
		out.Data[out.Shape.Linearize(p)] = block.Data[src]
	})
	return out, nil
}

// Stats returns read attempts and hits since creation.
func (c *Cache) Stats() (attempts, hits uint64) {
	return atomic.LoadUint64(&c.attempts), atomic.LoadUint64(&c.hits)
}

// LogStats writes cache effectiveness and memory use to the log.
func (c *Cache) LogStats() {
	attempts, hits := c.Stats()
	pixel.Infof("%s prediction cache: %d / %d hits, ~ %s resident\n",
		c.name, hits, attempts, humanize.Bytes(uint64(size.Of(c))))
}

func encodeEntry(vol *pixel.Volume, gen, imgVer uint64) ([]byte, error) {
	payload := blockPayload{
		Axes:    axesString(vol.Shape),
		Extents: vol.Shape.Extents(),
		Data:    vol.Data,
	}
	body, err := pixel.Serialize(payload, pixel.DefaultCompression, pixel.CRC32)
	if err != nil {
		return nil, err
	}
	entry := make([]byte, 16+len(body))
	binary.LittleEndian.PutUint64(entry[0:8], gen)
	binary.LittleEndian.PutUint64(entry[8:16], imgVer)
	copy(entry[16:], body)
	return entry, nil
}

func decodeEntry(entry []byte) (*pixel.Volume, uint64, uint64, error) {
	if len(entry) < 16 {
		return nil, 0, 0, fmt.Errorf("cache entry too short (%d bytes)", len(entry))
	}
	gen := binary.LittleEndian.Uint64(entry[0:8])
	imgVer := binary.LittleEndian.Uint64(entry[8:16])
	var payload blockPayload
	if err := pixel.Deserialize(entry[16:], &payload); err != nil {
		return nil, 0, 0, err
	}
	shape, err := pixel.NewTaggedShape(payload.Axes, payload.Extents)
	if err != nil {
		return nil, 0, 0, err
	}
	return &pixel.Volume{Shape: shape, Data: payload.Data}, gen, imgVer, nil
}

func axesString(ts pixel.TaggedShape) string {
	keys := ts.Keys()
	axes := make([]byte, len(keys))
	for i, k := range keys {
		axes[i] = byte(k)
	}
	return string(axes)
}
