package pixel

import (
	"fmt"
	"strings"
)

// TaggedShape is a shape paired with axis semantics rather than bare
// positional dimensions.  Axis order is significant and fixed at
// construction; extents are per-axis sizes in voxels.
type TaggedShape struct {
	keys    []AxisKey
	extents []int32
}

// NewTaggedShape returns a TaggedShape for an axis-key string like "tzyxc"
// and matching extents.  Keys must be unique and drawn from {t,z,y,x,c}.
func NewTaggedShape(axes string, extents []int32) (TaggedShape, error) {
	if len(axes) != len(extents) {
		return TaggedShape{}, fmt.Errorf("axes %q has %d keys but %d extents given", axes, len(axes), len(extents))
	}
	seen := make(map[AxisKey]struct{}, len(axes))
	keys := make([]AxisKey, len(axes))
	for i := 0; i < len(axes); i++ {
		k := AxisKey(axes[i])
		switch k {
		case TimeAxis, ZAxis, YAxis, XAxis, ChannelAxis:
		default:
			return TaggedShape{}, fmt.Errorf("unknown axis key %q in %q", string(axes[i]), axes)
		}
		if _, dup := seen[k]; dup {
			return TaggedShape{}, fmt.Errorf("duplicate axis key %q in %q", string(axes[i]), axes)
		}
		seen[k] = struct{}{}
		keys[i] = k
		if extents[i] < 1 {
			return TaggedShape{}, fmt.Errorf("axis %q has non-positive extent %d", string(axes[i]), extents[i])
		}
	}
	ext := make([]int32, len(extents))
	copy(ext, extents)
	return TaggedShape{keys: keys, extents: ext}, nil
}

// MustTaggedShape is NewTaggedShape for statically known shapes, e.g., tests.
func MustTaggedShape(axes string, extents []int32) TaggedShape {
	ts, err := NewTaggedShape(axes, extents)
	if err != nil {
		panic(err)
	}
	return ts
}

// NumDims returns the number of axes including channel and time.
func (ts TaggedShape) NumDims() int {
	return len(ts.keys)
}

// Keys returns the axis keys in order.
func (ts TaggedShape) Keys() []AxisKey {
	keys := make([]AxisKey, len(ts.keys))
	copy(keys, ts.keys)
	return keys
}

// Extents returns the per-axis sizes in order.
func (ts TaggedShape) Extents() []int32 {
	ext := make([]int32, len(ts.extents))
	copy(ext, ts.extents)
	return ext
}

// Index returns the position of the given axis, or -1 if absent.
func (ts TaggedShape) Index(key AxisKey) int {
	for i, k := range ts.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Extent returns the size along the given axis and whether the axis exists.
func (ts TaggedShape) Extent(key AxisKey) (int32, bool) {
	i := ts.Index(key)
	if i < 0 {
		return 0, false
	}
	return ts.extents[i], true
}

// Channels returns the channel extent, defaulting to 1 if there is no
// channel axis.
func (ts TaggedShape) Channels() int32 {
	if c, ok := ts.Extent(ChannelAxis); ok {
		return c
	}
	return 1
}

// Prod returns the total number of voxels.
func (ts TaggedShape) Prod() int64 {
	n := int64(1)
	for _, e := range ts.extents {
		n *= int64(e)
	}
	return n
}

// With returns a copy with the extent of one existing axis replaced.
func (ts TaggedShape) With(key AxisKey, extent int32) TaggedShape {
	dup := ts.clone()
	if i := dup.Index(key); i >= 0 {
		dup.extents[i] = extent
	}
	return dup
}

// Drop returns a copy without the given axis.  Dropping an absent axis is a
// no-op.
func (ts TaggedShape) Drop(key AxisKey) TaggedShape {
	i := ts.Index(key)
	if i < 0 {
		return ts.clone()
	}
	keys := make([]AxisKey, 0, len(ts.keys)-1)
	ext := make([]int32, 0, len(ts.extents)-1)
	for j := range ts.keys {
		if j == i {
			continue
		}
		keys = append(keys, ts.keys[j])
		ext = append(ext, ts.extents[j])
	}
	return TaggedShape{keys: keys, extents: ext}
}

// Point returns the extents as a PointNd in axis order.
func (ts TaggedShape) Point() PointNd {
	p := make(PointNd, len(ts.extents))
	copy(p, ts.extents)
	return p
}

// Contains returns true if the voxel coordinate lies within the shape.
func (ts TaggedShape) Contains(p PointNd) bool {
	if len(p) != len(ts.extents) {
		return false
	}
	for i, v := range p {
		if v < 0 || v >= ts.extents[i] {
			return false
		}
	}
	return true
}

// Strides returns the per-axis strides for row-major (first axis slowest)
// linearization of the shape.
func (ts TaggedShape) Strides() []int64 {
	strides := make([]int64, len(ts.extents))
	stride := int64(1)
	for i := len(ts.extents) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= int64(ts.extents[i])
	}
	return strides
}

// Linearize returns the row-major linear index of a coordinate, without
// bounds checking.
func (ts TaggedShape) Linearize(p PointNd) int64 {
	var idx int64
	strides := ts.Strides()
	for i, v := range p {
		idx += int64(v) * strides[i]
	}
	return idx
}

// Equals returns true if both shapes have identical axis order and extents.
func (ts TaggedShape) Equals(other TaggedShape) bool {
	if len(ts.keys) != len(other.keys) {
		return false
	}
	for i := range ts.keys {
		if ts.keys[i] != other.keys[i] || ts.extents[i] != other.extents[i] {
			return false
		}
	}
	return true
}

func (ts TaggedShape) clone() TaggedShape {
	keys := make([]AxisKey, len(ts.keys))
	copy(keys, ts.keys)
	ext := make([]int32, len(ts.extents))
	copy(ext, ts.extents)
	return TaggedShape{keys: keys, extents: ext}
}

func (ts TaggedShape) String() string {
	var sb strings.Builder
	for i, k := range ts.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s:%d", k, ts.extents[i])
	}
	return "(" + sb.String() + ")"
}

// BlockShape is a per-axis tile footprint aligned with a TaggedShape's axis
// order.  It is distinct from voxel coordinates since its values are tile
// extents, not positions.
type BlockShape []int32

func (bs BlockShape) String() string {
	return PointNd(bs).String()
}

// Equals returns true if both block shapes match element-wise.
func (bs BlockShape) Equals(other BlockShape) bool {
	if len(bs) != len(other) {
		return false
	}
	for i := range bs {
		if bs[i] != other[i] {
			return false
		}
	}
	return true
}
