package pixel

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// CoordinateBits is the number of bits used for a single coordinate value.
const CoordinateBits = 32

// The middle value of a 32 bit space, used to bias signed coordinates into
// an unsigned range whose big-endian encoding sorts correctly.
var middleValue = int64(1) << (CoordinateBits - 1)

// PointNd is an n-dimensional voxel coordinate aligned with a TaggedShape's
// axis order.
type PointNd []int32

// NumDims returns the dimensionality of this point.
func (p PointNd) NumDims() uint8 {
	return uint8(len(p))
}

// Duplicate returns a copy of the point without any shared references.
func (p PointNd) Duplicate() PointNd {
	dup := make(PointNd, len(p))
	copy(dup, p)
	return dup
}

// Add returns the addition of two points.
func (p PointNd) Add(other PointNd) PointNd {
	result := make(PointNd, len(p))
	for i, v := range p {
		result[i] = v + other[i]
	}
	return result
}

// Sub returns the subtraction of the passed point from the receiver.
func (p PointNd) Sub(other PointNd) PointNd {
	result := make(PointNd, len(p))
	for i, v := range p {
		result[i] = v - other[i]
	}
	return result
}

// Min returns a point with the element-wise minimum of two points.
func (p PointNd) Min(other PointNd) PointNd {
	result := make(PointNd, len(p))
	for i, v := range p {
		if other[i] < v {
			result[i] = other[i]
		} else {
			result[i] = v
		}
	}
	return result
}

// Prod returns the product of the point elements.
func (p PointNd) Prod() int64 {
	result := int64(1)
	for _, v := range p {
		result *= int64(v)
	}
	return result
}

func (p PointNd) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Chunk returns the point in chunk space, i.e., the index of the block of
// the given size in which this point falls.  Handles negative coordinates
// with floor semantics.
func (p PointNd) Chunk(size BlockShape) ChunkPointNd {
	chunk := make(ChunkPointNd, len(p))
	for i, v := range p {
		chunk[i] = floorDiv(v, size[i])
	}
	return chunk
}

// PointInChunk returns the point in the coordinate space of its block, with
// the first voxel of the block as origin.
func (p PointNd) PointInChunk(size BlockShape) PointNd {
	local := make(PointNd, len(p))
	for i, v := range p {
		local[i] = v - floorDiv(v, size[i])*size[i]
	}
	return local
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// ChunkPointNd is an n-dimensional block coordinate in chunk space, distinct
// from voxel coordinates.
type ChunkPointNd []int32

// MinPoint returns the first voxel of the chunk given the block size.
func (c ChunkPointNd) MinPoint(size BlockShape) PointNd {
	p := make(PointNd, len(c))
	for i, v := range c {
		p[i] = v * size[i]
	}
	return p
}

// Duplicate returns a copy of the chunk point.
func (c ChunkPointNd) Duplicate() ChunkPointNd {
	dup := make(ChunkPointNd, len(c))
	copy(dup, c)
	return dup
}

func (c ChunkPointNd) String() string {
	return PointNd(c).String()
}

// BlockKey is the packed big-endian encoding of a chunk point.  The encoding
// biases each signed coordinate by half the coordinate space so that the
// lexicographic ordering of keys matches the numeric ordering of
// coordinates, letting key-sorted iteration walk blocks in axis order.
type BlockKey string

// Key returns the packed BlockKey for this chunk point.
func (c ChunkPointNd) Key() BlockKey {
	buf := make([]byte, 4*len(c))
	for i, v := range c {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(int64(v)+middleValue))
	}
	return BlockKey(buf)
}

// ChunkPoint decodes a BlockKey back into a chunk point.
func (k BlockKey) ChunkPoint() (ChunkPointNd, error) {
	if len(k)%4 != 0 {
		return nil, fmt.Errorf("block key has %d bytes, not a multiple of 4", len(k))
	}
	c := make(ChunkPointNd, len(k)/4)
	for i := range c {
		c[i] = int32(int64(binary.BigEndian.Uint32([]byte(k[4*i:]))) - middleValue)
	}
	return c, nil
}

// ROI is a rectangular region of voxels given by an offset and size, aligned
// with a TaggedShape's axis order.
type ROI struct {
	Offset PointNd
	Size   PointNd
}

// NumVoxels returns the number of voxels in the region.
func (r ROI) NumVoxels() int64 {
	return r.Size.Prod()
}

func (r ROI) String() string {
	return fmt.Sprintf("%s + %s", r.Offset, r.Size)
}
