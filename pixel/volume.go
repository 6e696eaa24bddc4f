package pixel

import "fmt"

// Volume is an N-dimensional tagged array of float32 values, used both for
// raw/feature images and for probability maps.
type Volume struct {
	Shape TaggedShape
	Data  []float32
}

// NewVolume returns a zero-filled volume of the given shape.
func NewVolume(shape TaggedShape) *Volume {
	return &Volume{Shape: shape, Data: make([]float32, shape.Prod())}
}

// At returns the value at a full coordinate (including any channel/time
// axes).  Out-of-range coordinates return a RangeError.
func (v *Volume) At(p PointNd) (float32, error) {
	if !v.Shape.Contains(p) {
		return 0, &RangeError{Coord: p.Duplicate(), Shape: v.Shape}
	}
	return v.Data[v.Shape.Linearize(p)], nil
}

// Set writes the value at a full coordinate.
func (v *Volume) Set(p PointNd, value float32) error {
	if !v.Shape.Contains(p) {
		return &RangeError{Coord: p.Duplicate(), Shape: v.Shape}
	}
	v.Data[v.Shape.Linearize(p)] = value
	return nil
}

// SpatialShape returns the shape without its channel axis.
func (v *Volume) SpatialShape() TaggedShape {
	return v.Shape.Drop(ChannelAxis)
}

// Features appends the channel values at a spatial coordinate to dst and
// returns it.  The spatial coordinate is aligned to SpatialShape's axis
// order.  Volumes without a channel axis yield a single feature.
func (v *Volume) Features(spatial PointNd, dst []float64) []float64 {
	ci := v.Shape.Index(ChannelAxis)
	if ci < 0 {
		return append(dst, float64(v.Data[v.Shape.Linearize(spatial)]))
	}
	full := make(PointNd, len(spatial)+1)
	si := 0
	for i := range full {
		if i == ci {
			continue
		}
		full[i] = spatial[si]
		si++
	}
	channels, _ := v.Shape.Extent(ChannelAxis)
	strides := v.Shape.Strides()
	full[ci] = 0
	base := v.Shape.Linearize(full)
	for c := int64(0); c < int64(channels); c++ {
		dst = append(dst, float64(v.Data[base+c*strides[ci]]))
	}
	return dst
}

// LabelVolume is an N-dimensional tagged array of uint8 label bytes, the
// bulk-ingest form of externally produced labels.
type LabelVolume struct {
	Shape TaggedShape
	Data  []uint8
}

// NewLabelVolume returns a zero-filled label volume of the given shape.
func NewLabelVolume(shape TaggedShape) *LabelVolume {
	return &LabelVolume{Shape: shape, Data: make([]uint8, shape.Prod())}
}

// Set writes a label byte at a coordinate.
func (v *LabelVolume) Set(p PointNd, value uint8) error {
	if !v.Shape.Contains(p) {
		return &RangeError{Coord: p.Duplicate(), Shape: v.Shape}
	}
	v.Data[v.Shape.Linearize(p)] = value
	return nil
}

// At returns the label byte at a coordinate.
func (v *LabelVolume) At(p PointNd) (uint8, error) {
	if !v.Shape.Contains(p) {
		return 0, &RangeError{Coord: p.Duplicate(), Shape: v.Shape}
	}
	return v.Data[v.Shape.Linearize(p)], nil
}

// Clip returns the region clipped against a shape's bounds.  An empty
// intersection yields a zero-size ROI.
func (r ROI) Clip(ts TaggedShape) ROI {
	off := make(PointNd, len(r.Offset))
	size := make(PointNd, len(r.Size))
	for i := range r.Offset {
		off[i] = r.Offset[i]
		if off[i] < 0 {
			off[i] = 0
		}
		end := r.Offset[i] + r.Size[i]
		if max := ts.Extents()[i]; end > max {
			end = max
		}
		size[i] = end - off[i]
		if size[i] < 0 {
			size[i] = 0
		}
	}
	return ROI{Offset: off, Size: size}
}

// Each calls f for every coordinate in the region in row-major order.  The
// coordinate buffer is reused between calls; callers must Duplicate it if
// retained.
func (r ROI) Each(f func(p PointNd)) {
	if len(r.Size) == 0 || r.NumVoxels() == 0 {
		return
	}
	p := r.Offset.Duplicate()
	for {
		f(p)
		dim := len(p) - 1
		for dim >= 0 {
			p[dim]++
			if p[dim] < r.Offset[dim]+r.Size[dim] {
				break
			}
			p[dim] = r.Offset[dim]
			dim--
		}
		if dim < 0 {
			return
		}
	}
}

// BlockROI returns the region covered by a chunk point, clipped to the
// shape.
func BlockROI(chunk ChunkPointNd, blockShape BlockShape, ts TaggedShape) ROI {
	off := chunk.MinPoint(blockShape)
	size := make(PointNd, len(off))
	for i := range size {
		size[i] = blockShape[i]
	}
	return ROI{Offset: off, Size: size}.Clip(ts)
}

// BlocksInShape returns the chunk points of all blocks covering the shape,
// in key-sorted (row-major) order.
func BlocksInShape(ts TaggedShape, blockShape BlockShape) []ChunkPointNd {
	ext := ts.Extents()
	if len(ext) != len(blockShape) {
		panic(fmt.Sprintf("shape %s and block shape %s differ in rank", ts, blockShape))
	}
	counts := make([]int32, len(ext))
	total := int64(1)
	for i := range ext {
		counts[i] = (ext[i] + blockShape[i] - 1) / blockShape[i]
		total *= int64(counts[i])
	}
	blocks := make([]ChunkPointNd, 0, total)
	cur := make(ChunkPointNd, len(ext))
	for {
		blocks = append(blocks, cur.Duplicate())
		dim := len(cur) - 1
		for dim >= 0 {
			cur[dim]++
			if cur[dim] < counts[dim] {
				break
			}
			cur[dim] = 0
			dim--
		}
		if dim < 0 {
			return blocks
		}
	}
}
