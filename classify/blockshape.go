package classify

import (
	"fmt"

	"github.com/yutiansut/ilastik/pixel"
)

// channelBlockDepth is the channel extent used for inference blocks, deep
// enough that all class channels of a block land in one cache entry.
const channelBlockDepth = 100

// TrainingBlockShape computes the label-storage block shape for an image.
// Labels are painted per-channel-combined and per-timestep, so the channel
// and time extents are forced to 1; spatial extents come from the factory's
// training tile preference.  Pure function of its inputs.
func TrainingBlockShape(ts pixel.TaggedShape, factory Factory) (pixel.BlockShape, error) {
	spatial, err := spatialExtents(ts)
	if err != nil {
		return nil, err
	}
	tile := factory.DetermineBlockShape(spatial, true)
	if len(tile) != len(spatial) {
		return nil, fmt.Errorf("factory %q returned %d tile extents for %d spatial axes",
			factory.Name(), len(tile), len(spatial))
	}
	shape := make(pixel.BlockShape, ts.NumDims())
	si := 0
	for i, key := range ts.Keys() {
		if key.IsSpatial() {
			shape[i] = clampExtent(tile[si], ts.Extents()[i])
			si++
		} else {
			shape[i] = 1
		}
	}
	return shape, nil
}

// InferenceBlockShapes computes the three inference tile footprints, each
// thin along one spatial axis and thick along the other two.  Thin blocks
// give slice-access locality when the GUI pulls a 2D cross-section, at the
// cost of caching more voxels per visible slice.  For images without a z
// axis the z-sliced shape degenerates to a thick xy tile.
func InferenceBlockShapes(ts pixel.TaggedShape, factory Factory) (bx, by, bz pixel.BlockShape, err error) {
	spatial, err := spatialExtents(ts)
	if err != nil {
		return nil, nil, nil, err
	}
	tile := factory.DetermineBlockShape(spatial, false)
	if len(tile) == 0 {
		return nil, nil, nil, fmt.Errorf("factory %q returned empty inference tile", factory.Name())
	}
	thick := tile[len(tile)-1]

	bx = sliceShape(ts, pixel.XAxis, thick)
	by = sliceShape(ts, pixel.YAxis, thick)
	bz = sliceShape(ts, pixel.ZAxis, thick)
	return bx, by, bz, nil
}

// sliceShape builds a block shape thin along the given axis: t=1, the thin
// spatial axis 1, other spatial axes thick, and a deep channel extent.
func sliceShape(ts pixel.TaggedShape, thin pixel.AxisKey, thick int32) pixel.BlockShape {
	shape := make(pixel.BlockShape, ts.NumDims())
	for i, key := range ts.Keys() {
		ext := ts.Extents()[i]
		switch {
		case key == pixel.TimeAxis:
			shape[i] = 1
		case key == pixel.ChannelAxis:
			shape[i] = clampExtent(channelBlockDepth, ext)
		case key == thin:
			shape[i] = 1
		default:
			shape[i] = clampExtent(thick, ext)
		}
	}
	return shape
}

func spatialExtents(ts pixel.TaggedShape) ([]int32, error) {
	var spatial []int32
	for i, key := range ts.Keys() {
		if key.IsSpatial() {
			spatial = append(spatial, ts.Extents()[i])
		}
	}
	if len(spatial) == 0 {
		return nil, fmt.Errorf("shape %s has no spatial axes", ts)
	}
	return spatial, nil
}

func clampExtent(v, max int32) int32 {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}
