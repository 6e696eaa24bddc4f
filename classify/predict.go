package classify

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/yutiansut/ilastik/pixel"
)

// OutputShape returns the probability-map shape for a spatial region of an
// image: the image's axis order with spatial extents from the region and
// the channel extent replaced by the class count.  Images without a channel
// axis get one appended.
func OutputShape(image pixel.TaggedShape, roi pixel.ROI, numClasses int) (pixel.TaggedShape, error) {
	if numClasses < 1 {
		return pixel.TaggedShape{}, fmt.Errorf("number of classes must be positive, got %d", numClasses)
	}
	var axes []byte
	var extents []int32
	si := 0
	for _, key := range image.Keys() {
		axes = append(axes, byte(key))
		if key == pixel.ChannelAxis {
			extents = append(extents, int32(numClasses))
			continue
		}
		extents = append(extents, roi.Size[si])
		si++
	}
	if image.Index(pixel.ChannelAxis) < 0 {
		axes = append(axes, byte(pixel.ChannelAxis))
		extents = append(extents, int32(numClasses))
	}
	return pixel.NewTaggedShape(string(axes), extents)
}

// Predict applies a classifier to one spatial region of a raw/feature
// image, computed fresh every call.  This is the cacheless path used by
// headless batch runs, where caching is wasted work.  The region is given
// over the image's spatial shape (all axes except channel).
//
// A nil classifier yields an all-zero probability volume of the expected
// class count, so consumers can always render a shape-correct result.
func Predict(image *pixel.Volume, roi pixel.ROI, clf Classifier, numClasses int) (*pixel.Volume, error) {
	spatial := image.SpatialShape()
	roi = roi.Clip(spatial)
	outShape, err := OutputShape(image.Shape, roi, numClasses)
	if err != nil {
		return nil, err
	}
	out := pixel.NewVolume(outShape)
	if clf == nil || roi.NumVoxels() == 0 {
		return out, nil
	}
	if clf.NumClasses() > numClasses {
		return nil, fmt.Errorf("classifier predicts %d classes but only %d requested", clf.NumClasses(), numClasses)
	}

	rows := make([][]float64, 0, roi.NumVoxels())
	roi.Each(func(p pixel.PointNd) {
		rows = append(rows, image.Features(p, nil))
	})
	probs, err := clf.PredictProbabilities(rows)
	if err != nil {
		return nil, err
	}
	if int64(len(probs)) != roi.NumVoxels() {
		return nil, fmt.Errorf("classifier returned %d probability rows for %d voxels", len(probs), roi.NumVoxels())
	}

	ci := outShape.Index(pixel.ChannelAxis)
	strides := outShape.Strides()
	full := make(pixel.PointNd, outShape.NumDims())
	row := 0
	roi.Each(func(p pixel.PointNd) {
		si := 0
		for i := range full {
			if i == ci {
				full[i] = 0
				continue
			}
			full[i] = p[si] - roi.Offset[si]
			si++
		}
		base := outShape.Linearize(full)
		for k, prob := range probs[row] {
			out.Data[base+int64(k)*strides[ci]] = float32(prob)
		}
		row++
	})
	return out, nil
}

// PredictBlocks runs the cacheless predictor over many regions
// concurrently, one goroutine per block up to the CPU count.  Results are
// returned in the order of the input regions.
func PredictBlocks(ctx context.Context, image *pixel.Volume, rois []pixel.ROI, clf Classifier, numClasses int) ([]*pixel.Volume, error) {
	results := make([]*pixel.Volume, len(rois))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, roi := range rois {
		i, roi := i, roi
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, err := Predict(image, roi, clf, numClasses)
			if err != nil {
				return fmt.Errorf("predicting block %s: %w", roi, err)
			}
			results[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
