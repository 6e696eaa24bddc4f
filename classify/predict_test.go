package classify

import (
	"context"
	"math"
	"testing"

	"github.com/yutiansut/ilastik/pixel"
)

// trainTwoClass trains the reference model on two well-separated single
// feature clusters.
func trainTwoClass(t *testing.T) Classifier {
	t.Helper()
	samples := &SampleSet{NumClasses: 2}
	samples.Add([]float64{0}, 1)
	samples.Add([]float64{2}, 1)
	samples.Add([]float64{100}, 2)
	samples.Add([]float64{102}, 2)
	clf, err := CentroidFactory{}.Create(context.Background(), samples)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return clf
}

func TestOutputShape(t *testing.T) {
	image := pixel.MustTaggedShape("yxc", []int32{520, 697, 3})
	roi := pixel.ROI{Offset: pixel.PointNd{0, 0}, Size: pixel.PointNd{10, 20}}
	out, err := OutputShape(image, roi, 2)
	if err != nil {
		t.Fatalf("OutputShape: %v", err)
	}
	if !out.Equals(pixel.MustTaggedShape("yxc", []int32{10, 20, 2})) {
		t.Errorf("got %s", out)
	}

	// Channel-less images get a channel axis appended.
	flat := pixel.MustTaggedShape("yx", []int32{520, 697})
	out, err = OutputShape(flat, roi, 4)
	if err != nil {
		t.Fatalf("OutputShape: %v", err)
	}
	if !out.Equals(pixel.MustTaggedShape("yxc", []int32{10, 20, 4})) {
		t.Errorf("got %s", out)
	}

	if _, err := OutputShape(image, roi, 0); err == nil {
		t.Error("expected error for zero classes")
	}
}

func TestPredictNilClassifier(t *testing.T) {
	image := pixel.NewVolume(pixel.MustTaggedShape("yxc", []int32{8, 8, 1}))
	roi := pixel.ROI{Offset: pixel.PointNd{0, 0}, Size: pixel.PointNd{8, 8}}

	out, err := Predict(image, roi, nil, 3)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !out.Shape.Equals(pixel.MustTaggedShape("yxc", []int32{8, 8, 3})) {
		t.Fatalf("bad output shape %s", out.Shape)
	}
	for i, v := range out.Data {
		if v != 0 {
			t.Fatalf("expected all-zero map, got %v at %d", v, i)
		}
	}
}

func TestPredictProbabilities(t *testing.T) {
	clf := trainTwoClass(t)

	image := pixel.NewVolume(pixel.MustTaggedShape("yxc", []int32{2, 2, 1}))
	// Left column near class 1, right column near class 2.
	image.Set(pixel.PointNd{0, 0, 0}, 1)
	image.Set(pixel.PointNd{1, 0, 0}, 1)
	image.Set(pixel.PointNd{0, 1, 0}, 101)
	image.Set(pixel.PointNd{1, 1, 0}, 101)

	roi := pixel.ROI{Offset: pixel.PointNd{0, 0}, Size: pixel.PointNd{2, 2}}
	out, err := Predict(image, roi, clf, 2)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	check := func(y, x int32, class int32) {
		p0, _ := out.At(pixel.PointNd{y, x, 0})
		p1, _ := out.At(pixel.PointNd{y, x, 1})
		sum := float64(p0) + float64(p1)
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("probabilities at (%d,%d) sum to %v", y, x, sum)
		}
		winner := int32(0)
		if p1 > p0 {
			winner = 1
		}
		if winner != class {
			t.Errorf("voxel (%d,%d) classified as %d, want %d", y, x, winner, class)
		}
	}
	check(0, 0, 0)
	check(1, 0, 0)
	check(0, 1, 1)
	check(1, 1, 1)
}

func TestPredictRequestedClassesExceedTrained(t *testing.T) {
	clf := trainTwoClass(t)
	image := pixel.NewVolume(pixel.MustTaggedShape("yxc", []int32{1, 1, 1}))
	roi := pixel.ROI{Offset: pixel.PointNd{0, 0}, Size: pixel.PointNd{1, 1}}

	// Requesting more classes than trained pads with zeros.
	out, err := Predict(image, roi, clf, 4)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if c, _ := out.Shape.Extent(pixel.ChannelAxis); c != 4 {
		t.Fatalf("expected 4 class channels, got %d", c)
	}
	p2, _ := out.At(pixel.PointNd{0, 0, 2})
	p3, _ := out.At(pixel.PointNd{0, 0, 3})
	if p2 != 0 || p3 != 0 {
		t.Errorf("untrained class channels nonzero: %v %v", p2, p3)
	}

	// Requesting fewer is an error.
	if _, err := Predict(image, roi, clf, 1); err == nil {
		t.Error("expected error when classifier has more classes than requested")
	}
}

func TestPredictBlocks(t *testing.T) {
	clf := trainTwoClass(t)
	image := pixel.NewVolume(pixel.MustTaggedShape("yxc", []int32{64, 64, 1}))
	for i := range image.Data {
		image.Data[i] = 101
	}

	var rois []pixel.ROI
	for _, chunk := range pixel.BlocksInShape(image.SpatialShape(), pixel.BlockShape{16, 16}) {
		rois = append(rois, pixel.BlockROI(chunk, pixel.BlockShape{16, 16}, image.SpatialShape()))
	}
	blocks, err := PredictBlocks(context.Background(), image, rois, clf, 2)
	if err != nil {
		t.Fatalf("PredictBlocks: %v", err)
	}
	if len(blocks) != 16 {
		t.Fatalf("expected 16 blocks, got %d", len(blocks))
	}
	for i, block := range blocks {
		p1, _ := block.At(pixel.PointNd{0, 0, 1})
		if p1 < 0.9 {
			t.Errorf("block %d class-2 probability %v, expected near 1", i, p1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PredictBlocks(ctx, image, rois, clf, 2); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestCentroidClassifierErrors(t *testing.T) {
	if _, err := (CentroidFactory{}).Create(context.Background(), &SampleSet{NumClasses: 1}); err == nil {
		t.Error("expected error training on empty sample set")
	}

	clf := trainTwoClass(t)
	if _, err := clf.PredictProbabilities([][]float64{{1, 2, 3}}); err == nil {
		t.Error("expected error for wrong feature arity")
	}
}
