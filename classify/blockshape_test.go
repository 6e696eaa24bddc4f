package classify

import (
	"testing"

	"github.com/yutiansut/ilastik/pixel"
)

func TestTrainingBlockShape(t *testing.T) {
	factory := CentroidFactory{TrainTileEdge: 64}

	ts := pixel.MustTaggedShape("tzyxc", []int32{5, 200, 520, 697, 3})
	shape, err := TrainingBlockShape(ts, factory)
	if err != nil {
		t.Fatalf("TrainingBlockShape: %v", err)
	}
	// Time and channel forced to 1, spatial axes from the training tile.
	want := pixel.BlockShape{1, 64, 64, 64, 1}
	if !shape.Equals(want) {
		t.Errorf("got %s, want %s", shape, want)
	}

	// Spatial extents smaller than the tile clamp to the extent.
	small := pixel.MustTaggedShape("yxc", []int32{30, 697, 3})
	shape, err = TrainingBlockShape(small, factory)
	if err != nil {
		t.Fatalf("TrainingBlockShape: %v", err)
	}
	want = pixel.BlockShape{30, 64, 1}
	if !shape.Equals(want) {
		t.Errorf("got %s, want %s", shape, want)
	}

	noSpatial := pixel.MustTaggedShape("tc", []int32{5, 3})
	if _, err := TrainingBlockShape(noSpatial, factory); err == nil {
		t.Error("expected error for shape without spatial axes")
	}
}

func TestInferenceBlockShapes(t *testing.T) {
	factory := CentroidFactory{PredictTileEdge: 256}

	ts := pixel.MustTaggedShape("tzyxc", []int32{5, 200, 520, 697, 3})
	bx, by, bz, err := InferenceBlockShapes(ts, factory)
	if err != nil {
		t.Fatalf("InferenceBlockShapes: %v", err)
	}
	// Each shape is thin along its axis, thick along the other two, t=1,
	// and the channel extent clamped to the image's 3 channels.
	if want := (pixel.BlockShape{1, 200, 256, 1, 3}); !bx.Equals(want) {
		t.Errorf("x-sliced shape %s, want %s", bx, want)
	}
	if want := (pixel.BlockShape{1, 200, 1, 256, 3}); !by.Equals(want) {
		t.Errorf("y-sliced shape %s, want %s", by, want)
	}
	if want := (pixel.BlockShape{1, 1, 256, 256, 3}); !bz.Equals(want) {
		t.Errorf("z-sliced shape %s, want %s", bz, want)
	}

	// A deep channel axis caps at the planner's channel block depth.
	deep := pixel.MustTaggedShape("yxc", []int32{520, 697, 128})
	_, _, bz, err = InferenceBlockShapes(deep, factory)
	if err != nil {
		t.Fatalf("InferenceBlockShapes: %v", err)
	}
	if want := (pixel.BlockShape{256, 256, 100}); !bz.Equals(want) {
		t.Errorf("deep-channel z-sliced shape %s, want %s", bz, want)
	}

	// 2D images: the z-sliced shape degenerates to a thick xy tile.
	flat := pixel.MustTaggedShape("yxc", []int32{520, 697, 3})
	_, _, bz, err = InferenceBlockShapes(flat, factory)
	if err != nil {
		t.Fatalf("InferenceBlockShapes: %v", err)
	}
	if want := (pixel.BlockShape{256, 256, 3}); !bz.Equals(want) {
		t.Errorf("2D z-sliced shape %s, want %s", bz, want)
	}
}
