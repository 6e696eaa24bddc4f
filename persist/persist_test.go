package persist

import (
	"path/filepath"
	"testing"

	"github.com/yutiansut/ilastik/classify"
	"github.com/yutiansut/ilastik/pipeline"
	"github.com/yutiansut/ilastik/pixel"
)

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		Factory: classify.CentroidFactory{TrainTileEdge: 8, PredictTileEdge: 8},
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	img := pixel.NewVolume(pixel.MustTaggedShape("yxc", []int32{16, 16, 1}))
	if _, err := p.AppendLane(img); err != nil {
		t.Fatalf("AppendLane: %v", err)
	}
	return p
}

func TestProjectRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project")

	src := newTestPipeline(t)
	if err := src.SetLabelClass(1, "membrane", pipeline.Color{255, 0, 0}, pipeline.Color{200, 0, 0}); err != nil {
		t.Fatalf("SetLabelClass: %v", err)
	}
	if err := src.SetLabelClass(2, "cytoplasm", pipeline.Color{0, 255, 0}, pipeline.Color{0, 200, 0}); err != nil {
		t.Fatalf("SetLabelClass: %v", err)
	}
	coords := []pixel.PointNd{{0, 0, 0}, {3, 7, 0}, {12, 12, 0}}
	for i, c := range coords {
		if err := src.SetLabel(0, c, pixel.ClassLabel(uint8(i%2+1))); err != nil {
			t.Fatalf("SetLabel: %v", err)
		}
	}
	if err := src.SetBookmarks(0, []pipeline.Bookmark{
		{Coord: pixel.PointNd{3, 7, 0}, Note: "interesting membrane"},
	}); err != nil {
		t.Fatalf("SetBookmarks: %v", err)
	}

	pf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := pf.SaveProject(src); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Restore into a fresh pipeline whose lanes/images are already set up,
	// as the dataset I/O collaborator would have done.
	dst := newTestPipeline(t)
	pf, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer pf.Close()
	if err := pf.LoadProject(dst); err != nil {
		t.Fatalf("LoadProject: %v", err)
	}

	names := dst.LabelNames()
	if len(names) != 2 || names[0] != "membrane" || names[1] != "cytoplasm" {
		t.Errorf("restored names %v", names)
	}
	if cols := dst.LabelColors(); cols[0] != (pipeline.Color{255, 0, 0}) {
		t.Errorf("restored label colors %v", cols)
	}
	if cols := dst.PmapColors(); cols[1] != (pipeline.Color{0, 200, 0}) {
		t.Errorf("restored pmap colors %v", cols)
	}

	lane, err := dst.Lane(0)
	if err != nil {
		t.Fatalf("Lane: %v", err)
	}
	for i, c := range coords {
		v, err := lane.Labels().Get(c)
		if err != nil {
			t.Fatalf("Get %s: %v", c, err)
		}
		if want := uint8(i%2 + 1); v.ID != want {
			t.Errorf("restored voxel %s reads %s, want class %d", c, v, want)
		}
	}
	if n := lane.Labels().NumLabeledVoxels(); n != int64(len(coords)) {
		t.Errorf("restored store has %d labeled voxels, want %d", n, len(coords))
	}

	marks := lane.Bookmarks()
	if len(marks) != 1 || marks[0].Note != "interesting membrane" {
		t.Errorf("restored bookmarks %v", marks)
	}
}

func TestSaveOverwritesStaleLanes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project")

	src := newTestPipeline(t)
	src.SetLabel(0, pixel.PointNd{1, 1, 0}, pixel.ClassLabel(1))

	pf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()
	if err := pf.SaveProject(src); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	// Erase the label and save again: the stale block must not resurrect.
	if err := src.SetLabel(0, pixel.PointNd{1, 1, 0}, pixel.ErasedLabel); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if err := pf.SaveProject(src); err != nil {
		t.Fatalf("second SaveProject: %v", err)
	}

	dst := newTestPipeline(t)
	if err := pf.LoadProject(dst); err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	lane, _ := dst.Lane(0)
	if n := lane.Labels().NumLabeledVoxels(); n != 0 {
		t.Errorf("stale label block resurrected, %d voxels", n)
	}
}

func TestFormatVersionGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project")

	pf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening a same-major container succeeds.
	pf, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	pf.Close()
}
