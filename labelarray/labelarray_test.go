package labelarray

import (
	"testing"

	"github.com/yutiansut/ilastik/pixel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	shape := pixel.MustTaggedShape("yxc", []int32{520, 697, 1})
	s, err := NewStore(shape, pixel.BlockShape{64, 64, 1})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreSetGet(t *testing.T) {
	s := newTestStore(t)

	if v, err := s.Get(pixel.PointNd{10, 10, 0}); err != nil || v != pixel.UnsetLabel {
		t.Fatalf("fresh store Get = %s, %v", v, err)
	}
	if err := s.SetLabel(pixel.PointNd{10, 10, 0}, pixel.ClassLabel(2)); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	v, err := s.Get(pixel.PointNd{10, 10, 0})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !v.IsSet() || v.ID != 2 {
		t.Errorf("expected class 2, got %s", v)
	}

	// Unset is a no-op, Erased clears.
	if err := s.SetLabel(pixel.PointNd{10, 10, 0}, pixel.UnsetLabel); err != nil {
		t.Fatalf("SetLabel unset: %v", err)
	}
	if v, _ := s.Get(pixel.PointNd{10, 10, 0}); v.ID != 2 {
		t.Errorf("unset write should leave label, got %s", v)
	}
	if err := s.SetLabel(pixel.PointNd{10, 10, 0}, pixel.ErasedLabel); err != nil {
		t.Fatalf("SetLabel erased: %v", err)
	}
	if v, _ := s.Get(pixel.PointNd{10, 10, 0}); v.IsSet() {
		t.Errorf("erase left label %s", v)
	}

	if err := s.SetLabel(pixel.PointNd{520, 0, 0}, pixel.ClassLabel(1)); err == nil {
		t.Error("expected RangeError for out-of-bounds write")
	} else if _, ok := err.(*pixel.RangeError); !ok {
		t.Errorf("expected *pixel.RangeError, got %T", err)
	}
	if err := s.SetLabel(pixel.PointNd{0, 0, 0}, pixel.ClassLabel(0)); err == nil {
		t.Error("expected error for class id 0")
	}
}

func TestStoreVersionBumps(t *testing.T) {
	s := newTestStore(t)
	v0 := s.Version()

	if err := s.SetLabel(pixel.PointNd{1, 1, 0}, pixel.ClassLabel(1)); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	v1 := s.Version()
	if v1 == v0 {
		t.Error("version unchanged after label write")
	}

	// Writing the same value again is a no-op and must not invalidate.
	if err := s.SetLabel(pixel.PointNd{1, 1, 0}, pixel.ClassLabel(1)); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if s.Version() != v1 {
		t.Error("version bumped by a no-op write")
	}

	// Clearing a label nobody uses is a no-op too.
	if err := s.ClearLabel(9); err != nil {
		t.Fatalf("ClearLabel: %v", err)
	}
	if s.Version() != v1 {
		t.Error("version bumped by clearing an unused label")
	}
}

func TestStoreNonzeroBlocks(t *testing.T) {
	s := newTestStore(t)
	if blocks := s.NonzeroBlocks(); len(blocks) != 0 {
		t.Fatalf("fresh store reports %d nonzero blocks", len(blocks))
	}

	// Two voxels in one block, one in another.
	coords := []pixel.PointNd{{0, 0, 0}, {1, 1, 0}, {100, 300, 0}}
	for _, c := range coords {
		if err := s.SetLabel(c, pixel.ClassLabel(1)); err != nil {
			t.Fatalf("SetLabel %s: %v", c, err)
		}
	}
	blocks := s.NonzeroBlocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 nonzero blocks, got %d", len(blocks))
	}
	if s.NumLabeledVoxels() != 3 {
		t.Errorf("expected 3 labeled voxels, got %d", s.NumLabeledVoxels())
	}

	// Erasing the lone voxel dematerializes its block.
	if err := s.SetLabel(pixel.PointNd{100, 300, 0}, pixel.ErasedLabel); err != nil {
		t.Fatalf("erase: %v", err)
	}
	blocks = s.NonzeroBlocks()
	if len(blocks) != 1 {
		t.Fatalf("expected 1 nonzero block after erase, got %d", len(blocks))
	}
	if got := blocks[0].String(); got != "(0,0,0)" {
		t.Errorf("wrong surviving block %s", got)
	}
}

func TestStoreIngest(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetLabel(pixel.PointNd{5, 5, 0}, pixel.ClassLabel(7)); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}

	vol := pixel.NewLabelVolume(s.Shape())
	vol.Set(pixel.PointNd{0, 0, 0}, 3)
	vol.Set(pixel.PointNd{0, 1, 0}, 5)
	vol.Set(pixel.PointNd{5, 5, 0}, pixel.LegacyEraser) // erases the prior 7

	maxLabel, err := s.Ingest(vol)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if maxLabel != 5 {
		t.Errorf("expected max label 5, got %d", maxLabel)
	}
	if v, _ := s.Get(pixel.PointNd{0, 1, 0}); v.ID != 5 {
		t.Errorf("ingested voxel reads %s", v)
	}
	if v, _ := s.Get(pixel.PointNd{5, 5, 0}); v.IsSet() {
		t.Errorf("legacy eraser byte did not erase, got %s", v)
	}
	// Zero bytes leave existing labels untouched.
	if v, _ := s.Get(pixel.PointNd{0, 0, 0}); v.ID != 3 {
		t.Errorf("expected class 3, got %s", v)
	}

	bad := pixel.NewLabelVolume(pixel.MustTaggedShape("yxc", []int32{2, 2, 1}))
	if _, err := s.Ingest(bad); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestStoreIngestRejectsOutOfRange(t *testing.T) {
	s := newTestStore(t)
	before := s.Version()

	// 255 is above the largest class id SetLabel accepts; Ingest must hold
	// the same line and leave the store untouched.
	vol := pixel.NewLabelVolume(s.Shape())
	vol.Set(pixel.PointNd{0, 0, 0}, 2)
	vol.Set(pixel.PointNd{3, 3, 0}, 255)
	if _, err := s.Ingest(vol); err == nil {
		t.Fatal("expected out-of-range label error")
	}
	if n := s.NumLabeledVoxels(); n != 0 {
		t.Errorf("rejected ingest wrote %d voxels", n)
	}
	if s.Version() != before {
		t.Errorf("rejected ingest bumped version %d -> %d", before, s.Version())
	}

	// The legacy eraser byte normalizes to zero and must still pass.
	ok := pixel.NewLabelVolume(s.Shape())
	ok.Set(pixel.PointNd{0, 0, 0}, pixel.LegacyEraser)
	if _, err := s.Ingest(ok); err != nil {
		t.Fatalf("Ingest with eraser byte: %v", err)
	}
}

func TestStoreMergeAndClear(t *testing.T) {
	s := newTestStore(t)
	setA := []pixel.PointNd{{0, 0, 0}, {70, 70, 0}}
	setB := []pixel.PointNd{{1, 0, 0}, {200, 200, 0}}
	for _, c := range setA {
		if err := s.SetLabel(c, pixel.ClassLabel(1)); err != nil {
			t.Fatalf("SetLabel: %v", err)
		}
	}
	for _, c := range setB {
		if err := s.SetLabel(c, pixel.ClassLabel(2)); err != nil {
			t.Fatalf("SetLabel: %v", err)
		}
	}

	if err := s.MergeLabels(2, 1); err != nil {
		t.Fatalf("MergeLabels: %v", err)
	}
	for _, c := range append(append([]pixel.PointNd{}, setA...), setB...) {
		if v, _ := s.Get(c); v.ID != 1 {
			t.Errorf("voxel %s reads %s after merge", c, v)
		}
	}
	if n := s.NumLabeledVoxels(); n != 4 {
		t.Errorf("merge changed voxel count to %d", n)
	}

	if err := s.ClearLabel(1); err != nil {
		t.Fatalf("ClearLabel: %v", err)
	}
	if n := s.NumLabeledVoxels(); n != 0 {
		t.Errorf("%d voxels remain after clear", n)
	}
	if len(s.NonzeroBlocks()) != 0 {
		t.Error("blocks remain materialized after clearing the only label")
	}
	// Clearing again is idempotent.
	if err := s.ClearLabel(1); err != nil {
		t.Fatalf("repeated ClearLabel: %v", err)
	}

	if err := s.MergeLabels(0, 1); err == nil {
		t.Error("expected error merging the unset label")
	}
}

func TestStoreDeleteLabelShiftsIDs(t *testing.T) {
	s := newTestStore(t)
	s.SetLabel(pixel.PointNd{0, 0, 0}, pixel.ClassLabel(1))
	s.SetLabel(pixel.PointNd{0, 1, 0}, pixel.ClassLabel(2))
	s.SetLabel(pixel.PointNd{0, 2, 0}, pixel.ClassLabel(3))

	if err := s.DeleteLabel(2); err != nil {
		t.Fatalf("DeleteLabel: %v", err)
	}
	if v, _ := s.Get(pixel.PointNd{0, 0, 0}); v.ID != 1 {
		t.Errorf("label below deleted id changed to %s", v)
	}
	if v, _ := s.Get(pixel.PointNd{0, 1, 0}); v.IsSet() {
		t.Errorf("deleted label still reads %s", v)
	}
	if v, _ := s.Get(pixel.PointNd{0, 2, 0}); v.ID != 2 {
		t.Errorf("label above deleted id should shift to 2, got %s", v)
	}
}

func TestStoreLabelImage(t *testing.T) {
	s := newTestStore(t)
	s.SetLabel(pixel.PointNd{10, 10, 0}, pixel.ClassLabel(1))
	s.SetLabel(pixel.PointNd{11, 12, 0}, pixel.ClassLabel(2))

	roi := pixel.ROI{Offset: pixel.PointNd{10, 10, 0}, Size: pixel.PointNd{4, 4, 1}}
	img, err := s.LabelImage(roi)
	if err != nil {
		t.Fatalf("LabelImage: %v", err)
	}
	if img.Shape.Prod() != 16 {
		t.Fatalf("bad label image shape %s", img.Shape)
	}
	if b, _ := img.At(pixel.PointNd{0, 0, 0}); b != 1 {
		t.Errorf("expected 1 at origin, got %d", b)
	}
	if b, _ := img.At(pixel.PointNd{1, 2, 0}); b != 2 {
		t.Errorf("expected 2 at (1,2), got %d", b)
	}
	if b, _ := img.At(pixel.PointNd{3, 3, 0}); b != 0 {
		t.Errorf("expected unset corner, got %d", b)
	}
}

func TestStoreBlockIO(t *testing.T) {
	s := newTestStore(t)
	s.SetLabel(pixel.PointNd{70, 70, 0}, pixel.ClassLabel(4))

	chunk := pixel.PointNd{70, 70, 0}.Chunk(s.BlockShape())
	data, roi, err := s.ReadBlock(chunk)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if roi.Offset[0] != 64 || roi.Offset[1] != 64 {
		t.Errorf("bad block ROI %s", roi)
	}

	// Round trip into a second store, as the project serializer does.
	s2 := newTestStore(t)
	if err := s2.WriteBlock(chunk, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if v, _ := s2.Get(pixel.PointNd{70, 70, 0}); v.ID != 4 {
		t.Errorf("restored block reads %s", v)
	}
	if len(s2.NonzeroBlocks()) != 1 {
		t.Error("restored store should report one nonzero block")
	}

	if err := s2.WriteBlock(chunk, []uint8{1, 2, 3}); err == nil {
		t.Error("expected error writing short block")
	}
}
