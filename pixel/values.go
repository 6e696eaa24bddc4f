package pixel

import "fmt"

// LabelState distinguishes the three kinds of voxel label values.  A tagged
// value replaces the legacy convention of reserving id 100 as an in-band
// eraser sentinel.
type LabelState uint8

const (
	// Unset means the voxel carries no label.  Writing Unset is a no-op,
	// leaving any existing label untouched.
	Unset LabelState = iota

	// Erased means the voxel is explicitly unset, clearing any previous
	// label.
	Erased

	// Class means the voxel is labeled with a class id.
	Class
)

// LegacyEraser is the in-band eraser value used by externally produced label
// volumes.  It is translated to Erased on bulk ingest and never appears in
// stored blocks.
const LegacyEraser uint8 = 100

// MaxClassID is the largest representable label class id.
const MaxClassID uint8 = 254

// LabelValue is a tagged voxel label: unset, explicitly erased, or a class
// id in 1..MaxClassID.
type LabelValue struct {
	State LabelState
	ID    uint8 // valid only when State == Class
}

// ClassLabel returns a LabelValue for the given class id.
func ClassLabel(id uint8) LabelValue {
	return LabelValue{State: Class, ID: id}
}

// ErasedLabel is the explicit "unset this voxel" value.
var ErasedLabel = LabelValue{State: Erased}

// UnsetLabel is the "no label" value.
var UnsetLabel = LabelValue{State: Unset}

// IsSet returns true for class labels only.
func (v LabelValue) IsSet() bool {
	return v.State == Class
}

func (v LabelValue) String() string {
	switch v.State {
	case Unset:
		return "unset"
	case Erased:
		return "erased"
	default:
		return fmt.Sprintf("class %d", v.ID)
	}
}

// DecodeStoredLabel interprets a stored block byte.  Erased voxels are
// stored as zero, identical to unset: erasure removes a label rather than
// recording one.
func DecodeStoredLabel(b uint8) LabelValue {
	if b == 0 {
		return UnsetLabel
	}
	return ClassLabel(b)
}

// NormalizeIngest maps a byte from an externally produced label volume to
// its stored form, translating the legacy eraser value to zero.
func NormalizeIngest(b uint8) uint8 {
	if b == LegacyEraser {
		return 0
	}
	return b
}
