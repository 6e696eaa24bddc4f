/*
	Package pixel provides types, constants and functions that have no other
	dependencies and can be used by all packages within the pipeline: tagged
	shapes, voxel and block coordinates, label values, the error taxonomy,
	block serialization, and logging.
*/
package pixel

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// AxisKey identifies the semantic of one axis of a tagged shape.  Whenever
// the units of a value differ, e.g., a voxel coordinate versus a block
// coordinate, we use a separate type to reinforce the distinct natures of
// the values and prevent accidental misuse.
type AxisKey byte

const (
	TimeAxis    AxisKey = 't'
	ZAxis       AxisKey = 'z'
	YAxis       AxisKey = 'y'
	XAxis       AxisKey = 'x'
	ChannelAxis AxisKey = 'c'
)

// SpatialAxes are the axis keys over which blocks tile volumes, in canonical
// order.
var SpatialAxes = []AxisKey{ZAxis, YAxis, XAxis}

// IsSpatial returns true for x, y, and z axes.
func (k AxisKey) IsSpatial() bool {
	return k == XAxis || k == YAxis || k == ZAxis
}

func (k AxisKey) String() string {
	return string(rune(k))
}
