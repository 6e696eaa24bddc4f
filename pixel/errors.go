package pixel

import "fmt"

// DatasetConstraintError is returned when a new lane's image violates the
// cross-lane shape invariants.  The lane addition is rejected and never
// retried automatically.
type DatasetConstraintError struct {
	Component string
	Reason    string
}

func (e *DatasetConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Component, e.Reason)
}

// RangeError is returned for a label read or write outside the declared
// shape.  It is fatal to that single operation, not the pipeline.
type RangeError struct {
	Coord PointNd
	Shape TaggedShape
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("coordinate %s outside shape %s", e.Coord, e.Shape)
}
