/*
	Package classify holds the classifier contracts, the block shape
	planner, the blocked trainer with its single-slot classifier cache, and
	the cacheless per-block predictor.  The concrete production classifier is
	pluggable through the Factory interface; a reference nearest-centroid
	factory is included for headless runs and tests.
*/
package classify

import "context"

// Classifier is an opaque trained model.  A nil Classifier is the
// designated "no classifier trained yet" sentinel: predictors must render a
// shape-correct all-zero probability map for it rather than fail.
type Classifier interface {
	// NumClasses returns the number of label classes the model was trained
	// with.
	NumClasses() int

	// PredictProbabilities returns one row of per-class probabilities for
	// each feature row.  Each output row has NumClasses entries.
	PredictProbabilities(features [][]float64) ([][]float64, error)
}

// Factory produces trainable classifiers and advises the planner on tile
// sizes.  HyperparametersPath and ModelPath are opaque handles passed
// through from the pipeline configuration, not interpreted by the core.
type Factory interface {
	// Name identifies the factory in logs.
	Name() string

	// DetermineBlockShape returns the preferred tile extents for the given
	// spatial extents.  Separate preferences apply for training block
	// gathering (train=true) and inference tiling (train=false).
	DetermineBlockShape(extents []int32, train bool) []int32

	// Create trains a classifier on the gathered samples.  It may block for
	// a non-trivial duration and must respect ctx cancellation.
	Create(ctx context.Context, samples *SampleSet) (Classifier, error)
}

// SampleSet is the training input gathered from all lanes' labeled blocks:
// one feature row (the raw channel values) and one class id per labeled
// voxel.
type SampleSet struct {
	Features   [][]float64
	Labels     []uint8
	NumClasses int
}

// Add appends one labeled sample.
func (ss *SampleSet) Add(features []float64, label uint8) {
	ss.Features = append(ss.Features, features)
	ss.Labels = append(ss.Labels, label)
}

// Len returns the number of samples.
func (ss *SampleSet) Len() int {
	return len(ss.Labels)
}
