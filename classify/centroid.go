package classify

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CentroidFactory trains a nearest-centroid classifier: one mean feature
// vector per class, with probabilities from a softmax over negative
// distances.  It is the built-in reference model for headless runs and
// tests; production deployments plug in their own Factory.
type CentroidFactory struct {
	// TrainTileEdge and PredictTileEdge are the preferred square tile edges
	// reported to the block shape planner.
	TrainTileEdge   int32
	PredictTileEdge int32
}

const (
	defaultTrainTileEdge   = 64
	defaultPredictTileEdge = 256
)

func (f CentroidFactory) Name() string {
	return "nearest-centroid"
}

func (f CentroidFactory) DetermineBlockShape(extents []int32, train bool) []int32 {
	edge := f.PredictTileEdge
	if train {
		edge = f.TrainTileEdge
	}
	if edge < 1 {
		if train {
			edge = defaultTrainTileEdge
		} else {
			edge = defaultPredictTileEdge
		}
	}
	tile := make([]int32, len(extents))
	for i, ext := range extents {
		if edge < ext {
			tile[i] = edge
		} else {
			tile[i] = ext
		}
	}
	return tile
}

func (f CentroidFactory) Create(ctx context.Context, samples *SampleSet) (Classifier, error) {
	if samples.Len() == 0 {
		return nil, fmt.Errorf("no labeled samples to train on")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	numFeatures := len(samples.Features[0])
	sums := make(map[uint8]*mat.VecDense, samples.NumClasses)
	counts := make(map[uint8]float64, samples.NumClasses)
	for i, label := range samples.Labels {
		if len(samples.Features[i]) != numFeatures {
			return nil, fmt.Errorf("sample %d has %d features, want %d", i, len(samples.Features[i]), numFeatures)
		}
		v, found := sums[label]
		if !found {
			v = mat.NewVecDense(numFeatures, nil)
			sums[label] = v
		}
		v.AddVec(v, mat.NewVecDense(numFeatures, samples.Features[i]))
		counts[label]++
	}

	clf := &centroidClassifier{
		numClasses:  samples.NumClasses,
		numFeatures: numFeatures,
		centroids:   make(map[uint8]*mat.VecDense, len(sums)),
	}
	for label, sum := range sums {
		mean := mat.NewVecDense(numFeatures, nil)
		mean.ScaleVec(1/counts[label], sum)
		clf.centroids[label] = mean
	}
	return clf, nil
}

type centroidClassifier struct {
	numClasses  int
	numFeatures int
	centroids   map[uint8]*mat.VecDense
}

func (c *centroidClassifier) NumClasses() int {
	return c.numClasses
}

func (c *centroidClassifier) PredictProbabilities(features [][]float64) ([][]float64, error) {
	probs := make([][]float64, len(features))
	diff := mat.NewVecDense(c.numFeatures, nil)
	for i, row := range features {
		if len(row) != c.numFeatures {
			return nil, fmt.Errorf("feature row %d has %d values, want %d", i, len(row), c.numFeatures)
		}
		v := mat.NewVecDense(c.numFeatures, row)
		scores := make([]float64, c.numClasses)
		for k := range scores {
			scores[k] = math.Inf(-1)
		}
		for label, centroid := range c.centroids {
			diff.SubVec(v, centroid)
			scores[label-1] = -mat.Norm(diff, 2)
		}
		// Softmax over negative distances, shifted by the max for numeric
		// stability.
		max := floats.Max(scores)
		var total float64
		out := make([]float64, c.numClasses)
		for k, score := range scores {
			if math.IsInf(score, -1) {
				continue
			}
			out[k] = math.Exp(score - max)
			total += out[k]
		}
		if total > 0 {
			floats.Scale(1/total, out)
		}
		probs[i] = out
	}
	return probs, nil
}
