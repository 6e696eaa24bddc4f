package classify

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yutiansut/ilastik/pixel"
)

// TrainingSource supplies the trainer with everything it needs from the
// pipeline: a version counter covering all training inputs (labeled blocks,
// training images, and the max label id) and the gathered samples.
type TrainingSource interface {
	// TrainingVersion bumps whenever any lane's nonzero-block set, any
	// labeled block's content, any training image, or the max label id
	// changes.
	TrainingVersion() uint64

	// MaxLabel returns the highest label class id currently in use, 0 when
	// nothing is labeled yet.
	MaxLabel() uint8

	// GatherSamples streams the labeled voxels of all nonzero blocks across
	// all lanes together with the corresponding raw data.
	GatherSamples(ctx context.Context) (*SampleSet, error)
}

// Trainer owns the single-slot classifier cache.  The cache is
// single-writer (the trainer itself) and multi-reader (all lane
// predictors).  Retraining is lazy: a read retrains only when the source
// version moved and the pipeline is not frozen.
type Trainer struct {
	factory Factory

	mu        sync.RWMutex
	cached    Classifier // nil is the no-classifier sentinel
	cachedVer uint64     // TrainingVersion the cached instance was built from
	committed bool       // at least one result (possibly sentinel) committed
	gen       uint64     // bumps on every commit; stamps prediction cache entries

	group singleflight.Group
}

func NewTrainer(factory Factory) *Trainer {
	return &Trainer{factory: factory}
}

// Generation returns the commit counter of the classifier cache.
// Prediction cache entries record the generation they were computed from.
func (t *Trainer) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen
}

// ForceClassifier installs a pre-computed classifier, e.g., one loaded from
// a project file by a serializer.  It is stamped with the source's current
// version so reads serve it until the next edit.
func (t *Trainer) ForceClassifier(clf Classifier, src TrainingSource) {
	t.commit(clf, src.TrainingVersion())
}

func (t *Trainer) commit(clf Classifier, ver uint64) {
	t.mu.Lock()
	t.cached = clf
	t.cachedVer = ver
	t.committed = true
	t.gen++
	t.mu.Unlock()
}

// Classifier returns the current classifier and its cache generation,
// lazily retraining if the source version moved.  While frozen the
// previously cached instance is served regardless of staleness.  A nil
// classifier with a nil error is the no-classifier sentinel.
//
// If training inputs change while a retrain is in flight, the result is
// committed with the version it was trained from, which is already stale;
// it is served to the waiting readers but the next unfrozen read retrains.
// A read therefore always observes a classifier at least as new as the last
// completed training preceding its invocation.
func (t *Trainer) Classifier(ctx context.Context, src TrainingSource, frozen bool) (Classifier, uint64, error) {
	t.mu.RLock()
	cached, cachedVer, committed, gen := t.cached, t.cachedVer, t.committed, t.gen
	t.mu.RUnlock()

	if frozen {
		// Freeze suppresses retraining entirely: serve whatever was last
		// committed, or the sentinel if nothing ever was.
		if committed {
			return cached, gen, nil
		}
		return nil, gen, nil
	}
	ver := src.TrainingVersion()
	if committed && cachedVer == ver {
		return cached, gen, nil
	}

	// Concurrent reads needing a retrain collapse into one training run.
	result, err, _ := t.group.Do("train", func() (interface{}, error) {
		// Another waiter may have finished the work before we were queued.
		t.mu.RLock()
		cached, cachedVer, committed := t.cached, t.cachedVer, t.committed
		t.mu.RUnlock()
		snapshot := src.TrainingVersion()
		if committed && cachedVer == snapshot {
			return cached, nil
		}

		if src.MaxLabel() == 0 {
			// No labels of any class yet: commit the sentinel without
			// invoking the factory.
			t.commit(nil, snapshot)
			return nil, nil
		}

		tlog := pixel.NewTimeLog()
		samples, err := src.GatherSamples(ctx)
		if err != nil {
			return nil, err
		}
		clf, err := t.factory.Create(ctx, samples)
		if err != nil {
			// The previous cached classifier stays untouched.
			return nil, err
		}
		tlog.Infof("trained %s classifier on %d samples, %d classes",
			t.factory.Name(), samples.Len(), samples.NumClasses)
		t.commit(clf, snapshot)
		return clf, nil
	})
	if err != nil {
		return nil, 0, err
	}

	t.mu.RLock()
	gen = t.gen
	t.mu.RUnlock()
	if result == nil {
		return nil, gen, nil
	}
	return result.(Classifier), gen, nil
}
