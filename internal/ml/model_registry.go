package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/temcen/seasonrec/internal/interactions"
	"github.com/temcen/seasonrec/pkg/models"
)

type ModelState string

const (
	StateUntrained ModelState = "untrained"
	StateTraining  ModelState = "training"
	StateTrained   ModelState = "trained"
	StatePersisted ModelState = "persisted"
	StateLoaded    ModelState = "loaded"
)

// TrainingLock excludes training runs in other processes sharing the same
// snapshot store. Acquire returns ErrTrainingConflict when the lock is held.
type TrainingLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// RegistryConfig holds the fitting parameters used for every training run.
type RegistryConfig struct {
	Rank              int
	Seed              uint64
	ContentComponents int
	Params            models.HybridParameters
}

// ModelRegistry owns the current snapshot: it trains new ones, persists
// them, and lazily loads the last persisted one.
type ModelRegistry struct {
	config RegistryConfig
	store  SnapshotStore
	lock   TrainingLock
	logger *logrus.Logger

	trainMu sync.Mutex

	mu            sync.RWMutex
	current       *Snapshot
	generation    string
	rejected      string
	state         ModelState
	lastTrainedAt *time.Time

	now func() time.Time
	fit func(*interactions.Matrix, []models.Product) (*Snapshot, error)
}

func NewModelRegistry(config RegistryConfig, store SnapshotStore, logger *logrus.Logger) *ModelRegistry {
	r := &ModelRegistry{
		config: config,
		store:  store,
		logger: logger,
		state:  StateUntrained,
		now:    time.Now,
	}
	r.fit = r.fitModels
	return r
}

// SetTrainingLock installs a cross-process lock taken after the local one.
func (r *ModelRegistry) SetTrainingLock(lock TrainingLock) {
	r.lock = lock
}

func (r *ModelRegistry) Config() RegistryConfig {
	return r.config
}

// Train fits both models on the given data, persists the result and makes
// it current. On any failure, including the caller's context expiring, the
// previous snapshot stays in place.
func (r *ModelRegistry) Train(ctx context.Context, records []models.InteractionRecord, products []models.Product) (*Snapshot, error) {
	if !r.trainMu.TryLock() {
		return nil, ErrTrainingConflict
	}

	release := func() {}
	if r.lock != nil {
		rel, err := r.lock.Acquire(ctx)
		if err != nil {
			r.trainMu.Unlock()
			return nil, err
		}
		release = rel
	}
	unlock := func() {
		release()
		r.trainMu.Unlock()
	}

	matrix := interactions.Aggregate(records)
	if matrix.Empty() || len(products) == 0 {
		unlock()
		return nil, ErrDataInsufficient
	}

	previous := r.setState(StateTraining)
	start := r.now()

	r.logger.WithFields(logrus.Fields{
		"interactions": matrix.Len(),
		"users":        len(matrix.Users()),
		"products":     len(products),
		"skipped":      matrix.Skipped(),
	}).Info("Training recommendation models")

	type result struct {
		snap *Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := r.fit(matrix, products)
		done <- result{snap: snap, err: err}
	}()

	select {
	case <-ctx.Done():
		r.setState(previous)
		go func() {
			<-done
			unlock()
		}()
		r.logger.WithError(ctx.Err()).Warn("Training abandoned")
		return nil, fmt.Errorf("training abandoned: %w", ctx.Err())

	case res := <-done:
		defer unlock()
		if res.err != nil {
			r.setState(previous)
			return nil, fmt.Errorf("failed to train models: %w", res.err)
		}
		r.setState(StateTrained)

		blobs, err := res.snap.Encode()
		if err != nil {
			r.setState(previous)
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		if err := r.store.Save(ctx, blobs); err != nil {
			r.setState(previous)
			return nil, fmt.Errorf("failed to persist snapshot: %w", err)
		}
		generation, err := r.store.Generation(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to read snapshot generation")
		}

		r.mu.Lock()
		r.current = res.snap
		r.generation = generation
		r.state = StatePersisted
		trainedAt := res.snap.TrainedAt
		r.lastTrainedAt = &trainedAt
		r.mu.Unlock()

		r.logger.WithFields(logrus.Fields{
			"version":    res.snap.Version,
			"rank":       res.snap.Behavioral.Rank(),
			"components": res.snap.Content.Components(),
			"duration":   r.now().Sub(start).String(),
		}).Info("Recommendation models trained")

		return res.snap, nil
	}
}

func (r *ModelRegistry) fitModels(matrix *interactions.Matrix, products []models.Product) (*Snapshot, error) {
	var (
		behavioral *BehavioralModel
		content    *ContentModel
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		behavioral, err = FitBehavioral(matrix, r.config.Rank, r.config.Seed)
		return err
	})
	g.Go(func() error {
		var err error
		content, err = FitContent(products, r.config.ContentComponents, r.config.Seed)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{
		Behavioral: behavioral,
		Content:    content,
		Params:     r.config.Params,
		TrainedAt:  r.now().UTC(),
		Version:    uuid.New().String(),
	}, nil
}

// Load returns the most recently persisted snapshot. The store's
// generation is checked on every call and blobs are decoded again only when
// another process (the trainer CLI, another replica) published a new one.
// A missing or unreadable snapshot is reported as not available rather than
// as an error; an unreadable newer generation leaves the held one in use.
func (r *ModelRegistry) Load(ctx context.Context) (*Snapshot, bool) {
	r.mu.RLock()
	current, held, rejected := r.current, r.generation, r.rejected
	r.mu.RUnlock()

	generation, err := r.store.Generation(ctx)
	switch {
	case err != nil && current != nil:
		if !errors.Is(err, ErrSnapshotNotFound) {
			r.logger.WithError(err).Warn("Failed to read snapshot generation")
		}
		return current, true
	case err != nil:
		r.reportMissing(err)
		return nil, false
	case current != nil && (generation == held || generation == rejected):
		return current, true
	}

	blobs, err := r.store.Load(ctx)
	if err != nil {
		if current != nil {
			r.logger.WithError(err).Warn("Failed to read model snapshot")
			return current, true
		}
		r.reportMissing(err)
		return nil, false
	}

	snap, err := DecodeSnapshot(blobs)
	if err != nil {
		r.logger.WithError(err).WithField("generation", generation).Warn("Discarding unreadable model snapshot")
		if current != nil {
			r.mu.Lock()
			r.rejected = generation
			r.mu.Unlock()
			return current, true
		}
		r.markUntrained()
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.generation == generation {
		return r.current, true
	}
	r.current = snap
	r.generation = generation
	r.rejected = ""
	if r.state != StateTraining {
		r.state = StateLoaded
	}
	trainedAt := snap.TrainedAt
	r.lastTrainedAt = &trainedAt

	r.logger.WithFields(logrus.Fields{
		"version":    snap.Version,
		"generation": generation,
	}).Info("Model snapshot loaded")
	return snap, true
}

func (r *ModelRegistry) reportMissing(err error) {
	if errors.Is(err, ErrSnapshotNotFound) {
		r.logger.Debug("No persisted model snapshot")
	} else {
		r.logger.WithError(err).Warn("Failed to read model snapshot")
	}
	r.markUntrained()
}

// Invalidate drops the in-memory snapshot so the next Load reads the store.
func (r *ModelRegistry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	r.generation = ""
	r.rejected = ""
	if r.state != StateTraining {
		r.state = StateUntrained
	}
}

func (r *ModelRegistry) State() ModelState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Status reports the lifecycle state and the persisted blobs. Counts are
// left for the caller to fill in.
func (r *ModelRegistry) Status(ctx context.Context) models.ModelStatus {
	r.mu.RLock()
	status := models.ModelStatus{
		Trained:       r.current != nil,
		State:         string(r.state),
		LastTrainedAt: r.lastTrainedAt,
	}
	r.mu.RUnlock()

	blobs, err := r.store.Stat(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to stat model snapshot")
		return status
	}
	status.Snapshot = blobs
	if !status.Trained {
		for _, blob := range blobs {
			if blob.Exists {
				status.Trained = true
				break
			}
		}
	}
	return status
}

func (r *ModelRegistry) setState(state ModelState) ModelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.state
	r.state = state
	return previous
}

func (r *ModelRegistry) markUntrained() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateTraining {
		r.state = StateUntrained
	}
}
