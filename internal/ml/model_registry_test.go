package ml

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/seasonrec/internal/interactions"
	"github.com/temcen/seasonrec/pkg/models"
)

type MockTrainingLock struct {
	mock.Mock
}

func (m *MockTrainingLock) Acquire(ctx context.Context) (func(), error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func testRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Rank:              3,
		Seed:              42,
		ContentComponents: 50,
		Params:            models.DefaultHybridParameters(),
	}
}

func newTestRegistry(t *testing.T) (*ModelRegistry, *FileSnapshotStore) {
	t.Helper()
	store := NewFileSnapshotStore(t.TempDir(), quietLogger())
	return NewModelRegistry(testRegistryConfig(), store, quietLogger()), store
}

func TestModelRegistry_Train(t *testing.T) {
	ctx := context.Background()

	t.Run("trains persists and serves", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		assert.Equal(t, StateUntrained, registry.State())

		snap, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)
		assert.Equal(t, StatePersisted, registry.State())
		assert.NotEmpty(t, snap.Version)

		loaded, ok := registry.Load(ctx)
		require.True(t, ok)
		assert.Same(t, snap, loaded)

		blobs, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, blobs, 3)

		status := registry.Status(ctx)
		assert.True(t, status.Trained)
		assert.Equal(t, string(StatePersisted), status.State)
		require.NotNil(t, status.LastTrainedAt)
		assert.Len(t, status.Snapshot, 3)
	})

	t.Run("empty interactions keep the previous snapshot", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		first, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)
		before, err := store.Load(ctx)
		require.NoError(t, err)

		_, err = registry.Train(ctx, nil, sampleProducts())
		assert.ErrorIs(t, err, ErrDataInsufficient)

		_, err = registry.Train(ctx, sampleInteractions(), nil)
		assert.ErrorIs(t, err, ErrDataInsufficient)

		after, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		current, ok := registry.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, first.Version, current.Version)
		assert.Equal(t, StatePersisted, registry.State())
	})

	t.Run("concurrent run rejected", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		registry.trainMu.Lock()
		defer registry.trainMu.Unlock()

		_, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		assert.ErrorIs(t, err, ErrTrainingConflict)
	})

	t.Run("distributed lock held elsewhere", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		lock := new(MockTrainingLock)
		lock.On("Acquire", ctx).Return(nil, ErrTrainingConflict)
		registry.SetTrainingLock(lock)

		_, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		assert.ErrorIs(t, err, ErrTrainingConflict)
		assert.Equal(t, StateUntrained, registry.State())

		// the local lock must have been released
		assert.True(t, registry.trainMu.TryLock())
		registry.trainMu.Unlock()
		lock.AssertExpectations(t)
	})

	t.Run("distributed lock released after training", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		released := false
		lock := new(MockTrainingLock)
		lock.On("Acquire", ctx).Return(func() { released = true }, nil)
		registry.SetTrainingLock(lock)

		_, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)
		assert.True(t, released)
	})

	t.Run("deadline abandons the run", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		unblock := make(chan struct{})
		registry.fit = func(*interactions.Matrix, []models.Product) (*Snapshot, error) {
			<-unblock
			return nil, errors.New("abandoned fit")
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := registry.Train(timeoutCtx, sampleInteractions(), sampleProducts())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StateUntrained, registry.State())

		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, ErrSnapshotNotFound)

		// the lock is held until the abandoned fit returns
		_, err = registry.Train(ctx, sampleInteractions(), sampleProducts())
		assert.ErrorIs(t, err, ErrTrainingConflict)

		close(unblock)
		assert.Eventually(t, func() bool {
			if registry.trainMu.TryLock() {
				registry.trainMu.Unlock()
				return true
			}
			return false
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("fit failure keeps state", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		registry.fit = func(*interactions.Matrix, []models.Product) (*Snapshot, error) {
			return nil, errors.New("did not converge")
		}

		_, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		assert.Error(t, err)
		assert.Equal(t, StateUntrained, registry.State())
	})
}

func TestModelRegistry_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing persisted", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		snap, ok := registry.Load(ctx)
		assert.False(t, ok)
		assert.Nil(t, snap)
		assert.Equal(t, StateUntrained, registry.State())
		assert.False(t, registry.Status(ctx).Trained)
	})

	t.Run("restart reads persisted snapshot", func(t *testing.T) {
		store := NewFileSnapshotStore(t.TempDir(), quietLogger())
		trainer := NewModelRegistry(testRegistryConfig(), store, quietLogger())
		trained, err := trainer.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)

		server := NewModelRegistry(testRegistryConfig(), store, quietLogger())
		loaded, ok := server.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, trained.Version, loaded.Version)
		assert.Equal(t, StateLoaded, server.State())

		again, ok := server.Load(ctx)
		require.True(t, ok)
		assert.Same(t, loaded, again)
	})

	t.Run("corrupt snapshot reported as unavailable", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		require.NoError(t, store.Save(ctx, blobSet("garbage")))

		snap, ok := registry.Load(ctx)
		assert.False(t, ok)
		assert.Nil(t, snap)
		assert.Equal(t, StateUntrained, registry.State())
	})

	t.Run("invalidate drops the in-memory snapshot", func(t *testing.T) {
		registry, _ := newTestRegistry(t)
		trained, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)

		registry.Invalidate()
		assert.Equal(t, StateUntrained, registry.State())

		reloaded, ok := registry.Load(ctx)
		require.True(t, ok)
		assert.NotSame(t, trained, reloaded)
		assert.Equal(t, trained.Version, reloaded.Version)
		assert.Equal(t, StateLoaded, registry.State())
	})

	t.Run("follows snapshots published by another process", func(t *testing.T) {
		store := NewFileSnapshotStore(t.TempDir(), quietLogger())
		trainer := NewModelRegistry(testRegistryConfig(), store, quietLogger())
		server := NewModelRegistry(testRegistryConfig(), store, quietLogger())

		first, err := trainer.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)
		served, ok := server.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, first.Version, served.Version)

		second, err := trainer.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)
		require.NotEqual(t, first.Version, second.Version)

		served, ok = server.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, second.Version, served.Version)

		again, ok := server.Load(ctx)
		require.True(t, ok)
		assert.Same(t, served, again)
	})

	t.Run("unreadable newer generation keeps the held snapshot", func(t *testing.T) {
		registry, store := newTestRegistry(t)
		trained, err := registry.Train(ctx, sampleInteractions(), sampleProducts())
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, blobSet("garbage")))

		snap, ok := registry.Load(ctx)
		require.True(t, ok)
		assert.Same(t, trained, snap)
		assert.Equal(t, StatePersisted, registry.State())

		snap, ok = registry.Load(ctx)
		require.True(t, ok)
		assert.Same(t, trained, snap)
	})
}
