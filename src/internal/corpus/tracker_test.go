package corpus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerExcludesConcurrentSweeps(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryRepository(), 5*time.Millisecond)

	require.NoError(t, tr.Acquire(ctx))
	running, err := tr.Running(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Acquire(short), context.DeadlineExceeded)

	require.NoError(t, tr.Release(ctx))
	running, err = tr.Running(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestTrackerTakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	// 上一次扫描被强杀，标记一直留着
	stale := int(time.Now().Add(-2 * time.Hour).Unix())
	ok, err := repo.CompareAndSetFlag(ctx, FlagMatchingRunning, 0, stale)
	require.NoError(t, err)
	require.True(t, ok)

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	strict := NewTracker(repo, 5*time.Millisecond).WithLease(3 * time.Hour)
	assert.ErrorIs(t, strict.Acquire(short), context.DeadlineExceeded)

	tr := NewTracker(repo, 5*time.Millisecond).WithLease(time.Hour)
	require.NoError(t, tr.Acquire(ctx))
	cur, err := repo.Flag(ctx, FlagMatchingRunning)
	require.NoError(t, err)
	assert.Greater(t, cur, stale)

	require.NoError(t, tr.Release(ctx))
	running, err := tr.Running(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestTrackerUnlock(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	tr := NewTracker(repo, 5*time.Millisecond).WithLease(0)

	cleared, err := tr.Unlock(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)

	ok, err := repo.CompareAndSetFlag(ctx, FlagMatchingRunning, 0, int(time.Now().Unix()))
	require.NoError(t, err)
	require.True(t, ok)
	cleared, err = tr.Unlock(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	short, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, tr.Acquire(short))
}

func TestTrackerWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryRepository(), 2*time.Millisecond)
	require.NoError(t, tr.Acquire(ctx))

	done := make(chan error, 1)
	go func() { done <- tr.Acquire(ctx) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tr.Release(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never returned")
	}
}
