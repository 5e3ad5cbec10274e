package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playguard/internal/config"
	"playguard/internal/model"
	"playguard/internal/remote"
	"playguard/internal/repository"
)

// fakeSink scripts Push results in order, then succeeds.
type fakeSink struct {
	results []error
	pushed  []string
}

func (s *fakeSink) Push(_ context.Context, item *model.SyncItem) error {
	s.pushed = append(s.pushed, item.IdempotencyKey)
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:       time.Second,
		BatchSize:      10,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

func TestDrainDeliversAndDeletes(t *testing.T) {
	gw := repository.NewMemory()
	sink := &fakeSink{}
	q := NewQueue(gw, sink, testConfig())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.NewSyncItem(model.SyncEvent, "ev-1", []byte(`{}`))))
	require.NoError(t, q.Enqueue(ctx, model.NewSyncItem(model.SyncUnlock, "g:c:a", []byte(`{}`))))

	q.Drain(ctx)

	assert.ElementsMatch(t, []string{"ev-1", "g:c:a"}, sink.pushed)
	assert.Empty(t, gw.PendingSyncItems())
}

func TestDrainTransientFailureBacksOff(t *testing.T) {
	gw := repository.NewMemory()
	sink := &fakeSink{results: []error{
		fmt.Errorf("%w: connection refused", remote.ErrTransient),
		fmt.Errorf("%w: connection refused", remote.ErrTransient),
		fmt.Errorf("%w: connection refused", remote.ErrTransient),
	}}
	q := NewQueue(gw, sink, testConfig())
	ctx := context.Background()

	item := model.NewSyncItem(model.SyncTransaction, "tx-1", []byte(`{}`))
	require.NoError(t, q.Enqueue(ctx, item))

	var delays []time.Duration
	for i := 0; i < 3; i++ {
		pending := gw.PendingSyncItems()
		require.Len(t, pending, 1)
		// Make the item due regardless of its scheduled time.
		require.NoError(t, gw.RescheduleSyncItem(ctx, item.ID, pending[0].Attempts, time.Now().Add(-time.Millisecond)))

		before := time.Now()
		q.Drain(ctx)

		pending = gw.PendingSyncItems()
		require.Len(t, pending, 1, "item must stay queued after transient failure")
		assert.Equal(t, i+1, pending[0].Attempts)
		delays = append(delays, pending[0].NextAttemptAt.Sub(before))
	}

	// Backoff doubles: 1s, 2s, 4s. Allow slack for scheduling.
	assert.InDelta(t, float64(time.Second), float64(delays[0]), float64(200*time.Millisecond))
	assert.InDelta(t, float64(2*time.Second), float64(delays[1]), float64(200*time.Millisecond))
	assert.InDelta(t, float64(4*time.Second), float64(delays[2]), float64(200*time.Millisecond))
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1], "retry delay must grow")
	}

	// Fourth attempt succeeds and the item leaves the queue.
	require.NoError(t, gw.RescheduleSyncItem(ctx, item.ID, 3, time.Now().Add(-time.Millisecond)))
	q.Drain(ctx)
	assert.Empty(t, gw.PendingSyncItems())
}

func TestRetryDelayCapped(t *testing.T) {
	q := NewQueue(repository.NewMemory(), &fakeSink{}, testConfig())

	assert.Equal(t, time.Second, q.retryDelay(1))
	assert.Equal(t, 2*time.Second, q.retryDelay(2))
	assert.Equal(t, 32*time.Second, q.retryDelay(6))
	assert.Equal(t, time.Minute, q.retryDelay(7))
	assert.Equal(t, time.Minute, q.retryDelay(20), "delay stays at the cap")
}

func TestDrainPermanentFailureDrops(t *testing.T) {
	gw := repository.NewMemory()
	sink := &fakeSink{results: []error{
		fmt.Errorf("%w: remote returned 422", remote.ErrPermanent),
	}}
	q := NewQueue(gw, sink, testConfig())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.NewSyncItem(model.SyncEvent, "bad", []byte(`{}`))))

	q.Drain(ctx)
	assert.Empty(t, gw.PendingSyncItems(), "permanently rejected item is dropped")

	q.Drain(ctx)
	assert.Len(t, sink.pushed, 1, "dropped item is never retried")
}

func TestDrainSkipsNotYetDue(t *testing.T) {
	gw := repository.NewMemory()
	sink := &fakeSink{}
	q := NewQueue(gw, sink, testConfig())
	ctx := context.Background()

	item := model.NewSyncItem(model.SyncEvent, "later", []byte(`{}`))
	item.NextAttemptAt = time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, item))

	q.Drain(ctx)
	assert.Empty(t, sink.pushed)
	assert.Len(t, gw.PendingSyncItems(), 1)
}

func TestStartStop(t *testing.T) {
	gw := repository.NewMemory()
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	q := NewQueue(gw, sink, cfg)

	require.NoError(t, q.Enqueue(context.Background(), model.NewSyncItem(model.SyncEvent, "ticked", []byte(`{}`))))

	q.Start()
	assert.Eventually(t, func() bool {
		return len(gw.PendingSyncItems()) == 0
	}, time.Second, 10*time.Millisecond)
	q.Stop()
}

func TestStartStopRestart(t *testing.T) {
	gw := repository.NewMemory()
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	q := NewQueue(gw, sink, cfg)

	q.Start()
	q.Stop()

	// Stopping twice is a no-op, starting again relaunches the loop.
	q.Stop()
	require.NoError(t, q.Enqueue(context.Background(), model.NewSyncItem(model.SyncEvent, "after-restart", []byte(`{}`))))

	assert.NotPanics(t, q.Start)
	assert.Eventually(t, func() bool {
		return len(gw.PendingSyncItems()) == 0
	}, time.Second, 10*time.Millisecond)
	q.Stop()
}
