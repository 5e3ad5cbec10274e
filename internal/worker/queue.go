// Package worker runs the background sync queue, draining persisted items
// toward the remote store.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"playguard/internal/config"
	"playguard/internal/model"
	"playguard/internal/remote"
	"playguard/internal/repository"
)

// Queue persists sync items and pushes them to the remote store in the
// background. Delivery is at-least-once: an item is deleted only after the
// sink acknowledges it, and retry state survives restarts because it lives
// in the gateway, not in memory.
type Queue struct {
	gw   repository.Gateway
	sink remote.Sink
	cfg  config.SyncConfig

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewQueue creates a sync queue worker.
func NewQueue(gw repository.Gateway, sink remote.Sink, cfg config.SyncConfig) *Queue {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	return &Queue{
		gw:   gw,
		sink: sink,
		cfg:  cfg,
	}
}

// Enqueue persists the item for delivery. Implements service.Enqueuer.
func (q *Queue) Enqueue(ctx context.Context, item *model.SyncItem) error {
	return q.gw.EnqueueSyncItem(ctx, item)
}

// Start launches the background drain loop. A stopped queue can be
// started again; each start gets fresh lifecycle channels.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})

	go q.run(q.stopCh, q.doneCh)
	log.Info().
		Dur("interval", q.cfg.Interval).
		Int("batch_size", q.cfg.BatchSize).
		Msg("sync queue started")
}

// Stop signals the drain loop to exit and waits for it.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stopCh, doneCh := q.stopCh, q.doneCh
	q.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Info().Msg("sync queue stopped")
}

func (q *Queue) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			q.Drain(context.Background())
		}
	}
}

// Drain pushes every currently-due item once. Exported so callers can
// force a pass outside the ticker, e.g. at shutdown.
func (q *Queue) Drain(ctx context.Context) {
	now := time.Now()
	items, err := q.gw.DueSyncItems(ctx, now, q.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to load due sync items")
		return
	}

	for _, item := range items {
		q.deliver(ctx, item, now)
	}
}

// deliver pushes one item. Success and permanent rejection both remove the
// item; a transient failure reschedules it with exponential backoff.
func (q *Queue) deliver(ctx context.Context, item *model.SyncItem, now time.Time) {
	err := q.sink.Push(ctx, item)
	if err == nil {
		if err := q.gw.DeleteSyncItem(ctx, item.ID); err != nil {
			// The item will be resent; the remote dedupes on the
			// idempotency key.
			log.Warn().Err(err).Str("item_id", item.ID.String()).Msg("failed to delete acknowledged sync item")
		}
		return
	}

	if errors.Is(err, remote.ErrPermanent) {
		log.Error().Err(err).
			Str("item_id", item.ID.String()).
			Str("kind", string(item.Kind)).
			Str("idempotency_key", item.IdempotencyKey).
			Msg("sync item permanently rejected, dropping")
		if err := q.gw.DeleteSyncItem(ctx, item.ID); err != nil {
			log.Warn().Err(err).Str("item_id", item.ID.String()).Msg("failed to delete rejected sync item")
		}
		return
	}

	attempts := item.Attempts + 1
	next := now.Add(q.retryDelay(attempts))
	if err := q.gw.RescheduleSyncItem(ctx, item.ID, attempts, next); err != nil {
		log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to reschedule sync item")
		return
	}
	log.Debug().
		Str("item_id", item.ID.String()).
		Int("attempts", attempts).
		Time("next_attempt", next).
		Msg("sync item rescheduled")
}

// retryDelay computes the backoff for the given attempt count: the initial
// interval doubled per attempt, capped at the configured maximum. Jitter is
// disabled so delays grow monotonically.
func (q *Queue) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.InitialBackoff
	b.MaxInterval = q.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
