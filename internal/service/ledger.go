package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"playguard/internal/model"
	"playguard/internal/pkg/lock"
	"playguard/internal/repository"
)

// Enqueuer hands items to the sync queue for best-effort remote delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, item *model.SyncItem) error
}

// Ledger maintains per-child currency balances. All mutations go through
// Apply, serialized per child; a debit that would underflow is rejected
// and leaves the balance unchanged.
type Ledger struct {
	gw        repository.Gateway
	locks     *lock.ChildLock
	listeners *Listeners
	queue     Enqueuer
}

// NewLedger creates a Ledger. queue may be nil when remote sync is off.
func NewLedger(gw repository.Gateway, locks *lock.ChildLock, listeners *Listeners, queue Enqueuer) *Ledger {
	return &Ledger{gw: gw, locks: locks, listeners: listeners, queue: queue}
}

// Apply adds a signed delta to the child's balance and appends the
// transaction. Positive deltas are earnings, negative ones spending.
// Returns the new balance, or ErrInsufficientFunds for an underflowing
// debit.
func (l *Ledger) Apply(ctx context.Context, childID string, delta int64, reason string) (int64, error) {
	if childID == "" {
		return 0, fmt.Errorf("%w: child id is required", ErrValidation)
	}

	l.locks.Lock(childID)
	tx, err := l.gw.AppendTransaction(ctx, childID, delta, reason)
	l.locks.Unlock(childID)
	if err != nil {
		return 0, err
	}

	log.Debug().
		Str("child_id", childID).
		Int64("amount", delta).
		Str("reason", reason).
		Int64("balance", tx.BalanceAfter).
		Msg("ledger transaction applied")

	l.listeners.notifyCurrency(childID, delta, reason)
	l.enqueue(ctx, tx)
	return tx.BalanceAfter, nil
}

// Spend debits the balance. amount must be positive; the transaction is
// recorded with a negative amount, which is how reporting distinguishes
// spending from earning.
func (l *Ledger) Spend(ctx context.Context, childID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: spend amount must be positive", ErrValidation)
	}
	return l.Apply(ctx, childID, -amount, reason)
}

// Balance returns the child's current balance.
func (l *Ledger) Balance(ctx context.Context, childID string) (int64, error) {
	return l.gw.Balance(ctx, childID)
}

// History returns the child's transactions, newest first.
func (l *Ledger) History(ctx context.Context, childID string, limit int) ([]*model.CurrencyTransaction, error) {
	return l.gw.Transactions(ctx, childID, limit)
}

// DaySummary returns the child's total earned and spent for the calendar
// day containing the given time, both as positive numbers.
func (l *Ledger) DaySummary(ctx context.Context, childID string, day time.Time) (earned, spent int64, err error) {
	return l.gw.DaySummary(ctx, childID, day)
}

// enqueue pushes the committed transaction toward the remote store. The
// local ledger is the source of truth; a queue failure is logged, never
// propagated.
func (l *Ledger) enqueue(ctx context.Context, tx *model.CurrencyTransaction) {
	if l.queue == nil {
		return
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("failed to encode transaction for sync")
		return
	}
	item := model.NewSyncItem(model.SyncTransaction, tx.ID.String(), payload)
	if err := l.queue.Enqueue(ctx, item); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("failed to enqueue transaction for sync")
	}
}
