// Package repository provides the persistence gateway for the engine.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"playguard/internal/model"
)

// Common errors for gateway operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientFunds is returned when a debit would make a child's
	// balance negative. The balance is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Gateway is the persistence boundary of the engine. Implementations must
// make InsertUnlockIfAbsent and AppendTransaction safe under the engine's
// per-child serialization: a duplicate unlock insert reports false instead
// of erroring, and a debit below zero returns ErrInsufficientFunds.
type Gateway interface {
	// LoadGameData returns the persisted state bag for (game, child), or
	// the zero value when none has been saved yet.
	LoadGameData(ctx context.Context, gameID, childID string) (model.GameData, error)
	SaveGameData(ctx context.Context, gameID, childID string, data model.GameData) error

	// Unlocks returns the achievement IDs already unlocked for (game, child).
	Unlocks(ctx context.Context, gameID, childID string) ([]string, error)
	// InsertUnlockIfAbsent records an unlock. It returns false without
	// error when the record already exists.
	InsertUnlockIfAbsent(ctx context.Context, rec model.UnlockRecord) (bool, error)

	// Balance returns the child's current balance; zero for an unknown child.
	Balance(ctx context.Context, childID string) (int64, error)
	// AppendTransaction atomically applies a signed delta and records the
	// transaction with its balance-after. Underflow returns
	// ErrInsufficientFunds and leaves the balance unchanged.
	AppendTransaction(ctx context.Context, childID string, delta int64, reason string) (*model.CurrencyTransaction, error)
	// Transactions returns the child's history, newest first. A limit of
	// zero or less returns the full history.
	Transactions(ctx context.Context, childID string, limit int) ([]*model.CurrencyTransaction, error)
	// DaySummary totals the child's earnings and spending (both positive
	// numbers) for the calendar day containing the given time.
	DaySummary(ctx context.Context, childID string, day time.Time) (earned, spent int64, err error)

	// Approval returns the approval record for (game, child), or ErrNotFound.
	Approval(ctx context.Context, gameID, childID string) (*model.ApprovalRecord, error)
	// ApprovalByID returns the approval record with the given request ID.
	ApprovalByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRecord, error)
	UpsertApproval(ctx context.Context, rec *model.ApprovalRecord) error

	// PlayMinutesOn returns the child's accumulated play minutes for the
	// calendar day containing the given time (local timezone).
	PlayMinutesOn(ctx context.Context, childID string, day time.Time) (int, error)
	AddPlayMinutes(ctx context.Context, childID string, day time.Time, minutes int) error

	// LastPlayDay returns the child's last recorded play day across all
	// games ("2006-01-02"), or "" when the child has never played.
	LastPlayDay(ctx context.Context, childID string) (string, error)
	SetLastPlayDay(ctx context.Context, childID string, day string) error
	// ClaimPlayDay records day as the child's last play day when it is
	// later than the stored one, reporting whether this call advanced it.
	// The compare-and-set must be atomic: of concurrent claims for the
	// same day, exactly one succeeds. Days at or before the stored one
	// never claim, so late-delivered events cannot roll the stamp back.
	ClaimPlayDay(ctx context.Context, childID string, day string) (bool, error)

	// GamesPlayed counts distinct games the child has saved state for.
	GamesPlayed(ctx context.Context, childID string) (int, error)

	// Sync queue persistence. Items survive process restarts.
	EnqueueSyncItem(ctx context.Context, item *model.SyncItem) error
	// DueSyncItems returns items whose next attempt time has passed,
	// oldest first.
	DueSyncItems(ctx context.Context, now time.Time, limit int) ([]*model.SyncItem, error)
	RescheduleSyncItem(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error
	DeleteSyncItem(ctx context.Context, id uuid.UUID) error
}

// DayKey formats a time as the engine's calendar-day key in local time.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
