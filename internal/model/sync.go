package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncKind identifies what a SyncItem carries.
type SyncKind string

const (
	SyncEvent       SyncKind = "event"
	SyncUnlock      SyncKind = "unlock"
	SyncTransaction SyncKind = "transaction"
	SyncGameData    SyncKind = "game_data"
)

// SyncItem wraps one record awaiting remote acknowledgment. Items are
// persisted so delivery survives process restarts; the remote store
// deduplicates on IdempotencyKey, making delivery at-least-once safe.
type SyncItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Kind           SyncKind  `db:"kind" json:"kind"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Payload        []byte    `db:"payload" json:"payload"`
	Attempts       int       `db:"attempts" json:"attempts"`
	NextAttemptAt  time.Time `db:"next_attempt_at" json:"next_attempt_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewSyncItem builds a pending item ready for immediate delivery.
func NewSyncItem(kind SyncKind, idempotencyKey string, payload []byte) *SyncItem {
	now := time.Now()
	return &SyncItem{
		ID:             uuid.New(),
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
		NextAttemptAt:  now,
		CreatedAt:      now,
	}
}
