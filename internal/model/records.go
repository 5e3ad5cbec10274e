package model

import (
	"time"

	"github.com/google/uuid"
)

// UnlockRecord marks an achievement as unlocked for a child in a game.
// At most one record exists per (game, child, achievement) triple.
type UnlockRecord struct {
	GameID        string    `db:"game_id" json:"game_id"`
	ChildID       string    `db:"child_id" json:"child_id"`
	AchievementID string    `db:"achievement_id" json:"achievement_id"`
	UnlockedAt    time.Time `db:"unlocked_at" json:"unlocked_at"`
}

// IdempotencyKey is the stable key the remote store uses to drop duplicate
// resubmissions of this unlock.
func (r UnlockRecord) IdempotencyKey() string {
	return r.GameID + ":" + r.ChildID + ":" + r.AchievementID
}

// CurrencyTransaction is one signed balance change. Positive amounts are
// earnings, negative amounts are spending; BalanceAfter is the child's
// balance once the change was applied.
type CurrencyTransaction struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ChildID      string    `db:"child_id" json:"child_id"`
	Amount       int64     `db:"amount" json:"amount"`
	Reason       string    `db:"reason" json:"reason"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ApprovalStatus is the lifecycle state of a game access request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// TimeRestriction constrains when an approved game may be played.
// AllowedStart/AllowedEnd are minutes since local midnight; both must be
// set (>= 0) for the clock window to apply. A window whose start is after
// its end wraps past midnight. MaxDailyMinutes of 0 means no daily cap.
type TimeRestriction struct {
	MaxDailyMinutes int            `json:"max_daily_minutes,omitempty"`
	AllowedStart    int            `json:"allowed_start"`
	AllowedEnd      int            `json:"allowed_end"`
	BlockedWeekdays []time.Weekday `json:"blocked_weekdays,omitempty"`
}

// NewTimeRestriction returns a restriction with no clock window set.
func NewTimeRestriction() *TimeRestriction {
	return &TimeRestriction{AllowedStart: -1, AllowedEnd: -1}
}

// HasWindow reports whether a clock window is configured.
func (r *TimeRestriction) HasWindow() bool {
	return r.AllowedStart >= 0 && r.AllowedEnd >= 0
}

// BlocksWeekday reports whether day is on the blocked list.
func (r *TimeRestriction) BlocksWeekday(day time.Weekday) bool {
	for _, d := range r.BlockedWeekdays {
		if d == day {
			return true
		}
	}
	return false
}

// ApprovalRecord tracks a guardian's access decision for (game, child).
type ApprovalRecord struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	GameID       string           `db:"game_id" json:"game_id"`
	ChildID      string           `db:"child_id" json:"child_id"`
	GameName     string           `db:"game_name" json:"game_name"`
	Status       ApprovalStatus   `db:"status" json:"status"`
	Restriction  *TimeRestriction `db:"restriction" json:"restriction,omitempty"`
	RequestedAt  time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt    *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	GuardianNote string           `db:"guardian_note" json:"guardian_note,omitempty"`
}

// GameData is the per-(game, child) state bag persisted between sessions.
// Score, Level and the flags are overwritten last-writer-wins from event
// payloads; the cumulative fields are maintained by the session manager.
type GameData struct {
	Score            int             `json:"score"`
	Level            int             `json:"level"`
	Completed        bool            `json:"completed"`
	TotalPlayMinutes int             `json:"total_play_minutes"`
	SessionsPlayed   int             `json:"sessions_played"`
	WinStreak        int             `json:"win_streak"`
	DailyPlayStreak  int             `json:"daily_play_streak"`
	LastPlayDay      string          `json:"last_play_day,omitempty"` // 2006-01-02
	Flags            map[string]bool `json:"flags,omitempty"`
}

// GameSession is a single play attempt, owned by the session manager for
// its lifetime. Only derived events and records outlive it.
type GameSession struct {
	ID        uuid.UUID
	GameID    string
	ChildID   string
	StartedAt time.Time
	Data      GameData
	Events    []GameEvent
}
