// Package model defines the data models for the game reward engine.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the variant of a GameEvent.
type EventKind string

// Event kinds emitted by the play surface or synthesized by the engine.
const (
	EventScoreUpdate         EventKind = "score_update"
	EventLevelProgress       EventKind = "level_progress"
	EventAchievementUnlocked EventKind = "achievement_unlocked"
	EventSessionCompletion   EventKind = "session_completion"
	EventApprovalRequested   EventKind = "approval_requested"
	EventApprovalResponded   EventKind = "approval_responded"
)

// GameEvent is an immutable record of something that happened during play.
// Only the payload fields belonging to Kind are meaningful; the rest stay
// at their zero value.
type GameEvent struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	GameID    string    `json:"game_id"`
	ChildID   string    `json:"child_id"`
	SessionID uuid.UUID `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`

	// ScoreUpdate
	Score     int  `json:"score,omitempty"`
	PrevScore int  `json:"prev_score,omitempty"`
	Perfect   bool `json:"perfect,omitempty"`

	// LevelProgress
	Level     int `json:"level,omitempty"`
	PrevLevel int `json:"prev_level,omitempty"`

	// AchievementUnlocked
	AchievementID string `json:"achievement_id,omitempty"`

	// SessionCompletion
	FinalScore int           `json:"final_score,omitempty"`
	FinalLevel int           `json:"final_level,omitempty"`
	PlayTime   time.Duration `json:"play_time,omitempty"`
	Completed  bool          `json:"completed,omitempty"`

	// ApprovalResponded
	Approved bool `json:"approved,omitempty"`
}

// newEvent fills the fields common to every variant.
func newEvent(kind EventKind, gameID, childID string, sessionID uuid.UUID) GameEvent {
	return GameEvent{
		ID:        uuid.New(),
		Kind:      kind,
		GameID:    gameID,
		ChildID:   childID,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
}

// NewScoreUpdate creates a score change event. Perfect marks a flawless
// result as reported by the game itself.
func NewScoreUpdate(gameID, childID string, sessionID uuid.UUID, prev, score int, perfect bool) GameEvent {
	e := newEvent(EventScoreUpdate, gameID, childID, sessionID)
	e.PrevScore = prev
	e.Score = score
	e.Perfect = perfect
	return e
}

// NewLevelProgress creates a level change event.
func NewLevelProgress(gameID, childID string, sessionID uuid.UUID, prev, level int) GameEvent {
	e := newEvent(EventLevelProgress, gameID, childID, sessionID)
	e.PrevLevel = prev
	e.Level = level
	return e
}

// NewAchievementUnlocked creates the event synthesized when an achievement
// unlocks.
func NewAchievementUnlocked(gameID, childID string, sessionID uuid.UUID, achievementID string) GameEvent {
	e := newEvent(EventAchievementUnlocked, gameID, childID, sessionID)
	e.AchievementID = achievementID
	return e
}

// NewSessionCompletion creates the event synthesized when a session ends.
func NewSessionCompletion(gameID, childID string, sessionID uuid.UUID, finalScore, finalLevel int, playTime time.Duration, completed bool) GameEvent {
	e := newEvent(EventSessionCompletion, gameID, childID, sessionID)
	e.FinalScore = finalScore
	e.FinalLevel = finalLevel
	e.PlayTime = playTime
	e.Completed = completed
	return e
}

// NewApprovalRequested creates the event recorded when a child first asks
// for access to a gated game.
func NewApprovalRequested(gameID, childID string) GameEvent {
	return newEvent(EventApprovalRequested, gameID, childID, uuid.Nil)
}

// NewApprovalResponded creates the event recorded when a guardian decides
// an approval request.
func NewApprovalResponded(gameID, childID string, approved bool) GameEvent {
	e := newEvent(EventApprovalResponded, gameID, childID, uuid.Nil)
	e.Approved = approved
	return e
}
