package model

import "time"

// CriterionKind identifies the predicate type of an achievement criterion.
// The set is closed; the evaluator treats anything else as never satisfied
// so newer content files do not break older engines.
type CriterionKind string

const (
	CriterionScoreThreshold       CriterionKind = "score_threshold"
	CriterionLevelReached         CriterionKind = "level_reached"
	CriterionTotalPlayTime        CriterionKind = "total_play_time"
	CriterionSessionsPlayed       CriterionKind = "sessions_played"
	CriterionPerfectScore         CriterionKind = "perfect_score"
	CriterionWinStreak            CriterionKind = "win_streak"
	CriterionDailyPlayStreak      CriterionKind = "daily_play_streak"
	CriterionGameCompletion       CriterionKind = "game_completion"
	CriterionScoreInSingleSession CriterionKind = "score_in_single_session"
	CriterionLevelInTime          CriterionKind = "level_in_time"
	CriterionMultiGameCount       CriterionKind = "multi_game_count"
)

// Criterion is the decoded form of an achievement's unlock condition.
// Threshold is compared inclusively (>=). TimeLimit only applies to
// CriterionLevelInTime, where the session must still be within it.
type Criterion struct {
	Kind      CriterionKind `json:"kind"`
	Threshold int           `json:"threshold,omitempty"`
	TimeLimit time.Duration `json:"time_limit,omitempty"`
}

// Achievement is a content-defined unlockable. Read-only at runtime.
type Achievement struct {
	ID          string    `json:"id"`
	GameID      string    `json:"game_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Reward      int64     `json:"reward"`
	Criterion   Criterion `json:"criterion"`
	Secret      bool      `json:"secret"`
}

// AggregateState is the read-only snapshot of accumulated game state the
// criteria evaluator compares thresholds against. The session manager
// assembles it from persisted game data plus the live session.
type AggregateState struct {
	Score            int
	Level            int
	PlayTimeMinutes  int
	SessionsPlayed   int
	WinStreak        int
	DailyPlayStreak  int
	Completed        bool
	SessionScore     int
	SessionDuration  time.Duration
	GamesPlayed      int
	HasCrossGameData bool
}
