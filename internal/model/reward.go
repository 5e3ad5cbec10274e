package model

// RuleKind identifies what event condition a currency reward rule matches.
type RuleKind string

const (
	RuleScoreIncrease     RuleKind = "score_increase"
	RuleLevelComplete     RuleKind = "level_complete"
	RuleAchievementUnlock RuleKind = "achievement_unlock"
	RuleGameComplete      RuleKind = "game_complete"
	RuleFirstPlayOfDay    RuleKind = "first_play_of_day"
	RulePerfectScore      RuleKind = "perfect_score"
)

// RewardRule grants currency when an event matches its condition. Rules
// are content-defined and evaluated independently; every matching rule
// contributes its Amount to a single batched ledger apply.
type RewardRule struct {
	ActionID  string   `json:"action_id"`
	Kind      RuleKind `json:"kind"`
	Threshold int      `json:"threshold,omitempty"` // minimum score increase for RuleScoreIncrease
	Amount    int64    `json:"amount"`
}
