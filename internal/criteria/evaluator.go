// Package criteria evaluates achievement unlock conditions. Evaluation is
// pure: no I/O, no side effects, no clock access.
package criteria

import "playguard/internal/model"

// Evaluate reports whether the criterion is satisfied by the event and the
// aggregate state snapshot. All threshold comparisons are inclusive (>=).
// Unrecognized criterion kinds evaluate to false so content written for a
// newer engine never errors on an older one.
func Evaluate(c model.Criterion, event model.GameEvent, agg model.AggregateState) bool {
	switch c.Kind {
	case model.CriterionScoreThreshold:
		return agg.Score >= c.Threshold
	case model.CriterionLevelReached:
		return agg.Level >= c.Threshold
	case model.CriterionTotalPlayTime:
		return agg.PlayTimeMinutes >= c.Threshold
	case model.CriterionSessionsPlayed:
		return agg.SessionsPlayed >= c.Threshold
	case model.CriterionPerfectScore:
		return event.Perfect
	case model.CriterionWinStreak:
		return agg.WinStreak >= c.Threshold
	case model.CriterionDailyPlayStreak:
		return agg.DailyPlayStreak >= c.Threshold
	case model.CriterionGameCompletion:
		return agg.Completed
	case model.CriterionScoreInSingleSession:
		return agg.SessionScore >= c.Threshold
	case model.CriterionLevelInTime:
		// Both must hold: the event raised the level and the session is
		// still within the time limit.
		if event.Kind != model.EventLevelProgress || event.Level <= event.PrevLevel {
			return false
		}
		return agg.SessionDuration <= c.TimeLimit
	case model.CriterionMultiGameCount:
		// Cross-game aggregation is supplied by the caller; without it the
		// criterion is simply not satisfied.
		if !agg.HasCrossGameData {
			return false
		}
		return agg.GamesPlayed >= c.Threshold
	default:
		return false
	}
}
