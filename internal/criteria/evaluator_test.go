package criteria

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"playguard/internal/model"
)

func crit(kind model.CriterionKind, threshold int) model.Criterion {
	return model.Criterion{Kind: kind, Threshold: threshold}
}

// TestEvaluateThresholds covers the inclusive >= comparison for every
// threshold-based criterion kind.
func TestEvaluateThresholds(t *testing.T) {
	agg := model.AggregateState{
		Score:            100,
		Level:            5,
		PlayTimeMinutes:  120,
		SessionsPlayed:   10,
		WinStreak:        3,
		DailyPlayStreak:  7,
		SessionScore:     80,
		GamesPlayed:      4,
		HasCrossGameData: true,
	}
	event := model.GameEvent{Kind: model.EventScoreUpdate}

	tests := []struct {
		name string
		c    model.Criterion
		want bool
	}{
		{"score below", crit(model.CriterionScoreThreshold, 101), false},
		{"score exact", crit(model.CriterionScoreThreshold, 100), true},
		{"score above", crit(model.CriterionScoreThreshold, 50), true},
		{"level exact", crit(model.CriterionLevelReached, 5), true},
		{"level below", crit(model.CriterionLevelReached, 6), false},
		{"play time exact", crit(model.CriterionTotalPlayTime, 120), true},
		{"sessions exact", crit(model.CriterionSessionsPlayed, 10), true},
		{"win streak", crit(model.CriterionWinStreak, 3), true},
		{"daily streak", crit(model.CriterionDailyPlayStreak, 8), false},
		{"session score", crit(model.CriterionScoreInSingleSession, 80), true},
		{"multi game", crit(model.CriterionMultiGameCount, 4), true},
		{"multi game below", crit(model.CriterionMultiGameCount, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.c, event, agg))
		})
	}
}

func TestEvaluatePerfectScore(t *testing.T) {
	c := model.Criterion{Kind: model.CriterionPerfectScore}
	perfect := model.NewScoreUpdate("g", "c", uuid.New(), 90, 100, true)
	normal := model.NewScoreUpdate("g", "c", uuid.New(), 90, 100, false)

	assert.True(t, Evaluate(c, perfect, model.AggregateState{}))
	assert.False(t, Evaluate(c, normal, model.AggregateState{}))
}

func TestEvaluateGameCompletion(t *testing.T) {
	c := model.Criterion{Kind: model.CriterionGameCompletion}
	assert.True(t, Evaluate(c, model.GameEvent{}, model.AggregateState{Completed: true}))
	assert.False(t, Evaluate(c, model.GameEvent{}, model.AggregateState{Completed: false}))
}

// TestEvaluateLevelInTime checks the conjunctive condition: a level
// increase AND a session still within the time limit.
func TestEvaluateLevelInTime(t *testing.T) {
	c := model.Criterion{Kind: model.CriterionLevelInTime, TimeLimit: 5 * time.Minute}

	up := model.NewLevelProgress("g", "c", uuid.New(), 1, 2)
	down := model.NewLevelProgress("g", "c", uuid.New(), 2, 2)
	score := model.NewScoreUpdate("g", "c", uuid.New(), 0, 10, false)

	fast := model.AggregateState{SessionDuration: 3 * time.Minute}
	exact := model.AggregateState{SessionDuration: 5 * time.Minute}
	slow := model.AggregateState{SessionDuration: 6 * time.Minute}

	assert.True(t, Evaluate(c, up, fast))
	assert.True(t, Evaluate(c, up, exact))
	assert.False(t, Evaluate(c, up, slow), "too slow")
	assert.False(t, Evaluate(c, down, fast), "no level increase")
	assert.False(t, Evaluate(c, score, fast), "wrong event kind")
}

// TestEvaluateMultiGameWithoutData: no cross-game aggregate means false,
// never an error, regardless of threshold.
func TestEvaluateMultiGameWithoutData(t *testing.T) {
	agg := model.AggregateState{GamesPlayed: 100, HasCrossGameData: false}
	assert.False(t, Evaluate(crit(model.CriterionMultiGameCount, 0), model.GameEvent{}, agg))
}

func TestEvaluateUnknownKind(t *testing.T) {
	c := model.Criterion{Kind: "hoverboard_tricks", Threshold: 1}
	agg := model.AggregateState{Score: 1000, Completed: true}
	assert.False(t, Evaluate(c, model.GameEvent{}, agg))
}

// TestEvaluateMonotonicProperty: for any threshold criterion, lowering the
// threshold never turns a satisfied criterion unsatisfied.
func TestEvaluateMonotonicProperty(t *testing.T) {
	kinds := []model.CriterionKind{
		model.CriterionScoreThreshold,
		model.CriterionLevelReached,
		model.CriterionTotalPlayTime,
		model.CriterionSessionsPlayed,
		model.CriterionWinStreak,
		model.CriterionDailyPlayStreak,
		model.CriterionScoreInSingleSession,
	}

	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(kinds).Draw(t, "kind")
		threshold := rapid.IntRange(0, 1000).Draw(t, "threshold")
		lower := rapid.IntRange(0, threshold).Draw(t, "lower")
		value := rapid.IntRange(0, 2000).Draw(t, "value")

		agg := model.AggregateState{
			Score:           value,
			Level:           value,
			PlayTimeMinutes: value,
			SessionsPlayed:  value,
			WinStreak:       value,
			DailyPlayStreak: value,
			SessionScore:    value,
		}

		if Evaluate(crit(kind, threshold), model.GameEvent{}, agg) {
			if !Evaluate(crit(kind, lower), model.GameEvent{}, agg) {
				t.Fatalf("criterion %s satisfied at threshold %d but not at %d", kind, threshold, lower)
			}
		}
	})
}
