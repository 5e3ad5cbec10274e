package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playguard/internal/model"
	"playguard/internal/pkg/lock"
	"playguard/internal/repository"
)

func newTestDispatcher(gw repository.Gateway, rules []model.RewardRule) (*RewardDispatcher, *Ledger) {
	ledger := NewLedger(gw, lock.NewChildLock(), NewListeners(), nil)
	return NewRewardDispatcher(ledger, gw, rules), ledger
}

func TestRewardScoreIncrease(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "big_jump", Kind: model.RuleScoreIncrease, Threshold: 50, Amount: 5},
	})
	ctx := context.Background()

	// Increase of 50 meets the threshold inclusively.
	event := model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 50, 100, false)
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)

	// Increase of 10 does not.
	event = model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 100, 110, false)
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err = ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)

	// A score drop never rewards, whatever the magnitude.
	event = model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 110, 10, false)
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err = ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestRewardMultipleRulesBatched(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "any_progress", Kind: model.RuleScoreIncrease, Threshold: 1, Amount: 2},
		{ActionID: "flawless", Kind: model.RulePerfectScore, Amount: 10},
	})
	ctx := context.Background()

	event := model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 0, 100, true)
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), balance)

	history, err := ledger.History(ctx, "child-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1, "matched rules are applied as one transaction")
	assert.Equal(t, "reward: any_progress,flawless", history[0].Reason)
}

func TestRewardLevelComplete(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "level_up", Kind: model.RuleLevelComplete, Amount: 3},
	})
	ctx := context.Background()

	dispatcher.OnEvent(ctx, model.NewLevelProgress("math-blaster", "child-1", uuid.New(), 1, 2), model.AggregateState{})
	// Replaying the same level is not completion.
	dispatcher.OnEvent(ctx, model.NewLevelProgress("math-blaster", "child-1", uuid.New(), 2, 2), model.AggregateState{})

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
}

func TestRewardFirstPlayOfDay(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "daily_login", Kind: model.RuleFirstPlayOfDay, Amount: 7},
	})
	ctx := context.Background()

	today := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	event := model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 0, 10, false)
	event.CreatedAt = today

	dispatcher.OnEvent(ctx, event, model.AggregateState{})
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance, "first play of the day rewards exactly once")

	// Next calendar day it fires again.
	event.CreatedAt = today.AddDate(0, 0, 1)
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err = ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(14), balance)
}

// Two sessions running at once for the same child in different games must
// grant the daily reward exactly once: the play-day stamp is an atomic
// compare-and-set, not a read followed by a write.
func TestRewardFirstPlayOfDayConcurrentSessions(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "daily_login", Kind: model.RuleFirstPlayOfDay, Amount: 7},
	})
	ctx := context.Background()

	games := []string{"math-blaster", "word-garden"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(game string) {
			defer wg.Done()
			event := model.NewScoreUpdate(game, "child-1", uuid.New(), 0, 10, false)
			dispatcher.OnEvent(ctx, event, model.AggregateState{})
		}(games[i%len(games)])
	}
	wg.Wait()

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance, "concurrent events grant the daily reward once")

	history, err := ledger.History(ctx, "child-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// The day comes from the event's own timestamp: an event replayed after
// midnight still claims its session's date, and today's play is unaffected.
func TestRewardFirstPlayOfDayUsesEventDay(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "daily_login", Kind: model.RuleFirstPlayOfDay, Amount: 7},
	})
	ctx := context.Background()

	yesterday := model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 0, 10, false)
	yesterday.CreatedAt = time.Now().AddDate(0, 0, -1)
	dispatcher.OnEvent(ctx, yesterday, model.AggregateState{})

	today := model.NewScoreUpdate("math-blaster", "child-1", uuid.New(), 10, 20, false)
	dispatcher.OnEvent(ctx, today, model.AggregateState{})

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(14), balance, "yesterday's replayed event and today's play each claim their own day")
}

func TestRewardOnAchievementUnlocked(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "any_unlock", Kind: model.RuleAchievementUnlock, Amount: 5},
	})
	ctx := context.Background()

	achievement := model.Achievement{ID: "score-100", Name: "Century", Reward: 20}
	dispatcher.OnAchievementUnlocked(ctx, "math-blaster", "child-1", achievement)

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance, "achievement reward plus unlock rule, one transaction")

	history, err := ledger.History(ctx, "child-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "reward: achievement:score-100,any_unlock", history[0].Reason)
}

func TestRewardUnlockRuleIgnoresRawEvents(t *testing.T) {
	gw := repository.NewMemory()
	dispatcher, ledger := newTestDispatcher(gw, []model.RewardRule{
		{ActionID: "any_unlock", Kind: model.RuleAchievementUnlock, Amount: 5},
	})
	ctx := context.Background()

	event := model.NewAchievementUnlocked("math-blaster", "child-1", uuid.New(), "score-100")
	dispatcher.OnEvent(ctx, event, model.AggregateState{})

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Zero(t, balance, "unlock rules pay through OnAchievementUnlocked only")
}
