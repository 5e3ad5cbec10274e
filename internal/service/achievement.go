package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"playguard/internal/criteria"
	"playguard/internal/model"
	"playguard/internal/repository"
)

// AchievementEngine evaluates achievement eligibility on each event and
// records unlocks at most once per (game, child, achievement).
type AchievementEngine struct {
	gw        repository.Gateway
	listeners *Listeners
	queue     Enqueuer
}

// NewAchievementEngine creates the engine. queue may be nil.
func NewAchievementEngine(gw repository.Gateway, listeners *Listeners, queue Enqueuer) *AchievementEngine {
	return &AchievementEngine{gw: gw, listeners: listeners, queue: queue}
}

// OnEvent evaluates the candidate achievements against the event and
// aggregate state, unlocking those whose criterion is satisfied. The
// returned slice preserves candidate order and contains only achievements
// newly unlocked by this call.
//
// Unlock persistence is insert-if-absent: a concurrent duplicate is a safe
// no-op. If a write fails, the achievement is not considered unlocked; the
// next qualifying event retries it. Listener failures never propagate.
func (e *AchievementEngine) OnEvent(ctx context.Context, gameID, childID string, event model.GameEvent, agg model.AggregateState, candidates []model.Achievement) ([]model.Achievement, error) {
	if gameID == "" || childID == "" {
		return nil, fmt.Errorf("%w: game id and child id are required", ErrValidation)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := e.gw.Unlocks(ctx, gameID, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlocks: %w", err)
	}
	unlocked := make(map[string]bool, len(existing))
	for _, id := range existing {
		unlocked[id] = true
	}

	var newly []model.Achievement
	for _, candidate := range candidates {
		if unlocked[candidate.ID] {
			continue
		}
		if !criteria.Evaluate(candidate.Criterion, event, agg) {
			continue
		}

		rec := model.UnlockRecord{
			GameID:        gameID,
			ChildID:       childID,
			AchievementID: candidate.ID,
			UnlockedAt:    time.Now(),
		}
		inserted, err := e.gw.InsertUnlockIfAbsent(ctx, rec)
		if err != nil {
			// Not unlocked; the next qualifying event will retry.
			log.Warn().Err(err).
				Str("game_id", gameID).
				Str("child_id", childID).
				Str("achievement_id", candidate.ID).
				Msg("failed to persist unlock")
			continue
		}
		if !inserted {
			continue
		}

		log.Info().
			Str("game_id", gameID).
			Str("child_id", childID).
			Str("achievement_id", candidate.ID).
			Msg("achievement unlocked")

		newly = append(newly, candidate)
		e.enqueue(ctx, rec)
	}

	for _, achievement := range newly {
		e.listeners.notifyUnlock(gameID, childID, achievement)
	}
	return newly, nil
}

// Unlocked returns the achievement IDs already unlocked for (game, child).
func (e *AchievementEngine) Unlocked(ctx context.Context, gameID, childID string) ([]string, error) {
	return e.gw.Unlocks(ctx, gameID, childID)
}

func (e *AchievementEngine) enqueue(ctx context.Context, rec model.UnlockRecord) {
	if e.queue == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("achievement_id", rec.AchievementID).Msg("failed to encode unlock for sync")
		return
	}
	item := model.NewSyncItem(model.SyncUnlock, rec.IdempotencyKey(), payload)
	if err := e.queue.Enqueue(ctx, item); err != nil {
		log.Warn().Err(err).Str("achievement_id", rec.AchievementID).Msg("failed to enqueue unlock for sync")
	}
}
