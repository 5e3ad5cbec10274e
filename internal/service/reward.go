package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"playguard/internal/model"
	"playguard/internal/repository"
)

// RewardDispatcher turns events and achievement unlocks into currency
// grants. Every rule is evaluated independently against the incoming
// event; all matches are summed and applied as a single ledger call so the
// transaction log stays compact.
type RewardDispatcher struct {
	ledger *Ledger
	gw     repository.Gateway
	rules  []model.RewardRule
	now    func() time.Time
}

// NewRewardDispatcher creates a dispatcher over the given rule set.
func NewRewardDispatcher(ledger *Ledger, gw repository.Gateway, rules []model.RewardRule) *RewardDispatcher {
	return &RewardDispatcher{ledger: ledger, gw: gw, rules: rules, now: time.Now}
}

// OnEvent evaluates all rules against the event and applies the summed
// reward. A ledger rejection (defensive; rewards are positive) drops the
// batch with a log line and nothing else.
func (d *RewardDispatcher) OnEvent(ctx context.Context, event model.GameEvent, agg model.AggregateState) {
	var total int64
	var matched []string

	for _, rule := range d.rules {
		if rule.Kind == model.RuleFirstPlayOfDay {
			if !d.claimFirstPlay(ctx, event) {
				continue
			}
		} else if !d.matches(rule, event) {
			continue
		}
		total += rule.Amount
		matched = append(matched, rule.ActionID)
	}
	if total <= 0 {
		return
	}

	d.apply(ctx, event.ChildID, total, "reward: "+strings.Join(matched, ","))
}

// claimFirstPlay stamps the event's calendar day as the child's last play
// day. The stamp is an atomic compare-and-set in the gateway, so concurrent
// events for the same child, including sessions running in different games,
// grant at most one first-play reward per day. The day comes from the
// event's own timestamp, so events replayed across midnight land on their
// session's date rather than the wall clock's; days already passed by the
// stamp never claim.
func (d *RewardDispatcher) claimFirstPlay(ctx context.Context, event model.GameEvent) bool {
	switch event.Kind {
	case model.EventScoreUpdate, model.EventLevelProgress, model.EventSessionCompletion:
	default:
		return false
	}

	at := event.CreatedAt
	if at.IsZero() {
		at = d.now()
	}
	claimed, err := d.gw.ClaimPlayDay(ctx, event.ChildID, repository.DayKey(at))
	if err != nil {
		log.Warn().Err(err).Str("child_id", event.ChildID).Msg("failed to claim play day")
		return false
	}
	return claimed
}

// OnAchievementUnlocked applies the achievement's own reward plus any
// achievement-unlock rules, in one ledger call.
func (d *RewardDispatcher) OnAchievementUnlocked(ctx context.Context, gameID, childID string, achievement model.Achievement) {
	total := achievement.Reward
	matched := []string{"achievement:" + achievement.ID}

	for _, rule := range d.rules {
		if rule.Kind == model.RuleAchievementUnlock {
			total += rule.Amount
			matched = append(matched, rule.ActionID)
		}
	}
	if total <= 0 {
		return
	}
	d.apply(ctx, childID, total, "reward: "+strings.Join(matched, ","))
}

func (d *RewardDispatcher) apply(ctx context.Context, childID string, total int64, reason string) {
	if _, err := d.ledger.Apply(ctx, childID, total, reason); err != nil {
		log.Error().Err(err).
			Str("child_id", childID).
			Int64("amount", total).
			Str("reason", reason).
			Msg("reward dropped: ledger rejected apply")
	}
}

func (d *RewardDispatcher) matches(rule model.RewardRule, event model.GameEvent) bool {
	switch rule.Kind {
	case model.RuleScoreIncrease:
		if event.Kind != model.EventScoreUpdate {
			return false
		}
		increase := event.Score - event.PrevScore
		if increase <= 0 {
			return false
		}
		return increase >= rule.Threshold
	case model.RuleLevelComplete:
		return event.Kind == model.EventLevelProgress && event.Level > event.PrevLevel
	case model.RuleGameComplete:
		return event.Kind == model.EventSessionCompletion && event.Completed
	case model.RulePerfectScore:
		return event.Perfect
	case model.RuleAchievementUnlock:
		// Applied from OnAchievementUnlocked, never from raw events.
		return false
	default:
		return false
	}
}
