package service

import (
	"playguard/internal/model"
	"playguard/internal/pkg/lock"
	"playguard/internal/repository"
)

// Engine bundles the services into one wired unit: ledger, achievement
// engine, reward dispatcher, approval gate and session manager sharing a
// gateway, content catalog and sync queue.
type Engine struct {
	Listeners    *Listeners
	Ledger       *Ledger
	Achievements *AchievementEngine
	Rewards      *RewardDispatcher
	Gate         *ApprovalGate
	Sessions     *SessionManager
}

// NewEngine wires the services together. queue may be nil to run without
// remote sync.
func NewEngine(gw repository.Gateway, contentSource ContentSource, rules []model.RewardRule, queue Enqueuer) *Engine {
	listeners := NewListeners()
	locks := lock.NewChildLock()

	ledger := NewLedger(gw, locks, listeners, queue)
	achievements := NewAchievementEngine(gw, listeners, queue)
	rewards := NewRewardDispatcher(ledger, gw, rules)
	gate := NewApprovalGate(gw)
	sessions := NewSessionManager(gate, achievements, rewards, contentSource, gw, queue)

	return &Engine{
		Listeners:    listeners,
		Ledger:       ledger,
		Achievements: achievements,
		Rewards:      rewards,
		Gate:         gate,
		Sessions:     sessions,
	}
}
