package service

import (
	"sync"

	"github.com/rs/zerolog/log"

	"playguard/internal/model"
)

// UnlockListener is notified when an achievement unlocks. Fire-and-forget;
// used by the UI for celebration screens and by analytics.
type UnlockListener func(gameID, childID string, achievement model.Achievement)

// CurrencyListener is notified when a child's balance changes.
type CurrencyListener func(childID string, amount int64, reason string)

// Listeners is the observer registry. Each callback is dispatched behind
// its own panic guard: a broken listener is logged and never blocks the
// others or the dispatching component.
type Listeners struct {
	mu       sync.RWMutex
	unlock   []UnlockListener
	currency []CurrencyListener
}

// NewListeners creates an empty registry.
func NewListeners() *Listeners {
	return &Listeners{}
}

// OnAchievementUnlocked registers an unlock listener.
func (l *Listeners) OnAchievementUnlocked(fn UnlockListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlock = append(l.unlock, fn)
}

// OnCurrencyUpdated registers a currency listener.
func (l *Listeners) OnCurrencyUpdated(fn CurrencyListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currency = append(l.currency, fn)
}

func (l *Listeners) notifyUnlock(gameID, childID string, achievement model.Achievement) {
	l.mu.RLock()
	listeners := make([]UnlockListener, len(l.unlock))
	copy(listeners, l.unlock)
	l.mu.RUnlock()

	for _, fn := range listeners {
		dispatch(func() { fn(gameID, childID, achievement) })
	}
}

func (l *Listeners) notifyCurrency(childID string, amount int64, reason string) {
	l.mu.RLock()
	listeners := make([]CurrencyListener, len(l.currency))
	copy(listeners, l.currency)
	l.mu.RUnlock()

	for _, fn := range listeners {
		dispatch(func() { fn(childID, amount, reason) })
	}
}

// dispatch runs one callback, isolating panics.
func dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("listener panicked")
		}
	}()
	fn()
}
