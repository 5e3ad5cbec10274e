package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"playguard/internal/model"
)

type gameKey struct {
	gameID  string
	childID string
}

// Memory is an in-process Gateway used by tests and by devices running
// without a local database. All methods are safe for concurrent use.
type Memory struct {
	mu           sync.Mutex
	gameData     map[gameKey]model.GameData
	unlocks      map[gameKey][]string
	balances     map[string]int64
	transactions map[string][]*model.CurrencyTransaction
	approvals    map[gameKey]*model.ApprovalRecord
	playMinutes  map[string]map[string]int
	lastPlayDay  map[string]string
	syncItems    map[uuid.UUID]*model.SyncItem
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		gameData:     make(map[gameKey]model.GameData),
		unlocks:      make(map[gameKey][]string),
		balances:     make(map[string]int64),
		transactions: make(map[string][]*model.CurrencyTransaction),
		approvals:    make(map[gameKey]*model.ApprovalRecord),
		playMinutes:  make(map[string]map[string]int),
		lastPlayDay:  make(map[string]string),
		syncItems:    make(map[uuid.UUID]*model.SyncItem),
	}
}

func (m *Memory) LoadGameData(_ context.Context, gameID, childID string) (model.GameData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gameData[gameKey{gameID, childID}], nil
}

func (m *Memory) SaveGameData(_ context.Context, gameID, childID string, data model.GameData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameData[gameKey{gameID, childID}] = data
	return nil
}

func (m *Memory) Unlocks(_ context.Context, gameID, childID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.unlocks[gameKey{gameID, childID}]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *Memory) InsertUnlockIfAbsent(_ context.Context, rec model.UnlockRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := gameKey{rec.GameID, rec.ChildID}
	for _, id := range m.unlocks[key] {
		if id == rec.AchievementID {
			return false, nil
		}
	}
	m.unlocks[key] = append(m.unlocks[key], rec.AchievementID)
	return true, nil
}

func (m *Memory) Balance(_ context.Context, childID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[childID], nil
}

func (m *Memory) AppendTransaction(_ context.Context, childID string, delta int64, reason string) (*model.CurrencyTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance := m.balances[childID]
	if balance+delta < 0 {
		return nil, ErrInsufficientFunds
	}
	balance += delta
	m.balances[childID] = balance
	tx := &model.CurrencyTransaction{
		ID:           uuid.New(),
		ChildID:      childID,
		Amount:       delta,
		Reason:       reason,
		BalanceAfter: balance,
		CreatedAt:    time.Now(),
	}
	m.transactions[childID] = append(m.transactions[childID], tx)
	return tx, nil
}

func (m *Memory) Transactions(_ context.Context, childID string, limit int) ([]*model.CurrencyTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := m.transactions[childID]
	out := make([]*model.CurrencyTransaction, len(txs))
	copy(out, txs)
	// Newest first, matching the database ordering.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DaySummary(_ context.Context, childID string, day time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := DayKey(day)
	var earned, spent int64
	for _, tx := range m.transactions[childID] {
		if DayKey(tx.CreatedAt) != key {
			continue
		}
		if tx.Amount > 0 {
			earned += tx.Amount
		} else {
			spent += -tx.Amount
		}
	}
	return earned, spent, nil
}

func (m *Memory) Approval(_ context.Context, gameID, childID string) (*model.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.approvals[gameKey{gameID, childID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) ApprovalByID(_ context.Context, id uuid.UUID) (*model.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.approvals {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpsertApproval(_ context.Context, rec *model.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.approvals[gameKey{rec.GameID, rec.ChildID}] = &cp
	return nil
}

func (m *Memory) PlayMinutesOn(_ context.Context, childID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playMinutes[childID][DayKey(day)], nil
}

func (m *Memory) AddPlayMinutes(_ context.Context, childID string, day time.Time, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playMinutes[childID] == nil {
		m.playMinutes[childID] = make(map[string]int)
	}
	m.playMinutes[childID][DayKey(day)] += minutes
	return nil
}

func (m *Memory) LastPlayDay(_ context.Context, childID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPlayDay[childID], nil
}

func (m *Memory) SetLastPlayDay(_ context.Context, childID string, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPlayDay[childID] = day
	return nil
}

func (m *Memory) ClaimPlayDay(_ context.Context, childID string, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Day keys are ISO dates, so string order is date order.
	if day <= m.lastPlayDay[childID] {
		return false, nil
	}
	m.lastPlayDay[childID] = day
	return true, nil
}

func (m *Memory) GamesPlayed(_ context.Context, childID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for key := range m.gameData {
		if key.childID == childID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) EnqueueSyncItem(_ context.Context, item *model.SyncItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.syncItems[item.ID] = &cp
	return nil
}

func (m *Memory) DueSyncItems(_ context.Context, now time.Time, limit int) ([]*model.SyncItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*model.SyncItem
	for _, item := range m.syncItems {
		if !item.NextAttemptAt.After(now) {
			cp := *item
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) RescheduleSyncItem(_ context.Context, id uuid.UUID, attempts int, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.syncItems[id]
	if !ok {
		return ErrNotFound
	}
	item.Attempts = attempts
	item.NextAttemptAt = next
	return nil
}

func (m *Memory) DeleteSyncItem(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.syncItems, id)
	return nil
}

// PendingSyncItems returns a snapshot of everything still queued. Test
// helper; production code drains via DueSyncItems.
func (m *Memory) PendingSyncItems() []*model.SyncItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*model.SyncItem
	for _, item := range m.syncItems {
		cp := *item
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}
