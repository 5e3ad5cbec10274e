package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"playguard/internal/pkg/lock"
	"playguard/internal/repository"
)

func newTestLedger(gw repository.Gateway) *Ledger {
	return NewLedger(gw, lock.NewChildLock(), NewListeners(), nil)
}

func TestLedgerApplyAndBalance(t *testing.T) {
	gw := repository.NewMemory()
	ledger := newTestLedger(gw)
	ctx := context.Background()

	balance, err := ledger.Apply(ctx, "child-1", 100, "reward: level_up")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	balance, err = ledger.Spend(ctx, "child-1", 40, "purchase: sticker_pack")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	got, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), got)
}

func TestLedgerInsufficientFundsLeavesBalance(t *testing.T) {
	gw := repository.NewMemory()
	ledger := newTestLedger(gw)
	ctx := context.Background()

	_, err := ledger.Apply(ctx, "child-1", 30, "reward: welcome")
	require.NoError(t, err)

	_, err = ledger.Spend(ctx, "child-1", 50, "purchase: big_item")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err := ledger.Balance(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance, "rejected debit must not change the balance")

	history, err := ledger.History(ctx, "child-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "rejected debit must not append a transaction")
}

func TestLedgerSpendValidation(t *testing.T) {
	ledger := newTestLedger(repository.NewMemory())

	_, err := ledger.Spend(context.Background(), "child-1", 0, "noop")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ledger.Spend(context.Background(), "child-1", -5, "noop")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLedgerHistoryNewestFirst(t *testing.T) {
	gw := repository.NewMemory()
	ledger := newTestLedger(gw)
	ctx := context.Background()

	for _, amount := range []int64{10, 20, 30} {
		_, err := ledger.Apply(ctx, "child-1", amount, "reward: step")
		require.NoError(t, err)
	}

	history, err := ledger.History(ctx, "child-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(30), history[0].Amount)
}

func TestLedgerDaySummary(t *testing.T) {
	gw := repository.NewMemory()
	ledger := newTestLedger(gw)
	ctx := context.Background()

	_, err := ledger.Apply(ctx, "child-1", 100, "reward: level_up")
	require.NoError(t, err)
	_, err = ledger.Spend(ctx, "child-1", 40, "purchase: sticker_pack")
	require.NoError(t, err)

	earned, spent, err := ledger.DaySummary(ctx, "child-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(100), earned)
	assert.Equal(t, int64(40), spent)

	earned, spent, err = ledger.DaySummary(ctx, "child-1", time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, earned)
	assert.Zero(t, spent)
}

func TestLedgerCurrencyListener(t *testing.T) {
	gw := repository.NewMemory()
	listeners := NewListeners()
	ledger := NewLedger(gw, lock.NewChildLock(), listeners, nil)

	var got []int64
	listeners.OnCurrencyUpdated(func(childID string, amount int64, reason string) {
		got = append(got, amount)
	})

	_, err := ledger.Apply(context.Background(), "child-1", 25, "reward: test")
	require.NoError(t, err)
	assert.Equal(t, []int64{25}, got)
}

// Concurrent applies for one child must serialize: the final balance equals
// the sum of the accepted deltas and every transaction's balance-after is
// consistent.
func TestLedgerConcurrentApplies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deltas := rapid.SliceOfN(rapid.Int64Range(1, 100), 1, 20).Draw(t, "deltas")

		gw := repository.NewMemory()
		ledger := newTestLedger(gw)
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, delta := range deltas {
			wg.Add(1)
			go func(d int64) {
				defer wg.Done()
				_, err := ledger.Apply(ctx, "child-1", d, "reward: concurrent")
				if err != nil {
					t.Errorf("apply failed: %v", err)
				}
			}(delta)
		}
		wg.Wait()

		var want int64
		for _, d := range deltas {
			want += d
		}
		balance, err := ledger.Balance(ctx, "child-1")
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if balance != want {
			t.Fatalf("balance %d, want %d", balance, want)
		}

		history, err := ledger.History(ctx, "child-1", 0)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != len(deltas) {
			t.Fatalf("recorded %d transactions, want %d", len(history), len(deltas))
		}
	})
}
