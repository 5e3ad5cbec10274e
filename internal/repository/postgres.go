package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"playguard/internal/model"
)

// Postgres implements Gateway on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres gateway.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// LoadGameData returns the persisted state bag, or the zero value when the
// pair has no saved data yet.
func (p *Postgres) LoadGameData(ctx context.Context, gameID, childID string) (model.GameData, error) {
	const query = `SELECT data FROM game_data WHERE game_id = $1 AND child_id = $2`

	var raw []byte
	err := p.pool.QueryRow(ctx, query, gameID, childID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GameData{}, nil
		}
		return model.GameData{}, fmt.Errorf("failed to load game data: %w", err)
	}

	var data model.GameData
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.GameData{}, fmt.Errorf("failed to decode game data: %w", err)
	}
	return data, nil
}

func (p *Postgres) SaveGameData(ctx context.Context, gameID, childID string, data model.GameData) error {
	const query = `
		INSERT INTO game_data (game_id, child_id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (game_id, child_id) DO UPDATE SET data = $3, updated_at = NOW()
	`

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode game data: %w", err)
	}
	if _, err := p.pool.Exec(ctx, query, gameID, childID, raw); err != nil {
		return fmt.Errorf("failed to save game data: %w", err)
	}
	return nil
}

func (p *Postgres) Unlocks(ctx context.Context, gameID, childID string) ([]string, error) {
	const query = `
		SELECT achievement_id FROM unlocks
		WHERE game_id = $1 AND child_id = $2
		ORDER BY unlocked_at
	`

	rows, err := p.pool.Query(ctx, query, gameID, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unlocks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unlocks: %w", err)
	}
	return ids, nil
}

// InsertUnlockIfAbsent records an unlock. A concurrent duplicate insert is
// absorbed by ON CONFLICT DO NOTHING and reported as false.
func (p *Postgres) InsertUnlockIfAbsent(ctx context.Context, rec model.UnlockRecord) (bool, error) {
	const query = `
		INSERT INTO unlocks (game_id, child_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id, child_id, achievement_id) DO NOTHING
	`

	result, err := p.pool.Exec(ctx, query, rec.GameID, rec.ChildID, rec.AchievementID, rec.UnlockedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert unlock: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (p *Postgres) Balance(ctx context.Context, childID string) (int64, error) {
	const query = `SELECT balance FROM accounts WHERE child_id = $1`

	var balance int64
	err := p.pool.QueryRow(ctx, query, childID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// AppendTransaction applies the delta and records the transaction in one
// database transaction. The guarded UPDATE rejects underflow without
// touching the balance.
func (p *Postgres) AppendTransaction(ctx context.Context, childID string, delta int64, reason string) (*model.CurrencyTransaction, error) {
	dbTx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	const ensure = `INSERT INTO accounts (child_id, balance) VALUES ($1, 0) ON CONFLICT (child_id) DO NOTHING`
	if _, err := dbTx.Exec(ctx, ensure, childID); err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}

	const update = `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE child_id = $1 AND balance + $2 >= 0
		RETURNING balance
	`
	var balanceAfter int64
	err = dbTx.QueryRow(ctx, update, childID, delta).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	const insert = `
		INSERT INTO transactions (id, child_id, amount, reason, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	tx := model.CurrencyTransaction{
		ID:           uuid.New(),
		ChildID:      childID,
		Amount:       delta,
		Reason:       reason,
		BalanceAfter: balanceAfter,
	}
	if err := dbTx.QueryRow(ctx, insert, tx.ID, tx.ChildID, tx.Amount, tx.Reason, tx.BalanceAfter).Scan(&tx.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &tx, nil
}

// Transactions returns the child's history, newest first. NULLIF turns a
// non-positive limit into LIMIT NULL, the full history, matching the
// memory gateway.
func (p *Postgres) Transactions(ctx context.Context, childID string, limit int) ([]*model.CurrencyTransaction, error) {
	const query = `
		SELECT id, child_id, amount, reason, balance_after, created_at
		FROM transactions
		WHERE child_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`

	if limit < 0 {
		limit = 0
	}
	rows, err := p.pool.Query(ctx, query, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.CurrencyTransaction
	for rows.Next() {
		var tx model.CurrencyTransaction
		if err := rows.Scan(&tx.ID, &tx.ChildID, &tx.Amount, &tx.Reason, &tx.BalanceAfter, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// DaySummary totals the day's earnings and spending, both as positive
// numbers, mirroring the daily stats the guardian dashboard shows.
func (p *Postgres) DaySummary(ctx context.Context, childID string, day time.Time) (int64, int64, error) {
	const query = `
		SELECT
			COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0)
		FROM transactions
		WHERE child_id = $1 AND created_at::date = $2::date
	`

	var earned, spent int64
	if err := p.pool.QueryRow(ctx, query, childID, DayKey(day)).Scan(&earned, &spent); err != nil {
		return 0, 0, fmt.Errorf("failed to summarize day: %w", err)
	}
	return earned, spent, nil
}

func (p *Postgres) scanApproval(row pgx.Row) (*model.ApprovalRecord, error) {
	var rec model.ApprovalRecord
	var restriction []byte
	err := row.Scan(
		&rec.ID,
		&rec.GameID,
		&rec.ChildID,
		&rec.GameName,
		&rec.Status,
		&restriction,
		&rec.RequestedAt,
		&rec.DecidedAt,
		&rec.GuardianNote,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if restriction != nil {
		rec.Restriction = &model.TimeRestriction{}
		if err := json.Unmarshal(restriction, rec.Restriction); err != nil {
			return nil, fmt.Errorf("failed to decode restriction: %w", err)
		}
	}
	return &rec, nil
}

const approvalColumns = `id, game_id, child_id, game_name, status, restriction, requested_at, decided_at, guardian_note`

func (p *Postgres) Approval(ctx context.Context, gameID, childID string) (*model.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE game_id = $1 AND child_id = $2`
	return p.scanApproval(p.pool.QueryRow(ctx, query, gameID, childID))
}

func (p *Postgres) ApprovalByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`
	return p.scanApproval(p.pool.QueryRow(ctx, query, id))
}

func (p *Postgres) UpsertApproval(ctx context.Context, rec *model.ApprovalRecord) error {
	const query = `
		INSERT INTO approvals (id, game_id, child_id, game_name, status, restriction, requested_at, decided_at, guardian_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_id, child_id) DO UPDATE SET
			id = $1, game_name = $4, status = $5, restriction = $6,
			requested_at = $7, decided_at = $8, guardian_note = $9
	`

	var restriction []byte
	if rec.Restriction != nil {
		var err error
		restriction, err = json.Marshal(rec.Restriction)
		if err != nil {
			return fmt.Errorf("failed to encode restriction: %w", err)
		}
	}

	_, err := p.pool.Exec(ctx, query,
		rec.ID, rec.GameID, rec.ChildID, rec.GameName, rec.Status,
		restriction, rec.RequestedAt, rec.DecidedAt, rec.GuardianNote,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert approval: %w", err)
	}
	return nil
}

func (p *Postgres) PlayMinutesOn(ctx context.Context, childID string, day time.Time) (int, error) {
	const query = `SELECT minutes FROM play_minutes WHERE child_id = $1 AND day = $2`

	var minutes int
	err := p.pool.QueryRow(ctx, query, childID, DayKey(day)).Scan(&minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get play minutes: %w", err)
	}
	return minutes, nil
}

func (p *Postgres) AddPlayMinutes(ctx context.Context, childID string, day time.Time, minutes int) error {
	const query = `
		INSERT INTO play_minutes (child_id, day, minutes)
		VALUES ($1, $2, $3)
		ON CONFLICT (child_id, day) DO UPDATE SET minutes = play_minutes.minutes + $3
	`

	if _, err := p.pool.Exec(ctx, query, childID, DayKey(day), minutes); err != nil {
		return fmt.Errorf("failed to add play minutes: %w", err)
	}
	return nil
}

func (p *Postgres) LastPlayDay(ctx context.Context, childID string) (string, error) {
	const query = `SELECT COALESCE(TO_CHAR(last_play_day, 'YYYY-MM-DD'), '') FROM child_stats WHERE child_id = $1`

	var day string
	err := p.pool.QueryRow(ctx, query, childID).Scan(&day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get last play day: %w", err)
	}
	return day, nil
}

func (p *Postgres) SetLastPlayDay(ctx context.Context, childID string, day string) error {
	const query = `
		INSERT INTO child_stats (child_id, last_play_day)
		VALUES ($1, $2)
		ON CONFLICT (child_id) DO UPDATE SET last_play_day = $2
	`

	if _, err := p.pool.Exec(ctx, query, childID, day); err != nil {
		return fmt.Errorf("failed to set last play day: %w", err)
	}
	return nil
}

// ClaimPlayDay stamps the day with a guarded upsert: the update only
// applies when it advances the stored day, so of concurrent claims for
// the same day exactly one reports true and stale days never claim.
func (p *Postgres) ClaimPlayDay(ctx context.Context, childID string, day string) (bool, error) {
	const query = `
		INSERT INTO child_stats (child_id, last_play_day)
		VALUES ($1, $2)
		ON CONFLICT (child_id) DO UPDATE SET last_play_day = EXCLUDED.last_play_day
		WHERE child_stats.last_play_day IS NULL
			OR child_stats.last_play_day < EXCLUDED.last_play_day
	`

	result, err := p.pool.Exec(ctx, query, childID, day)
	if err != nil {
		return false, fmt.Errorf("failed to claim play day: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (p *Postgres) GamesPlayed(ctx context.Context, childID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT game_id) FROM game_data WHERE child_id = $1`

	var count int
	if err := p.pool.QueryRow(ctx, query, childID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count games played: %w", err)
	}
	return count, nil
}

func (p *Postgres) EnqueueSyncItem(ctx context.Context, item *model.SyncItem) error {
	const query = `
		INSERT INTO sync_items (id, kind, idempotency_key, payload, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.pool.Exec(ctx, query,
		item.ID, item.Kind, item.IdempotencyKey, item.Payload,
		item.Attempts, item.NextAttemptAt, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return nil
}

func (p *Postgres) DueSyncItems(ctx context.Context, now time.Time, limit int) ([]*model.SyncItem, error) {
	const query = `
		SELECT id, kind, idempotency_key, payload, attempts, next_attempt_at, created_at
		FROM sync_items
		WHERE next_attempt_at <= $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := p.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due sync items: %w", err)
	}
	defer rows.Close()

	var items []*model.SyncItem
	for rows.Next() {
		var item model.SyncItem
		err := rows.Scan(
			&item.ID, &item.Kind, &item.IdempotencyKey, &item.Payload,
			&item.Attempts, &item.NextAttemptAt, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync item: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync items: %w", err)
	}
	return items, nil
}

func (p *Postgres) RescheduleSyncItem(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error {
	const query = `UPDATE sync_items SET attempts = $2, next_attempt_at = $3 WHERE id = $1`

	result, err := p.pool.Exec(ctx, query, id, attempts, next)
	if err != nil {
		return fmt.Errorf("failed to reschedule sync item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteSyncItem(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM sync_items WHERE id = $1`

	if _, err := p.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete sync item: %w", err)
	}
	return nil
}
