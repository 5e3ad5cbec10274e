package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"playguard/internal/model"
	"playguard/internal/repository"
)

// Denial explains why CanPlayNow returned false, so the play surface can
// show "not approved" and "outside allowed time" distinctly.
type Denial string

const (
	DenialNone          Denial = ""
	DenialNotApproved   Denial = "not_approved"
	DenialDailyLimit    Denial = "daily_limit_reached"
	DenialOutsideWindow Denial = "outside_allowed_window"
	DenialBlockedDay    Denial = "blocked_weekday"
)

// ApprovalGate tracks guardian approval per (game, child) and answers
// whether play is allowed right now under the optional time restriction.
type ApprovalGate struct {
	gw  repository.Gateway
	now func() time.Time
}

// NewApprovalGate creates a gate reading the wall clock.
func NewApprovalGate(gw repository.Gateway) *ApprovalGate {
	return &ApprovalGate{gw: gw, now: time.Now}
}

// RequestApproval creates a pending request for (game, child), or returns
// the existing record when one is already pending or approved. A rejected
// record is replaced by a fresh pending request.
func (g *ApprovalGate) RequestApproval(ctx context.Context, gameID, childID, gameName string) (*model.ApprovalRecord, error) {
	if gameID == "" || childID == "" {
		return nil, fmt.Errorf("%w: game id and child id are required", ErrValidation)
	}

	existing, err := g.gw.Approval(ctx, gameID, childID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}
	if existing != nil && (existing.Status == model.ApprovalPending || existing.Status == model.ApprovalApproved) {
		return existing, nil
	}

	rec := &model.ApprovalRecord{
		ID:          uuid.New(),
		GameID:      gameID,
		ChildID:     childID,
		GameName:    gameName,
		Status:      model.ApprovalPending,
		RequestedAt: g.now(),
	}
	if err := g.gw.UpsertApproval(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save approval request: %w", err)
	}

	log.Info().
		Str("game_id", gameID).
		Str("child_id", childID).
		Str("request_id", rec.ID.String()).
		Msg("approval requested")
	return rec, nil
}

// Decide records the guardian's decision on a pending request. When
// approving, an optional time restriction may be attached. The caller is
// responsible for having verified guardian identity.
func (g *ApprovalGate) Decide(ctx context.Context, requestID uuid.UUID, approved bool, restriction *model.TimeRestriction, note string) error {
	rec, err := g.gw.ApprovalByID(ctx, requestID)
	if err != nil {
		return err
	}
	if rec.Status != model.ApprovalPending {
		return ErrAlreadyDecided
	}

	now := g.now()
	rec.DecidedAt = &now
	rec.GuardianNote = note
	if approved {
		rec.Status = model.ApprovalApproved
		rec.Restriction = restriction
	} else {
		rec.Status = model.ApprovalRejected
		rec.Restriction = nil
	}
	if err := g.gw.UpsertApproval(ctx, rec); err != nil {
		return fmt.Errorf("failed to save approval decision: %w", err)
	}

	log.Info().
		Str("game_id", rec.GameID).
		Str("child_id", rec.ChildID).
		Bool("approved", approved).
		Msg("approval decided")
	return nil
}

// Revoke returns an approved record to pending, clearing the decision.
func (g *ApprovalGate) Revoke(ctx context.Context, gameID, childID string) error {
	rec, err := g.gw.Approval(ctx, gameID, childID)
	if err != nil {
		return err
	}
	if rec.Status != model.ApprovalApproved {
		return ErrNotApprovedYet
	}

	rec.Status = model.ApprovalPending
	rec.Restriction = nil
	rec.DecidedAt = nil
	rec.RequestedAt = g.now()
	if err := g.gw.UpsertApproval(ctx, rec); err != nil {
		return fmt.Errorf("failed to revoke approval: %w", err)
	}

	log.Info().Str("game_id", gameID).Str("child_id", childID).Msg("approval revoked")
	return nil
}

// Status returns the approval record for (game, child).
func (g *ApprovalGate) Status(ctx context.Context, gameID, childID string) (*model.ApprovalRecord, error) {
	return g.gw.Approval(ctx, gameID, childID)
}

// CanPlayNow reports whether the child may play the game right now. The
// checks run in order: approval status, daily minute cap, clock window,
// blocked weekday; the first failing check wins.
func (g *ApprovalGate) CanPlayNow(ctx context.Context, gameID, childID string) (bool, Denial, error) {
	rec, err := g.gw.Approval(ctx, gameID, childID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, DenialNotApproved, nil
		}
		return false, DenialNone, fmt.Errorf("failed to load approval: %w", err)
	}
	if rec.Status != model.ApprovalApproved {
		return false, DenialNotApproved, nil
	}

	r := rec.Restriction
	if r == nil {
		return true, DenialNone, nil
	}
	now := g.now()

	if r.MaxDailyMinutes > 0 {
		minutes, err := g.gw.PlayMinutesOn(ctx, childID, now)
		if err != nil {
			return false, DenialNone, fmt.Errorf("failed to load play minutes: %w", err)
		}
		if minutes >= r.MaxDailyMinutes {
			return false, DenialDailyLimit, nil
		}
	}

	if r.HasWindow() && !inWindow(now, r.AllowedStart, r.AllowedEnd) {
		return false, DenialOutsideWindow, nil
	}

	if r.BlocksWeekday(now.Weekday()) {
		return false, DenialBlockedDay, nil
	}

	return true, DenialNone, nil
}

// inWindow checks a minutes-since-midnight window. A window whose start is
// after its end wraps past midnight: (20:00, 08:00) admits 23:00 and
// 02:00, rejects 10:00.
func inWindow(now time.Time, start, end int) bool {
	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}
