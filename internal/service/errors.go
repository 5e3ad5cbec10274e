// Package service implements the reward and access control engine: the
// currency ledger, achievement engine, reward dispatcher, approval gate
// and session manager.
package service

import (
	"errors"

	"playguard/internal/repository"
)

// Engine errors returned to the play surface. None of them leave state
// partially mutated.
var (
	// ErrInsufficientFunds is returned when a spend exceeds the balance.
	ErrInsufficientFunds = repository.ErrInsufficientFunds
	// ErrValidation marks malformed input; nothing was changed.
	ErrValidation = errors.New("invalid input")
	// ErrAlreadyActive is returned when a session for the same game and
	// child is already running.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNotApproved is returned when the guardian has not approved the game.
	ErrNotApproved = errors.New("game not approved for child")
	// ErrOutsideAllowedTime is returned when the game is approved but the
	// guardian's time restriction blocks play right now.
	ErrOutsideAllowedTime = errors.New("outside allowed play time")
	// ErrNoSuchSession is returned for operations on an unknown or ended
	// session.
	ErrNoSuchSession = errors.New("no such session")
	// ErrAlreadyDecided is returned when deciding an approval request that
	// is no longer pending.
	ErrAlreadyDecided = errors.New("approval request already decided")
	// ErrNotApprovedYet is returned when revoking a record that is not
	// currently approved.
	ErrNotApprovedYet = errors.New("approval record is not approved")
)
