package services

import (
	"errors"
)

// Sentinel errors surfaced by the core services. Handlers map these onto HTTP
// statuses; everything else is treated as a transient storage error (safe to
// retry the identical idempotent call).
var (
	// Validation: rejected synchronously, never retried.
	ErrInvalidAmount    = errors.New("amount sign does not match transaction kind")
	ErrAmountOutOfRange = errors.New("withdrawal amount outside configured limits")
	ErrInvalidSchedule  = errors.New("schedule window invalid")
	ErrInvalidCapacity  = errors.New("capacity must be at least 1")
	ErrReasonRequired   = errors.New("rejection reason required")

	// Conflict: definitive failure for this attempt; the caller may retry the
	// whole operation with a fresh idempotency key after re-reading state.
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrTournamentNotJoinable = errors.New("tournament is not joinable")
	ErrTournamentFull        = errors.New("tournament capacity exhausted")
	ErrAlreadyJoined         = errors.New("account already joined this tournament")
	ErrCancellationClosed    = errors.New("participation can no longer be cancelled")
	ErrInvalidTransition     = errors.New("status transition not allowed")

	// Not found.
	ErrAccountNotFound       = errors.New("account not found")
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrWithdrawalNotFound    = errors.New("withdrawal request not found")
	ErrTransactionNotFound   = errors.New("transaction not found")

	// Fatal/programming: idempotency key reuse with different parameters.
	// Logged and surfaced as an internal error, never retried.
	ErrCorrelationConflict = errors.New("correlation id reused with different parameters")

	// Workflow.
	ErrNotReversible = errors.New("only completed transactions can be reversed")
)
