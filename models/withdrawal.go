package models

import (
	"time"
)

// WithdrawalState is the withdrawal request lifecycle.
type WithdrawalState string

const (
	WithdrawalStatePending        WithdrawalState = "pending"
	WithdrawalStateApproved       WithdrawalState = "approved"
	WithdrawalStateRejected       WithdrawalState = "rejected"
	WithdrawalStateAutoProcessing WithdrawalState = "auto_processing"
	WithdrawalStateCompleted      WithdrawalState = "completed"
	WithdrawalStateFailed         WithdrawalState = "failed"
)

var withdrawalTransitions = map[WithdrawalState][]WithdrawalState{
	WithdrawalStatePending:        {WithdrawalStateApproved, WithdrawalStateRejected, WithdrawalStateAutoProcessing},
	WithdrawalStateApproved:       {WithdrawalStateCompleted, WithdrawalStateFailed},
	WithdrawalStateAutoProcessing: {WithdrawalStateCompleted, WithdrawalStateFailed, WithdrawalStateRejected},
}

// CanTransitionTo reports whether the workflow graph allows s → to.
func (s WithdrawalState) CanTransitionTo(to WithdrawalState) bool {
	for _, next := range withdrawalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the request reached a final state. Terminal
// requests are immutable except for audit notes; approving or rejecting one
// again is a no-op, not an error.
func (s WithdrawalState) Terminal() bool {
	return len(withdrawalTransitions[s]) == 0
}

// WithdrawalRequest is a user's request to move balance out of the wallet.
// Its ID is the client's idempotency key and doubles as the correlation ID on
// the resulting withdrawal debit. The ledger transaction is created only by
// the wallet service, on approval or auto-processing.
type WithdrawalRequest struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID       string          `json:"account_id" gorm:"not null;index"`
	Amount          int64           `json:"amount" gorm:"not null"` // minor units, > 0
	PayoutMethod    string          `json:"payout_method" gorm:"not null"`
	PayoutReference string          `json:"payout_reference,omitempty"` // external processor ref (auto path)
	State           WithdrawalState `json:"state" gorm:"type:varchar(24);not null;default:'pending'"`
	AdminID         string          `json:"admin_id,omitempty"`
	AdminNotes      string          `json:"admin_notes,omitempty"`
	RejectReason    string          `json:"reject_reason,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"` // set on completion (or recorded failed attempt)
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}
