package models

import (
	"time"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindWithdrawal  TransactionKind = "withdrawal"
	TransactionKindEntryFee    TransactionKind = "entry_fee"
	TransactionKindPrizePayout TransactionKind = "prize_payout"
	TransactionKindTransfer    TransactionKind = "transfer"
	TransactionKindAdjustment  TransactionKind = "adjustment"
)

// TransactionStatus is the lifecycle of a ledger entry. Once completed, amount
// and kind are frozen; the only further move is completed → reversed, and only
// via an explicit compensating adjustment.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Account is a user's wallet. Balance is a materialized running total in minor
// units (cents) and is only ever moved by the wallet service, atomically with
// the ledger write. The ledger is the source of truth; Balance is reconciled
// against it periodically.
type Account struct {
	ID               string     `json:"id" gorm:"primaryKey;type:uuid"` // external user ID from the profile service
	Username         string     `json:"username" gorm:"index"`          // denormalized via sync worker
	Currency         string     `json:"currency" gorm:"type:varchar(8);default:'USD'"`
	Balance          int64      `json:"balance" gorm:"not null;default:0"` // minor units
	LastReconciledAt *time.Time `json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Transaction is an immutable, append-only ledger entry. Seq is monotonically
// increasing and is the pagination / audit-replay order.
type Transaction struct {
	ID             string            `json:"id" gorm:"primaryKey;type:uuid"`
	Seq            int64             `json:"seq" gorm:"autoIncrement;uniqueIndex"`
	AccountID      string            `json:"account_id" gorm:"not null;index"`
	Kind           TransactionKind   `json:"kind" gorm:"type:varchar(16);not null;uniqueIndex:idx_txn_correlation_kind"`
	Amount         int64             `json:"amount" gorm:"not null"` // signed, minor units
	Status         TransactionStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	CorrelationID  string            `json:"correlation_id" gorm:"not null;uniqueIndex:idx_txn_correlation_kind"`
	CounterpartyID *string           `json:"counterparty_id,omitempty"` // other account on transfers
	Note           string            `json:"note,omitempty"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// BalanceAffecting reports whether the entry counts toward the ledger sum.
// A reversed entry still counts: its effect is cancelled by the compensating
// adjustment, not by excluding it from the sum.
func (t *Transaction) BalanceAffecting() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusReversed
}

// DebitKind reports whether the kind is expected to carry a negative amount.
func DebitKind(k TransactionKind) bool {
	return k == TransactionKindEntryFee || k == TransactionKindWithdrawal
}

// CreditKind reports whether the kind is expected to carry a positive amount.
func CreditKind(k TransactionKind) bool {
	return k == TransactionKindDeposit || k == TransactionKindPrizePayout
}
