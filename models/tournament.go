package models

import (
	"time"
)

// TournamentStatus is the tournament lifecycle state.
type TournamentStatus string

const (
	TournamentStatusPendingApproval TournamentStatus = "pending_approval"
	TournamentStatusApproved        TournamentStatus = "approved"
	TournamentStatusRejected        TournamentStatus = "rejected"
	TournamentStatusUpcoming        TournamentStatus = "upcoming"
	TournamentStatusLive            TournamentStatus = "live"
	TournamentStatusCompleted       TournamentStatus = "completed"
	TournamentStatusCancelled       TournamentStatus = "cancelled"
)

// tournamentTransitions is the allowed status graph. Transitions are monotonic:
// there is no path back from a later state to an earlier one, and rejected,
// completed and cancelled are terminal.
var tournamentTransitions = map[TournamentStatus][]TournamentStatus{
	TournamentStatusPendingApproval: {TournamentStatusApproved, TournamentStatusRejected},
	TournamentStatusApproved:        {TournamentStatusUpcoming, TournamentStatusCancelled},
	TournamentStatusUpcoming:        {TournamentStatusLive, TournamentStatusCancelled},
	TournamentStatusLive:            {TournamentStatusCompleted, TournamentStatusCancelled},
}

// CanTransitionTo reports whether the status graph allows s → to.
func (s TournamentStatus) CanTransitionTo(to TournamentStatus) bool {
	for _, next := range tournamentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s TournamentStatus) Terminal() bool {
	return len(tournamentTransitions[s]) == 0
}

// Tournament is a joinable competitive event. ConfirmedCount is the hot
// capacity counter: it is only ever moved through the registry's conditional
// update, never by a read-modify-write from application code.
type Tournament struct {
	ID             string           `json:"id" gorm:"primaryKey;type:uuid"`
	Slug           string           `json:"slug" gorm:"uniqueIndex;not null"`
	Name           string           `json:"name" gorm:"not null"`
	Description    string           `json:"description"`
	Rules          string           `json:"rules"`
	Genre          string           `json:"genre"`
	EntryFee       int64            `json:"entry_fee" gorm:"not null;default:0"` // minor units, >= 0
	PrizePool      int64            `json:"prize_pool" gorm:"not null;default:0"`
	Capacity       int              `json:"capacity" gorm:"not null"`                  // max participants, >= 1
	ConfirmedCount int              `json:"confirmed_count" gorm:"not null;default:0"` // <= Capacity, always
	Status         TournamentStatus `json:"status" gorm:"type:varchar(24);not null;default:'pending_approval'"`
	StartTime      time.Time        `json:"start_time" gorm:"not null"`
	EndTime        time.Time        `json:"end_time" gorm:"not null"`
	CreatorID      string           `json:"creator_id" gorm:"not null;index"`
	ApproverID     string           `json:"approver_id,omitempty"`
	ApprovalNote   string           `json:"approval_note,omitempty"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty"`
	CancelledAt    *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"autoUpdateTime"`

	Participations []Participation `json:"participations,omitempty" gorm:"foreignKey:TournamentID"`
}

// Joinable reports whether joins are open at the given instant.
func (t *Tournament) Joinable(now time.Time) bool {
	return t.Status == TournamentStatusUpcoming && now.Before(t.StartTime)
}

// ParticipationState is the two-phase join state: a slot is provisionally
// reserved, then confirmed only once the entry-fee debit completed.
type ParticipationState string

const (
	ParticipationStateReserved  ParticipationState = "reserved"
	ParticipationStateConfirmed ParticipationState = "confirmed"
	ParticipationStateCancelled ParticipationState = "cancelled"
)

// Participation links an account to a tournament. Its ID is the client's
// idempotency key for the join, and doubles as the correlation ID on the
// entry-fee debit and any refund. At most one non-cancelled row may exist per
// (account, tournament); the partial unique index is the backstop for that,
// independent of any application-level check.
type Participation struct {
	ID            string             `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID     string             `json:"account_id" gorm:"not null;uniqueIndex:idx_participation_active,where:state <> 'cancelled'"`
	TournamentID  string             `json:"tournament_id" gorm:"not null;uniqueIndex:idx_participation_active,where:state <> 'cancelled'"`
	State         ParticipationState `json:"state" gorm:"type:varchar(16);not null;default:'reserved'"`
	TransactionID string             `json:"transaction_id,omitempty"` // entry-fee debit
	ReservedAt    time.Time          `json:"reserved_at" gorm:"autoCreateTime"`
	ConfirmedAt   *time.Time         `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
}
