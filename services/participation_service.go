package services

import (
	"context"
	"errors"
	"log"
	"time"

	"tournament-wallet-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ParticipationService is the join protocol: reserve a slot with an atomic
// conditional update against the tournament counter, debit the entry fee, and
// confirm, or release the slot synchronously if the debit fails. No step
// leaves partial state behind silently.
type ParticipationService struct {
	DB     *gorm.DB
	Wallet *WalletService
}

func NewParticipationService(db *gorm.DB, wallet *WalletService) *ParticipationService {
	return &ParticipationService{DB: db, Wallet: wallet}
}

// JoinTournament reserves a slot and debits the entry fee. idempotencyKey is
// client-supplied, becomes the Participation ID and the correlation id of the
// debit; a replay with the same key returns the original outcome and debits
// the account at most once. A retry of a reserved participation resumes at
// the debit step.
func (s *ParticipationService) JoinTournament(ctx context.Context, accountID, tournamentID, idempotencyKey string) (*models.Participation, error) {
	var (
		participation models.Participation
		entryFee      int64
		replayed      bool
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tournament
		if err := tx.First(&t, "id = ?", tournamentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		entryFee = t.EntryFee

		err := tx.First(&participation, "id = ?", idempotencyKey).Error
		if err == nil {
			if participation.AccountID != accountID || participation.TournamentID != tournamentID {
				return ErrCorrelationConflict
			}
			replayed = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !t.Joinable(time.Now()) {
			return ErrTournamentNotJoinable
		}

		// Test-and-increment in a single conditional UPDATE. When one slot is
		// left and N joins race, exactly one of them flips the counter; the
		// rest see zero rows affected. This runs before the duplicate check on
		// purpose: the write locks the tournament row, so by the time the
		// count below executes, a racing join by the same account has either
		// committed (and is visible) or rolled back.
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND confirmed_count < capacity", tournamentID).
			UpdateColumn("confirmed_count", gorm.Expr("confirmed_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTournamentFull
		}

		var existing int64
		if err := tx.Model(&models.Participation{}).
			Where("account_id = ? AND tournament_id = ? AND state <> ?",
				accountID, tournamentID, models.ParticipationStateCancelled).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyJoined // rollback gives the reserved slot back
		}

		participation = models.Participation{
			ID:           idempotencyKey,
			AccountID:    accountID,
			TournamentID: tournamentID,
			State:        models.ParticipationStateReserved,
			ReservedAt:   time.Now(),
		}
		if entryFee == 0 {
			now := time.Now()
			participation.State = models.ParticipationStateConfirmed
			participation.ConfirmedAt = &now
		}
		if err := tx.Create(&participation).Error; err != nil {
			// The partial unique index on (account_id, tournament_id) catches
			// the duplicate the count above could not see.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyJoined
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed && participation.State == models.ParticipationStateCancelled {
		// A cancelled participation means either the fee debit failed or the
		// account later withdrew. Only the former replays as a funds failure;
		// a withdrawal replays as the participation it ended up as.
		var failed int64
		if err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
			Where("correlation_id = ? AND kind = ? AND status = ?",
				participation.ID, models.TransactionKindEntryFee, models.TransactionStatusFailed).
			Count(&failed).Error; err != nil {
			return nil, err
		}
		if failed > 0 {
			return &participation, ErrInsufficientFunds
		}
		return &participation, nil
	}
	if participation.State == models.ParticipationStateConfirmed {
		return &participation, nil
	}

	txn, err := s.Wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -entryFee, participation.ID)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			// Release the slot synchronously so the next joiner sees it;
			// a reservation is never left soft-held on a definitive failure.
			if rbErr := s.releaseReservation(ctx, participation.ID, tournamentID); rbErr != nil {
				log.Printf("⚠️ [JOIN] slot release failed for participation %s: %v — reconciliation will pick it up", participation.ID, rbErr)
			}
			return nil, ErrInsufficientFunds
		}
		// Transient failure: the reservation stays, the same key resumes the
		// debit, and the reconciliation worker releases it after the grace
		// period if the caller never comes back.
		return nil, err
	}

	if err := s.confirmReservation(ctx, &participation, txn.ID); err != nil {
		return nil, err
	}
	return &participation, nil
}

func (s *ParticipationService) confirmReservation(ctx context.Context, p *models.Participation, transactionID string) error {
	now := time.Now()
	err := s.DB.WithContext(ctx).Model(&models.Participation{}).
		Where("id = ? AND state = ?", p.ID, models.ParticipationStateReserved).
		Updates(map[string]interface{}{
			"state":          models.ParticipationStateConfirmed,
			"transaction_id": transactionID,
			"confirmed_at":   &now,
		}).Error
	if err != nil {
		return err
	}
	p.State = models.ParticipationStateConfirmed
	p.TransactionID = transactionID
	p.ConfirmedAt = &now
	return nil
}

// releaseReservation cancels a reserved participation and gives its slot back,
// as one compensating database transaction.
func (s *ParticipationService) releaseReservation(ctx context.Context, participationID, tournamentID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Participation{}).
			Where("id = ? AND state = ?", participationID, models.ParticipationStateReserved).
			Updates(map[string]interface{}{
				"state":        models.ParticipationStateCancelled,
				"cancelled_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already resolved elsewhere
		}
		return tx.Model(&models.Tournament{}).
			Where("id = ? AND confirmed_count > 0", tournamentID).
			UpdateColumn("confirmed_count", gorm.Expr("confirmed_count - 1")).Error
	})
}

// CancelParticipation withdraws from a tournament before it starts and
// refunds the entry fee. The refund reverses the original fee debit (a
// compensating adjustment keyed on the participation id), so retries after a
// partial failure are safe: the refund replays, then the slot is released.
func (s *ParticipationService) CancelParticipation(ctx context.Context, accountID, tournamentID string) (bool, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrTournamentNotFound
		}
		return false, err
	}
	if !time.Now().Before(t.StartTime) {
		return false, ErrCancellationClosed
	}

	var p models.Participation
	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND tournament_id = ? AND state <> ?",
			accountID, tournamentID, models.ParticipationStateCancelled).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrParticipationNotFound
		}
		return false, err
	}

	refunded := false
	if p.State == models.ParticipationStateConfirmed && p.TransactionID != "" && t.EntryFee > 0 {
		if _, err := s.Wallet.ReverseTransaction(ctx, p.TransactionID); err != nil {
			return false, err
		}
		refunded = true
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Participation{}).
			Where("id = ? AND state <> ?", p.ID, models.ParticipationStateCancelled).
			Updates(map[string]interface{}{
				"state":        models.ParticipationStateCancelled,
				"cancelled_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.Tournament{}).
			Where("id = ? AND confirmed_count > 0", tournamentID).
			UpdateColumn("confirmed_count", gorm.Expr("confirmed_count - 1")).Error
	})
	if err != nil {
		return refunded, err
	}
	return refunded, nil
}

// ReleaseOrphanedReservations resolves reservations stranded by a crash or
// timeout between the reservation and the debit confirmation. A reservation
// whose fee debit actually completed is confirmed; anything else older than
// the grace period is cancelled and its slot released.
func (s *ParticipationService) ReleaseOrphanedReservations(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace)
	var orphans []models.Participation
	if err := s.DB.WithContext(ctx).
		Where("state = ? AND reserved_at < ?", models.ParticipationStateReserved, cutoff).
		Find(&orphans).Error; err != nil {
		return 0, err
	}

	released := 0
	for i := range orphans {
		p := orphans[i]
		var txn models.Transaction
		err := s.DB.WithContext(ctx).
			Where("correlation_id = ? AND kind = ? AND status = ?",
				p.ID, models.TransactionKindEntryFee, models.TransactionStatusCompleted).
			First(&txn).Error
		switch {
		case err == nil:
			if err := s.confirmReservation(ctx, &p, txn.ID); err != nil {
				log.Printf("❌ [RECONCILE] failed to confirm orphaned participation %s: %v", p.ID, err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.releaseReservation(ctx, p.ID, p.TournamentID); err != nil {
				log.Printf("❌ [RECONCILE] failed to release orphaned participation %s: %v", p.ID, err)
				continue
			}
			released++
		default:
			return released, err
		}
	}
	return released, nil
}

// --- Fiber handlers ---

// JoinHandler handles POST /tournaments/:id/join.
func (s *ParticipationService) JoinHandler(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	tournamentID := c.Params("id")
	type Req struct {
		IdempotencyKey string `json:"idempotency_key"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.IdempotencyKey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "idempotency_key is required"})
	}
	p, err := s.JoinTournament(c.Context(), accountID, tournamentID, req.IdempotencyKey)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{
		"participation_id": p.ID,
		"status":           p.State,
	})
}

// CancelParticipationHandler handles POST /tournaments/:id/cancel-participation.
func (s *ParticipationService) CancelParticipationHandler(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	tournamentID := c.Params("id")
	refunded, err := s.CancelParticipation(c.Context(), accountID, tournamentID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"refunded": refunded})
}
