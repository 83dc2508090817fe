package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tournament-wallet-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// TournamentService is the registry and approval engine: it owns Tournament
// rows, and its transition helper is the only code that moves a tournament's
// status along the lifecycle graph.
type TournamentService struct {
	DB     *gorm.DB
	Wallet *WalletService
}

func NewTournamentService(db *gorm.DB, wallet *WalletService) *TournamentService {
	return &TournamentService{DB: db, Wallet: wallet}
}

// TournamentDefinition is the user-submitted shape of a new tournament.
type TournamentDefinition struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rules       string    `json:"rules"`
	Genre       string    `json:"genre"`
	EntryFee    int64     `json:"entry_fee"`
	PrizePool   int64     `json:"prize_pool"`
	Capacity    int       `json:"capacity"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

func (d *TournamentDefinition) validate() error {
	if d.Capacity < 1 {
		return ErrInvalidCapacity
	}
	if d.EntryFee < 0 || d.PrizePool < 0 {
		return ErrInvalidAmount
	}
	if !d.StartTime.Before(d.EndTime) {
		return ErrInvalidSchedule
	}
	return nil
}

// SubmitTournament records a user-created tournament in pending_approval.
// idempotencyKey becomes the tournament ID; replays return the existing row.
func (s *TournamentService) SubmitTournament(ctx context.Context, creatorID string, def TournamentDefinition, idempotencyKey string) (*models.Tournament, error) {
	var t models.Tournament
	err := s.DB.WithContext(ctx).First(&t, "id = ?", idempotencyKey).Error
	if err == nil {
		if t.CreatorID != creatorID {
			return nil, ErrCorrelationConflict
		}
		return &t, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := def.validate(); err != nil {
		return nil, err
	}

	id := idempotencyKey
	if id == "" {
		id = uuid.NewString()
	}
	t = models.Tournament{
		ID:          id,
		Slug:        slug.Make(def.Name) + "-" + id[:8],
		Name:        def.Name,
		Description: def.Description,
		Rules:       def.Rules,
		Genre:       def.Genre,
		EntryFee:    def.EntryFee,
		PrizePool:   def.PrizePool,
		Capacity:    def.Capacity,
		Status:      models.TournamentStatusPendingApproval,
		StartTime:   def.StartTime,
		EndTime:     def.EndTime,
		CreatorID:   creatorID,
	}
	if err := s.DB.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// transition is the single status mutator. The WHERE clause carries the
// from-state, so a concurrent transition loses cleanly instead of clobbering.
func (s *TournamentService) transition(tx *gorm.DB, t *models.Tournament, to models.TournamentStatus, extra map[string]interface{}) error {
	if !t.Status.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Tournament{}).
		Where("id = ? AND status = ?", t.ID, t.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	t.Status = to
	return nil
}

// ApproveTournament moves pending_approval → approved after re-validating
// schedule consistency and capacity. Approving an already-decided tournament
// is a no-op returning the current state.
func (s *TournamentService) ApproveTournament(ctx context.Context, tournamentID, adminID string) (*models.Tournament, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusPendingApproval {
		return t, nil
	}
	if t.Capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if !t.StartTime.Before(t.EndTime) || !time.Now().Before(t.StartTime) {
		return nil, ErrInvalidSchedule
	}
	now := time.Now()
	err = s.transition(s.DB.WithContext(ctx), t, models.TournamentStatusApproved, map[string]interface{}{
		"approver_id": adminID,
		"decided_at":  &now,
	})
	if err != nil {
		return nil, err
	}
	t.ApproverID = adminID
	t.DecidedAt = &now
	log.Printf("✅ [TOURNAMENT] %s (%s) approved by %s", t.Name, t.ID, adminID)
	return t, nil
}

// RejectTournament moves pending_approval → rejected (terminal). A reason is
// required; rejecting an already-decided tournament is a no-op.
func (s *TournamentService) RejectTournament(ctx context.Context, tournamentID, adminID, reason string) (*models.Tournament, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusPendingApproval {
		return t, nil
	}
	now := time.Now()
	err = s.transition(s.DB.WithContext(ctx), t, models.TournamentStatusRejected, map[string]interface{}{
		"approver_id":   adminID,
		"approval_note": reason,
		"decided_at":    &now,
	})
	if err != nil {
		return nil, err
	}
	t.ApproverID = adminID
	t.ApprovalNote = reason
	t.DecidedAt = &now
	return t, nil
}

// CancelTournament cancels before completion. Every confirmed participation
// is refunded (reversing its entry-fee debit, keyed on the participation id)
// before the status moves, so a partial failure leaves the tournament in its
// previous status and the whole call safely retryable.
func (s *TournamentService) CancelTournament(ctx context.Context, tournamentID, adminID string) (*models.Tournament, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status == models.TournamentStatusCancelled {
		return t, nil
	}
	if !t.Status.CanTransitionTo(models.TournamentStatusCancelled) {
		return nil, ErrInvalidTransition
	}

	var confirmed []models.Participation
	if err := s.DB.WithContext(ctx).
		Where("tournament_id = ? AND state = ?", tournamentID, models.ParticipationStateConfirmed).
		Find(&confirmed).Error; err != nil {
		return nil, err
	}
	refunds := 0
	for i := range confirmed {
		p := &confirmed[i]
		if p.TransactionID != "" && t.EntryFee > 0 {
			if _, err := s.Wallet.ReverseTransaction(ctx, p.TransactionID); err != nil {
				return nil, fmt.Errorf("refund for participation %s: %w", p.ID, err)
			}
			refunds++
		}
		now := time.Now()
		if err := s.DB.WithContext(ctx).Model(&models.Participation{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"state":        models.ParticipationStateCancelled,
				"cancelled_at": &now,
			}).Error; err != nil {
			return nil, err
		}
	}

	now := time.Now()
	err = s.transition(s.DB.WithContext(ctx), t, models.TournamentStatusCancelled, map[string]interface{}{
		"cancelled_at":    &now,
		"confirmed_count": 0,
	})
	if err != nil {
		return nil, err
	}
	t.CancelledAt = &now
	t.ConfirmedCount = 0
	log.Printf("🛑 [TOURNAMENT] %s cancelled by %s — %d participation(s) refunded", t.ID, adminID, refunds)
	return t, nil
}

// PayoutPrize credits a winner from the prize pool after completion.
// Idempotent per (tournament, account).
func (s *TournamentService) PayoutPrize(ctx context.Context, tournamentID, accountID string, amount int64) (*models.Transaction, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusCompleted {
		return nil, ErrInvalidTransition
	}
	correlationID := "prize:" + tournamentID + ":" + accountID
	return s.Wallet.ApplyTransaction(ctx, accountID, models.TransactionKindPrizePayout, amount, correlationID)
}

// --- reads ---

func (s *TournamentService) GetTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TournamentService) GetTournamentBySlug(ctx context.Context, slugValue string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "slug = ?", slugValue).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TournamentService) ListTournaments(ctx context.Context, status models.TournamentStatus) ([]models.Tournament, error) {
	q := s.DB.WithContext(ctx).Order("start_time ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var ts []models.Tournament
	err := q.Find(&ts).Error
	return ts, err
}

// --- Fiber handlers ---

// SubmitHandler handles POST /tournaments.
func (s *TournamentService) SubmitHandler(c *fiber.Ctx) error {
	creatorID, _ := c.Locals("user_id").(string)
	type Req struct {
		TournamentDefinition
		IdempotencyKey string `json:"idempotency_key"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if req.IdempotencyKey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "idempotency_key is required"})
	}
	t, err := s.SubmitTournament(c.Context(), creatorID, req.TournamentDefinition, req.IdempotencyKey)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"tournament_id": t.ID, "status": t.Status})
}

// ApproveHandler handles POST /admin/tournaments/:id/approve.
func (s *TournamentService) ApproveHandler(c *fiber.Ctx) error {
	adminID, _ := c.Locals("user_id").(string)
	t, err := s.ApproveTournament(c.Context(), c.Params("id"), adminID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(t)
}

// RejectHandler handles POST /admin/tournaments/:id/reject.
func (s *TournamentService) RejectHandler(c *fiber.Ctx) error {
	adminID, _ := c.Locals("user_id").(string)
	type Req struct {
		Reason string `json:"reason"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	t, err := s.RejectTournament(c.Context(), c.Params("id"), adminID, req.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(t)
}

// CancelHandler handles POST /admin/tournaments/:id/cancel.
func (s *TournamentService) CancelHandler(c *fiber.Ctx) error {
	adminID, _ := c.Locals("user_id").(string)
	t, err := s.CancelTournament(c.Context(), c.Params("id"), adminID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(t)
}

// PayoutHandler handles POST /admin/tournaments/:id/payout.
func (s *TournamentService) PayoutHandler(c *fiber.Ctx) error {
	type Req struct {
		AccountID string `json:"account_id"`
		Amount    int64  `json:"amount"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	txn, err := s.PayoutPrize(c.Context(), c.Params("id"), req.AccountID, req.Amount)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(201).JSON(txn)
}

// GetHandler handles GET /tournaments/:id.
func (s *TournamentService) GetHandler(c *fiber.Ctx) error {
	t, err := s.GetTournament(c.Context(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(t)
}

// GetBySlugHandler handles GET /tournaments/slug/:slug.
func (s *TournamentService) GetBySlugHandler(c *fiber.Ctx) error {
	t, err := s.GetTournamentBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(t)
}

// ListHandler handles GET /tournaments?status=.
func (s *TournamentService) ListHandler(c *fiber.Ctx) error {
	ts, err := s.ListTournaments(c.Context(), models.TournamentStatus(c.Query("status")))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"tournaments": ts})
}

// ParticipantsHandler handles GET /tournaments/:id/participants.
func (s *TournamentService) ParticipantsHandler(c *fiber.Ctx) error {
	var ps []models.Participation
	err := s.DB.WithContext(c.Context()).
		Where("tournament_id = ? AND state <> ?", c.Params("id"), models.ParticipationStateCancelled).
		Order("reserved_at ASC").
		Find(&ps).Error
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"participants": ps})
}
