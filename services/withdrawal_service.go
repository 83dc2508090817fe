package services

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"tournament-wallet-system/models"
	"tournament-wallet-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// WithdrawalService turns a user withdrawal request into an approved,
// rejected or auto-processed ledger transaction. It owns the request state
// machine; only the wallet service creates the resulting transaction.
type WithdrawalService struct {
	DB      *gorm.DB
	Wallet  *WalletService
	Payouts *PayoutClient // nil disables external confirmation on the auto path

	MinAmount   int64 // minor units
	MaxAmount   int64
	AutoEnabled bool
	AutoLimit   int64 // requests at or under this amount qualify for auto-processing
}

func NewWithdrawalService(db *gorm.DB, wallet *WalletService, payouts *PayoutClient) *WithdrawalService {
	return &WithdrawalService{
		DB:          db,
		Wallet:      wallet,
		Payouts:     payouts,
		MinAmount:   envInt64("WITHDRAWAL_MIN", 100),     // $1.00
		MaxAmount:   envInt64("WITHDRAWAL_MAX", 1000000), // $10,000.00
		AutoEnabled: os.Getenv("AUTO_WITHDRAWAL_ENABLED") == "true",
		AutoLimit:   envInt64("AUTO_WITHDRAWAL_LIMIT", 5000), // $50.00
	}
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("⚠️ invalid %s=%q, using default %d", key, os.Getenv(key), fallback)
	}
	return fallback
}

// RequestWithdrawal validates and records a new request. An amount above the
// available balance is rejected here and never reaches pending. The request
// ID is the client's idempotency key; replays return the existing request.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, accountID string, amount int64, payoutMethod, idempotencyKey string) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.DB.WithContext(ctx).First(&req, "id = ?", idempotencyKey).Error
	if err == nil {
		if req.AccountID != accountID || req.Amount != amount {
			return nil, ErrCorrelationConflict
		}
		return &req, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if amount < s.MinAmount || amount > s.MaxAmount {
		return nil, ErrAmountOutOfRange
	}
	balance, err := s.Wallet.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if amount > balance {
		return nil, ErrInsufficientFunds
	}

	state := models.WithdrawalStatePending
	if s.AutoEnabled && amount <= s.AutoLimit {
		state = models.WithdrawalStateAutoProcessing
	}
	req = models.WithdrawalRequest{
		ID:           idempotencyKey,
		AccountID:    accountID,
		Amount:       amount,
		PayoutMethod: payoutMethod,
		State:        state,
	}
	if err := s.DB.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}
	log.Printf("💸 [WITHDRAWAL] request %s: account=%s amount=%s state=%s",
		req.ID, accountID, utils.FormatAmount(amount), state)
	return &req, nil
}

// Approve moves pending → approved and executes the debit. Approving an
// already-terminal request is a no-op returning the existing state
// (administrators may double-submit). If the debit fails because the balance
// dropped since the request, the request goes to failed and is surfaced for
// manual reconciliation, never silently retried.
func (s *WithdrawalService) Approve(ctx context.Context, requestID, adminID, notes string) (*models.WithdrawalRequest, error) {
	req, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State.Terminal() {
		return req, nil
	}

	if req.State == models.WithdrawalStatePending {
		res := s.DB.WithContext(ctx).Model(&models.WithdrawalRequest{}).
			Where("id = ? AND state = ?", requestID, models.WithdrawalStatePending).
			Updates(map[string]interface{}{
				"state":       models.WithdrawalStateApproved,
				"admin_id":    adminID,
				"admin_notes": notes,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Another administrator got there first; report whatever state
			// the request landed in.
			if req, err = s.get(ctx, requestID); err != nil {
				return nil, err
			}
			if req.State.Terminal() {
				return req, nil
			}
			return nil, ErrInvalidTransition
		}
		req.State = models.WithdrawalStateApproved
		req.AdminID = adminID
		req.AdminNotes = notes
	} else if req.State != models.WithdrawalStateApproved {
		return nil, ErrInvalidTransition
	}

	return s.executeDebit(ctx, req)
}

// executeDebit runs the withdrawal debit for an approved or auto-processing
// request and settles it to completed or failed. The debit is idempotent on
// the request id, so resuming after a transient failure is safe.
func (s *WithdrawalService) executeDebit(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	txn, err := s.Wallet.ApplyTransaction(ctx, req.AccountID, models.TransactionKindWithdrawal, -req.Amount, req.ID)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			// Balance dropped since the request (spent elsewhere in between).
			transactionID := ""
			if txn != nil {
				transactionID = txn.ID
			}
			if err := s.settle(ctx, req, models.WithdrawalStateFailed, transactionID); err != nil {
				return nil, err
			}
			log.Printf("⚠️ [WITHDRAWAL] request %s failed: balance below %s — manual reconciliation required",
				req.ID, utils.FormatAmount(req.Amount))
			return req, nil
		}
		return nil, err
	}
	if err := s.settle(ctx, req, models.WithdrawalStateCompleted, txn.ID); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *WithdrawalService) settle(ctx context.Context, req *models.WithdrawalRequest, state models.WithdrawalState, transactionID string) error {
	now := time.Now()
	err := s.DB.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{
			"state":          state,
			"transaction_id": transactionID,
			"decided_at":     &now,
		}).Error
	if err != nil {
		return err
	}
	req.State = state
	req.TransactionID = transactionID
	req.DecidedAt = &now
	return nil
}

// Reject is terminal with no ledger side effect. A reason is required.
// Rejecting an already-terminal request is a no-op returning the existing
// state.
func (s *WithdrawalService) Reject(ctx context.Context, requestID, adminID, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	req, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State.Terminal() {
		return req, nil
	}
	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&models.WithdrawalRequest{}).
		Where("id = ? AND state IN ?", requestID,
			[]models.WithdrawalState{models.WithdrawalStatePending, models.WithdrawalStateAutoProcessing}).
		Updates(map[string]interface{}{
			"state":         models.WithdrawalStateRejected,
			"admin_id":      adminID,
			"reject_reason": reason,
			"decided_at":    &now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if req, err = s.get(ctx, requestID); err != nil {
			return nil, err
		}
		if req.State.Terminal() {
			return req, nil
		}
		return nil, ErrInvalidTransition
	}
	req.State = models.WithdrawalStateRejected
	req.AdminID = adminID
	req.RejectReason = reason
	req.DecidedAt = &now
	return req, nil
}

// ProcessAutoQueue drives every auto_processing request through external
// payout confirmation and the idempotent debit. Called by the withdrawal
// processor worker.
func (s *WithdrawalService) ProcessAutoQueue(ctx context.Context) (int, error) {
	var queue []models.WithdrawalRequest
	if err := s.DB.WithContext(ctx).
		Where("state = ?", models.WithdrawalStateAutoProcessing).
		Order("created_at ASC").
		Find(&queue).Error; err != nil {
		return 0, err
	}

	processed := 0
	for i := range queue {
		req := &queue[i]
		if s.Payouts != nil {
			conf, err := s.Payouts.ConfirmPayout(ctx, req.ID, req.AccountID, req.Amount, req.PayoutMethod)
			if err != nil {
				log.Printf("⚠️ [WITHDRAWAL] payout confirmation unavailable for %s: %v — will retry", req.ID, err)
				continue
			}
			if !conf.Confirmed {
				if err := s.settle(ctx, req, models.WithdrawalStateFailed, ""); err != nil {
					return processed, err
				}
				processed++
				continue
			}
			if conf.Reference != "" {
				if err := s.DB.WithContext(ctx).Model(&models.WithdrawalRequest{}).
					Where("id = ?", req.ID).
					Update("payout_reference", conf.Reference).Error; err != nil {
					return processed, err
				}
			}
		}
		if _, err := s.executeDebit(ctx, req); err != nil {
			log.Printf("❌ [WITHDRAWAL] auto-processing %s: %v", req.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *WithdrawalService) get(ctx context.Context, requestID string) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	if err := s.DB.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ListForAccount returns the caller's requests, newest first.
func (s *WithdrawalService) ListForAccount(ctx context.Context, accountID string) ([]models.WithdrawalRequest, error) {
	var reqs []models.WithdrawalRequest
	err := s.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

// --- Fiber handlers ---

// RequestHandler handles POST /withdrawals.
func (s *WithdrawalService) RequestHandler(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	type Req struct {
		Amount         int64  `json:"amount"`
		PayoutMethod   string `json:"payout_method"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.IdempotencyKey == "" || req.PayoutMethod == "" {
		return c.Status(400).JSON(fiber.Map{"error": "idempotency_key and payout_method are required"})
	}
	wr, err := s.RequestWithdrawal(c.Context(), accountID, req.Amount, req.PayoutMethod, req.IdempotencyKey)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"request_id": wr.ID, "status": wr.State})
}

// ListHandler handles GET /withdrawals.
func (s *WithdrawalService) ListHandler(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	reqs, err := s.ListForAccount(c.Context(), accountID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"withdrawals": reqs})
}

// ApproveHandler handles POST /admin/withdrawals/:id/approve.
func (s *WithdrawalService) ApproveHandler(c *fiber.Ctx) error {
	adminID, _ := c.Locals("user_id").(string)
	type Req struct {
		Notes string `json:"notes"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	wr, err := s.Approve(c.Context(), c.Params("id"), adminID, req.Notes)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(wr)
}

// RejectHandler handles POST /admin/withdrawals/:id/reject.
func (s *WithdrawalService) RejectHandler(c *fiber.Ctx) error {
	adminID, _ := c.Locals("user_id").(string)
	type Req struct {
		Reason string `json:"reason"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	wr, err := s.Reject(c.Context(), c.Params("id"), adminID, req.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(wr)
}
