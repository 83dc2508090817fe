package services

import (
	"context"
	"errors"
	"log"
	"time"

	"tournament-wallet-system/models"
	"tournament-wallet-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletService owns all balance mutation. Every balance-affecting write goes
// through ApplyTransaction/ReverseTransaction so that the materialized
// Account.Balance moves atomically with the append-only ledger.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// GetBalance returns the materialized running balance in minor units.
func (s *WalletService) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var account models.Account
	if err := s.DB.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return account.Balance, nil
}

// ApplyTransaction appends a ledger entry and moves the balance in one
// database transaction. Debits pass only if the post-balance stays >= 0; the
// balance check and the write are a single conditional UPDATE, so two debits
// can never both pass against a stale read.
//
// The call is idempotent on (correlationID, kind): a replay with identical
// parameters returns the original entry (including a recorded failed attempt),
// a replay with different parameters is a programming error.
func (s *WalletService) ApplyTransaction(ctx context.Context, accountID string, kind models.TransactionKind, amount int64, correlationID string) (*models.Transaction, error) {
	if amount == 0 ||
		(models.DebitKind(kind) && amount >= 0) ||
		(models.CreditKind(kind) && amount <= 0) {
		return nil, ErrInvalidAmount
	}

	var txn models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("correlation_id = ? AND kind = ?", correlationID, kind).First(&txn).Error
		if err == nil {
			if txn.AccountID != accountID || txn.Amount != amount {
				log.Printf("❌ [WALLET] correlation %s/%s replayed with different parameters (account=%s, amount=%s)",
					correlationID, kind, accountID, utils.FormatAmount(amount))
				return ErrCorrelationConflict
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		txn = models.Transaction{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Kind:          kind,
			Amount:        amount,
			Status:        models.TransactionStatusPending,
			CorrelationID: correlationID,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Account{}).
			Where("id = ? AND balance + ? >= 0", accountID, amount).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&models.Account{}).Where("id = ?", accountID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return ErrAccountNotFound
			}
			// Keep the failed attempt on record; the replay of this
			// correlation id returns the same outcome.
			txn.Status = models.TransactionStatusFailed
			return tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).
				Update("status", txn.Status).Error
		}

		txn.Status = models.TransactionStatusCompleted
		return tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).
			Update("status", txn.Status).Error
	})
	if err != nil {
		return nil, err
	}
	if txn.Status == models.TransactionStatusFailed {
		return &txn, ErrInsufficientFunds
	}
	return &txn, nil
}

// ReverseTransaction writes a compensating adjustment of equal and opposite
// amount and marks the original reversed. Used when a later step of a
// multi-step workflow fails after the debit/credit already completed.
// Replaying the reversal returns the existing adjustment.
func (s *WalletService) ReverseTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var comp models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orig models.Transaction
		if err := tx.First(&orig, "id = ?", transactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		err := tx.Where("correlation_id = ? AND kind = ?", orig.CorrelationID, models.TransactionKindAdjustment).
			First(&comp).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if orig.Status != models.TransactionStatusCompleted {
			return ErrNotReversible
		}

		comp = models.Transaction{
			ID:            uuid.NewString(),
			AccountID:     orig.AccountID,
			Kind:          models.TransactionKindAdjustment,
			Amount:        -orig.Amount,
			Status:        models.TransactionStatusPending,
			CorrelationID: orig.CorrelationID,
			Note:          "reversal of " + orig.ID,
		}
		if err := tx.Create(&comp).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Account{}).
			Where("id = ? AND balance + ? >= 0", orig.AccountID, comp.Amount).
			UpdateColumn("balance", gorm.Expr("balance + ?", comp.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Reversing a credit would push the balance below zero.
			return ErrInsufficientFunds
		}

		comp.Status = models.TransactionStatusCompleted
		if err := tx.Model(&models.Transaction{}).Where("id = ?", comp.ID).
			Update("status", comp.Status).Error; err != nil {
			return err
		}
		return tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", orig.ID, models.TransactionStatusCompleted).
			Update("status", models.TransactionStatusReversed).Error
	})
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

// ListTransactions pages the ledger in seq order, suitable for audit replay.
func (s *WalletService) ListTransactions(ctx context.Context, accountID string, afterSeq int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txns []models.Transaction
	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND seq > ?", accountID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// ReconcileAccount compares the materialized balance against the ledger sum
// and returns the drift. Both sides come out of one statement, so a debit
// committing mid-reconcile cannot show up on only one of them. Reversed
// entries still count toward the sum: their effect is cancelled by the
// compensating adjustment. A non-zero drift is logged for manual
// reconciliation; the materialized balance is never silently overwritten.
func (s *WalletService) ReconcileAccount(ctx context.Context, accountID string) (int64, error) {
	var drift int64
	res := s.DB.WithContext(ctx).Raw(`
		SELECT a.balance - COALESCE(SUM(t.amount), 0)
		FROM accounts a
		LEFT JOIN transactions t
			ON t.account_id = a.id AND t.status IN ('completed', 'reversed')
		WHERE a.id = ?
		GROUP BY a.balance
	`, accountID).Scan(&drift)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrAccountNotFound
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("last_reconciled_at", &now).Error; err != nil {
		return drift, err
	}
	if drift != 0 {
		log.Printf("⚠️ [RECONCILE] account %s drift: %s off the ledger",
			accountID, utils.FormatAmount(drift))
	}
	return drift, nil
}

// --- Fiber handlers ---

// GetBalanceHandler returns the caller's balance.
func (s *WalletService) GetBalanceHandler(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	balance, err := s.GetBalance(c.Context(), accountID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"account_id": accountID, "balance": balance})
}

// ListTransactionsHandler pages the caller's ledger.
func (s *WalletService) ListTransactionsHandler(c *fiber.Ctx) error {
	accountID, _ := c.Locals("user_id").(string)
	afterSeq := int64(c.QueryInt("after_seq", 0))
	limit := c.QueryInt("limit", 50)
	txns, err := s.ListTransactions(c.Context(), accountID, afterSeq, limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txns, "count": len(txns)})
}

// DepositHandler records an externally confirmed deposit (admin/ops only;
// gateway integration itself lives outside this service).
func (s *WalletService) DepositHandler(c *fiber.Ctx) error {
	accountID := c.Params("id")
	type Req struct {
		Amount         int64  `json:"amount"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.IdempotencyKey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "idempotency_key is required"})
	}
	txn, err := s.ApplyTransaction(c.Context(), accountID, models.TransactionKindDeposit, req.Amount, req.IdempotencyKey)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(201).JSON(txn)
}

// ReconcileHandler triggers an on-demand balance reconciliation (admin only).
func (s *WalletService) ReconcileHandler(c *fiber.Ctx) error {
	accountID := c.Params("id")
	drift, err := s.ReconcileAccount(c.Context(), accountID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"account_id": accountID, "drift": drift, "consistent": drift == 0})
}
