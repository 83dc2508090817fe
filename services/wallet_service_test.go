package services

import (
	"context"
	"sync"
	"testing"

	"tournament-wallet-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTransactionCreditAndDebit(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)

	deposit, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, deposit.Status)

	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	fee, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -400, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, fee.Status)

	balance, err = wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)

	txns, err := wallet.ListTransactions(ctx, accountID, 0, 50)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, deposit.ID, txns[0].ID)
	assert.Equal(t, fee.ID, txns[1].ID)
	assert.Less(t, txns[0].Seq, txns[1].Seq)
}

func TestApplyTransactionInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 100)
	key := uuid.NewString()

	txn, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -500, key)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.NotNil(t, txn)
	assert.Equal(t, models.TransactionStatusFailed, txn.Status)

	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// The failed attempt stays on record and a replay returns the same outcome.
	replay, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -500, key)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, txn.ID, replay.ID)

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Where("account_id = ?", accountID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyTransactionIdempotentReplay(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)
	key := uuid.NewString()

	first, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, key)
	require.NoError(t, err)

	second, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance, "replay must credit at most once")
}

func TestApplyTransactionCorrelationConflict(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)
	key := uuid.NewString()

	_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, key)
	require.NoError(t, err)

	_, err = wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 500, key)
	require.ErrorIs(t, err, ErrCorrelationConflict)

	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestApplyTransactionValidation(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 1000)

	_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 0, uuid.NewString())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, -100, uuid.NewString())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, 100, uuid.NewString())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApplyTransactionUnknownAccount(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)

	_, err := wallet.ApplyTransaction(context.Background(), uuid.NewString(), models.TransactionKindDeposit, 100, uuid.NewString())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestReverseTransaction(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)

	_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, uuid.NewString())
	require.NoError(t, err)
	fee, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -400, uuid.NewString())
	require.NoError(t, err)

	comp, err := wallet.ReverseTransaction(ctx, fee.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionKindAdjustment, comp.Kind)
	assert.Equal(t, int64(400), comp.Amount)
	assert.Equal(t, fee.CorrelationID, comp.CorrelationID)

	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	var orig models.Transaction
	require.NoError(t, db.First(&orig, "id = ?", fee.ID).Error)
	assert.Equal(t, models.TransactionStatusReversed, orig.Status)

	// Replaying the reversal returns the same adjustment without a second credit.
	again, err := wallet.ReverseTransaction(ctx, fee.ID)
	require.NoError(t, err)
	assert.Equal(t, comp.ID, again.ID)

	balance, err = wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestReverseTransactionNotReversible(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 100)

	failed, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -500, uuid.NewString())
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = wallet.ReverseTransaction(ctx, failed.ID)
	assert.ErrorIs(t, err, ErrNotReversible)

	_, err = wallet.ReverseTransaction(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestReconcileAccountMatchesLedger(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)

	_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, uuid.NewString())
	require.NoError(t, err)
	fee, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -400, uuid.NewString())
	require.NoError(t, err)
	_, err = wallet.ReverseTransaction(ctx, fee.ID)
	require.NoError(t, err)
	// Failed attempts never count toward the ledger sum.
	_, err = wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -5000, uuid.NewString())
	require.ErrorIs(t, err, ErrInsufficientFunds)

	drift, err := wallet.ReconcileAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Zero(t, drift)

	var account models.Account
	require.NoError(t, db.First(&account, "id = ?", accountID).Error)
	assert.NotNil(t, account.LastReconciledAt)
}

func TestReconcileAccountReportsDrift(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)

	_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 1000, uuid.NewString())
	require.NoError(t, err)

	// A balance write that bypassed the ledger shows up as drift.
	require.NoError(t, db.Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("balance", 1300).Error)

	drift, err := wallet.ReconcileAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), drift)

	// Reconciling reports, it does not repair.
	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), balance)

	_, err = wallet.ReconcileAccount(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := newTestDB(t)
	wallet := NewWalletService(db)
	ctx := context.Background()
	accountID := seedAccount(t, db, 0)
	_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindDeposit, 100, uuid.NewString())
	require.NoError(t, err)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wallet.ApplyTransaction(ctx, accountID, models.TransactionKindEntryFee, -30, uuid.NewString())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 3, succeeded)

	balance, err := wallet.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	drift, err := wallet.ReconcileAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Zero(t, drift)
}
