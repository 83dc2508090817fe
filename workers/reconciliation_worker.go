package workers

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"tournament-wallet-system/models"
	"tournament-wallet-system/services"

	"gorm.io/gorm"
)

// ReconciliationWorker sweeps up two kinds of leftovers: reserved
// tournament slots whose entry-fee debit never settled, and accounts
// whose cached balance has drifted from the ledger sum.
type ReconciliationWorker struct {
	db            *gorm.DB
	wallet        *services.WalletService
	participation *services.ParticipationService
	interval      time.Duration
	grace         time.Duration
}

func NewReconciliationWorker(db *gorm.DB, wallet *services.WalletService, participation *services.ParticipationService) *ReconciliationWorker {
	grace := 2 * time.Minute
	if raw := os.Getenv("RESERVATION_GRACE_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			grace = time.Duration(secs) * time.Second
		}
	}

	return &ReconciliationWorker{
		db:            db,
		wallet:        wallet,
		participation: participation,
		interval:      1 * time.Minute,
		grace:         grace,
	}
}

func (w *ReconciliationWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Reconciliation Worker (orphaned reservations + balance drift)…")
	go w.run(ctx)
}

func (w *ReconciliationWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				log.Printf("❌ Reconciliation sweep failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Reconciliation Worker stopped")
			return
		}
	}
}

func (w *ReconciliationWorker) sweep(ctx context.Context) error {
	released, err := w.participation.ReleaseOrphanedReservations(ctx, w.grace)
	if err != nil {
		return err
	}
	if released > 0 {
		log.Printf("[RECONCILE] 🧹 Resolved %d orphaned reservation(s)", released)
	}

	// Oldest-first so every account gets revisited eventually.
	var accounts []models.Account
	if err := w.db.WithContext(ctx).
		Order("last_reconciled_at ASC").
		Limit(200).
		Find(&accounts).Error; err != nil {
		return err
	}

	var drifted int
	for _, account := range accounts {
		drift, err := w.wallet.ReconcileAccount(ctx, account.ID)
		if err != nil {
			log.Printf("[RECONCILE] ⚠️ Failed to reconcile account %s: %v", account.ID, err)
			continue
		}
		if drift != 0 {
			drifted++
		}
	}

	if drifted > 0 {
		log.Printf("[RECONCILE] ⚠️ %d account(s) reported balance drift this pass", drifted)
	}
	return nil
}
