package workers

import (
	"context"
	"log"
	"time"

	"tournament-wallet-system/services"
)

// WithdrawalProcessorWorker drives the automatic withdrawal queue:
// requests routed to auto_processing wait here for payout confirmation
// and settlement, no admin involved.
type WithdrawalProcessorWorker struct {
	withdrawals *services.WithdrawalService
	interval    time.Duration
}

func NewWithdrawalProcessorWorker(withdrawals *services.WithdrawalService) *WithdrawalProcessorWorker {
	return &WithdrawalProcessorWorker{
		withdrawals: withdrawals,
		interval:    30 * time.Second,
	}
}

func (w *WithdrawalProcessorWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Withdrawal Processor Worker (auto_processing queue)…")
	go w.run(ctx)
}

func (w *WithdrawalProcessorWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := w.withdrawals.ProcessAutoQueue(ctx)
			if err != nil {
				log.Printf("❌ Auto-withdrawal pass failed: %v", err)
				continue
			}
			if processed > 0 {
				log.Printf("[AUTO-WITHDRAW] ✅ Settled %d request(s)", processed)
			}
		case <-ctx.Done():
			log.Println("⏹️ Withdrawal Processor Worker stopped")
			return
		}
	}
}
