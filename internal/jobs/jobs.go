// Package jobs runs the background sweepers: expiring stale pending
// charges and abandoned replace sessions.
package jobs

import (
	"context"
	"time"

	"bandpay/internal/logger"
	"bandpay/internal/metrics"
	"bandpay/internal/transaction"
	"bandpay/internal/wristband"

	"github.com/robfig/cron/v3"
)

type Runner struct {
	cron       *cron.Cron
	txs        transaction.Repository
	wristbands wristband.Repository
}

func NewRunner(txs transaction.Repository, wristbands wristband.Repository) *Runner {
	return &Runner{
		cron:       cron.New(),
		txs:        txs,
		wristbands: wristbands,
	}
}

// Start schedules the sweepers and launches the cron loop.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc("@every 15s", r.sweepExpiredCharges); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@every 5m", r.sweepStaleReplaceSessions); err != nil {
		return err
	}

	r.cron.Start()
	logger.Info("Background sweepers started")
	return nil
}

// Stop waits for a running sweep to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// expiredResultJSON is the terminal payload written onto every pending
// charge whose prepare window lapsed without a commit. The wristband
// counter was never advanced for these, so no state is lost.
var expiredResultJSON = transaction.MustEncode(transaction.DeclinedResult{
	Status: transaction.StatusDeclined,
	Code:   "TX_CONFLICT",
	Reason: "prepare expired",
})

func (r *Runner) sweepExpiredCharges() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := r.txs.ExpirePending(ctx, time.Now().UTC(), expiredResultJSON)
	if err != nil {
		logger.Errorf("Failed to expire pending charges: %v", err)
		return
	}
	if n > 0 {
		for i := int64(0); i < n; i++ {
			metrics.RecordCharge(transaction.StatusDeclined)
		}
		logger.Info("Expired pending charges", "count", n)
	}
}

func (r *Runner) sweepStaleReplaceSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := r.wristbands.ExpireStaleReplaceSessions(ctx, time.Now().UTC())
	if err != nil {
		logger.Errorf("Failed to expire replace sessions: %v", err)
		return
	}
	if n > 0 {
		logger.Info("Expired replace sessions", "count", n)
	}
}
