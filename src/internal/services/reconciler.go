package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// ReconcileObserver is told how many transfers each run failed
type ReconcileObserver interface {
	RecordReconciled(n int)
}

// Reconciler settles transfers left in processing, e.g. by a crash between
// the ledger call and the status update
type Reconciler struct {
	transfers *TransferService
	timeout   time.Duration
	schedule  string
	observer  ReconcileObserver
	cron      *cron.Cron
	now       func() time.Time
}

// NewReconciler creates a reconciler from the transfers.* settings
func NewReconciler(transfers *TransferService, cfg *viper.Viper, observer ReconcileObserver) *Reconciler {
	return &Reconciler{
		transfers: transfers,
		timeout:   cfg.GetDuration("transfers.processing_timeout"),
		schedule:  cfg.GetString("transfers.reconcile_schedule"),
		observer:  observer,
		now:       time.Now,
	}
}

// Start schedules the reconciliation job
func (r *Reconciler) Start() error {
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			slog.Error("transfer reconciliation failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	slog.Info("transfer reconciler started", "schedule", r.schedule, "processing_timeout", r.timeout)
	return nil
}

// Stop stops the schedule and waits for a running job
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// RunOnce settles every transfer processing for longer than the timeout and
// returns how many it failed
func (r *Reconciler) RunOnce(ctx context.Context) (int64, error) {
	n, err := r.transfers.FailStale(ctx, r.now().Add(-r.timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("failed stale processing transfers", "count", n, "reason", reasonTimedOut)
	}
	if r.observer != nil {
		r.observer.RecordReconciled(int(n))
	}
	return n, nil
}
