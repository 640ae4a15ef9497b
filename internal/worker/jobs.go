// Package worker holds the periodic maintenance jobs run by cmd/worker.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// every runs fn on each tick until ctx is cancelled. Errors are logged
// and the loop continues.
func every(ctx context.Context, interval time.Duration, log *logger.Logger, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Error(err, "Worker run failed", "worker", name)
			}
		}
	}
}

type DashboardRefresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

type DashboardRefreshWorker struct {
	dashboards DashboardRefresher
	interval   time.Duration
	logger     *logger.Logger
}

func NewDashboardRefreshWorker(dashboards DashboardRefresher, interval time.Duration, logger *logger.Logger) *DashboardRefreshWorker {
	return &DashboardRefreshWorker{dashboards: dashboards, interval: interval, logger: logger}
}

func (w *DashboardRefreshWorker) Start(ctx context.Context) {
	every(ctx, w.interval, w.logger, "dashboard_refresh", w.Run)
}

// Run recomputes the dashboard of every active technician once.
func (w *DashboardRefreshWorker) Run(ctx context.Context) error {
	n, err := w.dashboards.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh dashboards: %w", err)
	}
	w.logger.Info("Refreshed lab dashboards", "count", n)
	return nil
}

type WorkloadReconciler interface {
	Reconcile(ctx context.Context) ([]*model.WorkloadCorrection, error)
}

type WorkloadReconcileWorker struct {
	technicians WorkloadReconciler
	interval    time.Duration
	logger      *logger.Logger
}

func NewWorkloadReconcileWorker(technicians WorkloadReconciler, interval time.Duration, logger *logger.Logger) *WorkloadReconcileWorker {
	return &WorkloadReconcileWorker{technicians: technicians, interval: interval, logger: logger}
}

func (w *WorkloadReconcileWorker) Start(ctx context.Context) {
	every(ctx, w.interval, w.logger, "workload_reconcile", w.Run)
}

// Run recounts every active technician's workload from the request table.
func (w *WorkloadReconcileWorker) Run(ctx context.Context) error {
	corrections, err := w.technicians.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile workloads: %w", err)
	}
	if len(corrections) > 0 {
		w.logger.Info("Reconciled lab technician workloads", "corrected", len(corrections))
	}
	return nil
}

type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, logger *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	every(ctx, w.interval, w.logger, "outbox_cleanup", w.Run)
}

// Run deletes processed events older than the retention window.
func (w *OutboxCleanupWorker) Run(ctx context.Context) error {
	cutoff := w.now().Add(-w.retention)

	rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up outbox events: %w", err)
	}

	if rows > 0 {
		w.logger.Info("Cleaned up processed outbox events", "count", rows, "before", cutoff)
	}
	return nil
}
