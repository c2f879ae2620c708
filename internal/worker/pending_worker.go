// Package worker - Pending worker retries distribution for unassigned leads
// on a schedule, so leads held back by capacity limits or hour windows are
// assigned once conditions change.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vendalink/leadrouter/internal/service"
	"github.com/vendalink/leadrouter/internal/store"
)

// PendingWorkerConfig holds configuration for the pending worker.
type PendingWorkerConfig struct {
	// Schedule is a cron expression controlling when retry passes run.
	Schedule string

	// PassTimeout bounds one full retry pass across all workspaces.
	PassTimeout time.Duration
}

// DefaultPendingWorkerConfig returns sensible defaults.
func DefaultPendingWorkerConfig() PendingWorkerConfig {
	return PendingWorkerConfig{
		Schedule:    "*/10 * * * *",
		PassTimeout: 5 * time.Minute,
	}
}

// PendingWorker periodically re-runs distribution over every workspace with
// an unassigned backlog.
type PendingWorker struct {
	store  *store.Store
	svc    *service.Service
	config PendingWorkerConfig
	logger *slog.Logger
	cron   *cron.Cron
	stopCh chan struct{}
}

// NewPendingWorker creates a new pending worker.
func NewPendingWorker(store *store.Store, svc *service.Service, config PendingWorkerConfig, logger *slog.Logger) *PendingWorker {
	return &PendingWorker{
		store:  store,
		svc:    svc,
		config: config,
		logger: logger.With("component", "pending_worker"),
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

// Start schedules retry passes and begins the worker.
func (w *PendingWorker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		passCtx, cancel := context.WithTimeout(context.Background(), w.config.PassTimeout)
		defer cancel()
		w.RunOnce(passCtx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("pending worker started", "schedule", w.config.Schedule)

	go func() {
		select {
		case <-ctx.Done():
			w.logger.Info("pending worker stopping (context cancelled)")
		case <-w.stopCh:
			w.logger.Info("pending worker stopping (stop signal)")
		}
		<-w.cron.Stop().Done()
	}()
	return nil
}

// Stop signals the worker to stop and waits for a running pass to finish.
func (w *PendingWorker) Stop() {
	close(w.stopCh)
}

// RunOnce performs one retry pass over every workspace holding unassigned
// leads. Per-workspace failures are isolated; one broken workspace must not
// block the rest of the fleet.
func (w *PendingWorker) RunOnce(ctx context.Context) {
	workspaceIDs, err := w.store.ListWorkspaceIDsWithUnassignedLeads(ctx)
	if err != nil {
		w.logger.Error("listing workspaces with pending leads failed", "error", err)
		return
	}
	if len(workspaceIDs) == 0 {
		return
	}

	w.logger.Info("pending retry pass starting", "workspaces", len(workspaceIDs))

	for _, workspaceID := range workspaceIDs {
		report, err := w.svc.DistributeWorkspace(ctx, workspaceID)
		if err != nil {
			// Another trigger may hold the workspace lock; that is not
			// a failure, the backlog is being worked either way.
			if errors.Is(err, service.ErrConflict) {
				w.logger.Debug("workspace locked, skipping", "workspace_id", workspaceID)
				continue
			}
			w.logger.Error("pending distribution failed",
				"workspace_id", workspaceID,
				"error", err,
			)
			continue
		}
		if report.Processed > 0 {
			w.logger.Info("pending retry pass for workspace complete",
				"workspace_id", workspaceID,
				"processed", report.Processed,
				"assigned", report.Assigned,
			)
		}
	}
}
