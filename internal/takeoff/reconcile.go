package takeoff

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// reconcileWindow bounds how far back the reconciler looks. Automated runs
// older than this are assumed settled.
const reconcileWindow = 24 * time.Hour

const reconcileBatch = 50

// Reconciler periodically refreshes the stored summaries of automated runs.
// The backend keeps creating conditions and measurements after the start
// call returns, so counts captured at completion drift stale.
type Reconciler struct {
	orch     *Orchestrator
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewReconciler builds the reconciler around the orchestrator's poller and
// run store
func NewReconciler(orch *Orchestrator, schedule string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orch:     orch,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the reconcile job
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.reconcile); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("reconciler started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the schedule, waiting for a running job to finish
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Reconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	runs, err := r.orch.runs.ListAutomatedRuns(reconcileBatch)
	if err != nil {
		r.logger.Error("reconcile listing failed", zap.Error(err))
		return
	}

	cutoff := time.Now().Add(-reconcileWindow)
	refreshed := 0
	for _, rec := range runs {
		if rec.StartedAt.Before(cutoff) {
			continue
		}

		p, err := r.orch.poller.Progress(ctx, rec.BackendRunID)
		if err != nil {
			r.logger.Warn("reconcile poll failed",
				zap.String("run_id", rec.ID),
				zap.String("backend_run_id", rec.BackendRunID),
				zap.Error(err))
			continue
		}

		if p.TotalPages == rec.TotalPages &&
			p.ConditionsCreated == rec.ConditionsCreated &&
			p.MeasurementsPlaced == rec.MeasurementsMade {
			continue
		}

		rec.TotalPages = p.TotalPages
		rec.ProcessedPages = p.ProcessedPages
		rec.ConditionsCreated = p.ConditionsCreated
		rec.MeasurementsMade = p.MeasurementsPlaced
		if len(p.Errors) > 0 {
			if raw, err := json.Marshal(p.Errors); err == nil {
				rec.Errors = raw
			}
		}
		if err := r.orch.runs.UpdateRun(&rec); err != nil {
			r.logger.Error("reconcile update failed",
				zap.String("run_id", rec.ID),
				zap.Error(err))
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		r.logger.Info("reconciled automated run summaries", zap.Int("refreshed", refreshed))
	}
}
