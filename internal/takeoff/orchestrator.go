package takeoff

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/config"
	"github.com/planlift/takeoff/internal/detect"
	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/identify"
	"github.com/planlift/takeoff/internal/progress"
	"github.com/planlift/takeoff/internal/store"
)

// PageIdentifier ranks document pages against a scope
type PageIdentifier interface {
	IdentifyPages(ctx context.Context, scope string, documentIDs []string) ([]identify.IdentifiedPage, error)
}

// RunStore persists run records across restarts
type RunStore interface {
	CreateRun(run *store.TakeoffRun) error
	UpdateRun(run *store.TakeoffRun) error
	GetRun(id string) (*store.TakeoffRun, error)
	ListAutomatedRuns(limit int) ([]store.TakeoffRun, error)
}

// Orchestrator drives the takeoff workflow. Every event is applied under one
// lock, so no two transitions ever interleave on the same run.
type Orchestrator struct {
	identifier PageIdentifier
	backend    detect.Backend
	persister  detect.Persister
	poller     progress.Poller
	runs       RunStore
	cfg        config.TakeoffConfig
	logger     *zap.Logger

	mu     sync.Mutex
	active map[string]*Run
}

// New creates an orchestrator
func New(identifier PageIdentifier, backend detect.Backend, persister detect.Persister, poller progress.Poller, runs RunStore, cfg config.TakeoffConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		identifier: identifier,
		backend:    backend,
		persister:  persister,
		poller:     poller,
		runs:       runs,
		cfg:        cfg,
		logger:     logger,
		active:     make(map[string]*Run),
	}
}

// StartRun opens a new run at the scope stage
func (o *Orchestrator) StartRun(projectID string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run := &Run{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		State:     StateScope,
		StartedAt: time.Now(),
	}
	o.active[run.ID] = run

	if err := o.runs.CreateRun(o.record(run)); err != nil {
		delete(o.active, run.ID)
		return nil, errors.Wrap(err, errors.ErrPersistFailed.Code, "failed to record run")
	}

	o.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("project_id", projectID))
	return run, nil
}

// GetRun returns an active run
func (o *Orchestrator) GetRun(runID string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run(runID)
}

func (o *Orchestrator) run(runID string) (*Run, error) {
	run, ok := o.active[runID]
	if !ok {
		return nil, errors.ErrRunNotFound
	}
	return run, nil
}

// SubmitScope validates the scope, identifies relevant pages and moves the
// run to page selection. Validation failures leave the run at scope;
// identification transport failures revert it there with the error surfaced.
// Zero identified pages still reaches page selection — an empty result is a
// finding, not a failure.
func (o *Orchestrator) SubmitScope(ctx context.Context, runID, scope string, documentIDs []string) ([]identify.IdentifiedPage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return nil, err
	}
	if err := identify.ValidateScope(scope); err != nil {
		return nil, err
	}
	if err := run.transition(StateIdentifying); err != nil {
		return nil, err
	}
	run.Scope = scope

	pages, err := o.identifier.IdentifyPages(ctx, scope, documentIDs)
	if err != nil {
		run.State = StateScope
		o.persistRun(run)
		return nil, err
	}

	run.Pages = pages
	if err := run.transition(StatePageSelection); err != nil {
		return nil, err
	}
	o.persistRun(run)

	o.logger.Info("pages identified",
		zap.String("run_id", runID),
		zap.Int("pages", len(pages)))
	return pages, nil
}

// BackToScope returns a run from page selection to scope entry
func (o *Orchestrator) BackToScope(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return err
	}
	if run.State != StatePageSelection {
		return errors.New(errors.ErrInvalidTransition.Code,
			"can only return to scope from page selection")
	}
	run.State = StateScope
	run.Pages = nil
	o.persistRun(run)
	return nil
}

// SetPageSelection toggles one identified page in or out of the run
func (o *Orchestrator) SetPageSelection(runID, documentID string, pageNumber int, selected bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return err
	}
	if run.State != StatePageSelection {
		return errors.New(errors.ErrInvalidTransition.Code,
			"page selection is closed for this run")
	}
	if !run.SetPageSelection(documentID, pageNumber, selected) {
		return errors.New("IDENT_002", "page was not identified for this run")
	}
	return nil
}

// beginProcessing moves a run into the processing stage, enforcing that at
// least one page is still selected.
func (o *Orchestrator) beginProcessing(run *Run, mode Mode) ([]identify.IdentifiedPage, error) {
	selected := run.SelectedPages()
	if len(selected) == 0 {
		return nil, errors.ErrNoPagesSelected
	}
	if err := run.transition(StateProcessing); err != nil {
		return nil, err
	}
	run.Mode = mode
	return selected, nil
}

// BeginInteractive starts the per-page review loop over the selected pages
func (o *Orchestrator) BeginInteractive(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return err
	}
	selected, err := o.beginProcessing(run, ModeInteractive)
	if err != nil {
		return err
	}
	run.processor = detect.NewProcessor(o.backend, o.persister, o.logger, run.ProjectID, run.Scope, selected)
	o.persistRun(run)
	return nil
}

// ProcessNextPage detects the next selected page and surfaces the proposal
// for review. A page whose detection fails is recorded as rejected and the
// loop stays open; the error is returned for display only.
func (o *Orchestrator) ProcessNextPage(ctx context.Context, runID string) (*detect.TakeoffResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return nil, err
	}
	if run.State != StateProcessing || run.processor == nil {
		return nil, errors.New(errors.ErrInvalidTransition.Code, "run is not processing interactively")
	}

	result, procErr := run.processor.ProcessNext(ctx)
	if run.processor.Done() && run.processor.Pending() == nil {
		o.finishInteractive(run)
	}
	return result, procErr
}

// Decide applies the reviewer's verdict on the pending page result and
// advances the loop, completing the run when the last page is decided.
func (o *Orchestrator) Decide(ctx context.Context, runID string, d detect.Decision) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return err
	}
	if run.State != StateProcessing || run.processor == nil {
		return errors.New(errors.ErrInvalidTransition.Code, "run is not processing interactively")
	}

	if err := run.processor.Decide(ctx, d); err != nil {
		// Persist failures keep the pending result so the reviewer can retry
		return err
	}
	if run.processor.Done() {
		o.finishInteractive(run)
	}
	return nil
}

// CloseRun abandons an interactive run mid-loop. Accepted results stay
// persisted; only the in-flight page is discarded.
func (o *Orchestrator) CloseRun(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return err
	}
	if run.State != StateProcessing || run.processor == nil {
		return errors.New(errors.ErrInvalidTransition.Code, "run is not processing interactively")
	}
	o.finishInteractive(run)
	o.logger.Info("run closed mid-loop", zap.String("run_id", runID))
	return nil
}

func (o *Orchestrator) finishInteractive(run *Run) {
	run.Summary = run.processor.Summary()
	run.Errors = run.processor.Errors()
	run.State = StateComplete
	now := time.Now()
	run.EndedAt = &now
	o.persistRun(run)

	o.logger.Info("run complete",
		zap.String("run_id", run.ID),
		zap.Int("pages", run.Summary.TotalPages),
		zap.Int("conditions", run.Summary.TotalConditionsCreated),
		zap.Int("measurements", run.Summary.TotalMeasurementsMade),
		zap.Int("errors", run.Summary.TotalErrors))
}

// RunBatch submits all selected pages in one request and holds the
// consolidated proposal for a single accept or discard.
func (o *Orchestrator) RunBatch(ctx context.Context, runID string) (*detect.TakeoffResult, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return nil, false, err
	}
	selected, err := o.beginProcessing(run, ModeBatch)
	if err != nil {
		return nil, false, err
	}

	run.batch = detect.NewBatchProcessor(o.backend, o.persister, o.logger, run.ProjectID, run.Scope, selected)
	consolidated, aggregated, err := run.batch.Process(ctx)
	if err != nil {
		// The run still completes with a summary; the failure is the summary
		run.Summary = detect.RunSummary{TotalPages: len(selected), TotalErrors: 1}
		run.Errors = append(run.Errors, err.Error())
		o.completeRun(run)
		return nil, false, err
	}

	run.consolidated = consolidated
	run.aggregated = aggregated
	o.persistRun(run)
	return consolidated, aggregated, nil
}

// AcceptBatch persists the consolidated batch proposal and completes the run
func (o *Orchestrator) AcceptBatch(ctx context.Context, runID string) (detect.RunSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return detect.RunSummary{}, err
	}
	if run.State != StateProcessing || run.consolidated == nil {
		return detect.RunSummary{}, errors.New(errors.ErrInvalidTransition.Code, "no batch proposal to accept")
	}

	conditions, measurements, err := run.batch.Accept(ctx, run.consolidated)
	if err != nil {
		// Proposal retained for retry
		return detect.RunSummary{}, err
	}

	run.Summary = detect.RunSummary{
		TotalPages:             len(run.SelectedPages()),
		TotalConditionsCreated: conditions,
		TotalMeasurementsMade:  measurements,
	}
	run.consolidated = nil
	o.completeRun(run)
	return run.Summary, nil
}

// DiscardBatch completes the run without persisting the batch proposal
func (o *Orchestrator) DiscardBatch(runID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return err
	}
	if run.State != StateProcessing || run.consolidated == nil {
		return errors.New(errors.ErrInvalidTransition.Code, "no batch proposal to discard")
	}
	run.Summary = detect.RunSummary{TotalPages: len(run.SelectedPages())}
	run.consolidated = nil
	o.completeRun(run)
	return nil
}

// RunAutomated hands the selected pages to the backend's server-driven
// pipeline. The run completes as soon as the start call returns, summarized
// from its immediate result; a background watcher keeps refreshing the
// stored counts while the backend finishes asynchronously.
func (o *Orchestrator) RunAutomated(ctx context.Context, runID string) (detect.RunSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.run(runID)
	if err != nil {
		return detect.RunSummary{}, err
	}
	selected, err := o.beginProcessing(run, ModeAutomated)
	if err != nil {
		return detect.RunSummary{}, err
	}

	documentIDs, pageNumbers := splitPages(selected)
	resp, err := o.backend.StartAutomatedRun(ctx, run.Scope, documentIDs, pageNumbers)
	if err != nil {
		// Start never happened; give the user back the selection to retry
		run.State = StatePageSelection
		run.Mode = ""
		o.persistRun(run)
		return detect.RunSummary{}, err
	}

	run.BackendRunID = resp.RunID
	run.Summary = resp.Summary
	o.completeRun(run)

	go o.watchAutomated(run.ID, resp.RunID)
	return resp.Summary, nil
}

// CancelAutomated signals the backend to stop an automated run, best-effort
func (o *Orchestrator) CancelAutomated(ctx context.Context, runID string) (*progress.Progress, error) {
	o.mu.Lock()
	run, err := o.run(runID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	backendRunID := run.BackendRunID
	o.mu.Unlock()

	if backendRunID == "" {
		return nil, errors.New(errors.ErrRunNotFound.Code, "run has no automated backend job")
	}

	tracker := o.newTracker()
	return tracker.CancelAndDrain(ctx, backendRunID, 5)
}

// watchAutomated follows the backend job until it terminates, folding each
// observation into the stored run record. Read-only telemetry; it never
// touches the in-memory run's accumulators.
func (o *Orchestrator) watchAutomated(runID, backendRunID string) {
	interval := time.Duration(o.cfg.PollIntervalMillis) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(o.cfg.MaxPollAttempts+5)*interval)
	defer cancel()

	tracker := o.newTracker()
	final, err := tracker.Watch(ctx, backendRunID, func(p progress.Progress) {
		o.applyProgress(runID, &p, nil)
	})
	if err != nil {
		o.logger.Warn("automated run watch ended abnormally",
			zap.String("run_id", runID),
			zap.String("backend_run_id", backendRunID),
			zap.Error(err))
	}
	// Counts observed before a timeout are preserved
	o.applyProgress(runID, final, err)
}

func (o *Orchestrator) newTracker() *progress.Tracker {
	return progress.NewTracker(o.poller,
		time.Duration(o.cfg.PollIntervalMillis)*time.Millisecond,
		o.cfg.MaxPollAttempts, o.logger)
}

// applyProgress folds one progress observation into the stored run
func (o *Orchestrator) applyProgress(runID string, p *progress.Progress, watchErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.active[runID]
	if !ok {
		return
	}
	if p != nil {
		run.Summary.TotalPages = p.TotalPages
		run.Summary.TotalConditionsCreated = p.ConditionsCreated
		run.Summary.TotalMeasurementsMade = p.MeasurementsPlaced
		run.Summary.TotalErrors = len(p.Errors)
		run.Errors = p.Errors
	}
	if watchErr != nil {
		run.Errors = append(run.Errors, errors.GetCode(watchErr)+": "+watchErr.Error())
	}
	o.persistRun(run)
}

func (o *Orchestrator) completeRun(run *Run) {
	run.State = StateComplete
	now := time.Now()
	run.EndedAt = &now
	run.processor = nil
	run.batch = nil
	o.persistRun(run)
}

// record maps a run onto its stored form
func (o *Orchestrator) record(run *Run) *store.TakeoffRun {
	rec := &store.TakeoffRun{
		ID:                run.ID,
		ProjectID:         run.ProjectID,
		Scope:             run.Scope,
		State:             string(run.State),
		Mode:              string(run.Mode),
		BackendRunID:      run.BackendRunID,
		TotalPages:        run.Summary.TotalPages,
		ProcessedPages:    run.Summary.TotalPages - len(run.Errors),
		ConditionsCreated: run.Summary.TotalConditionsCreated,
		MeasurementsMade:  run.Summary.TotalMeasurementsMade,
		StartedAt:         run.StartedAt,
		CompletedAt:       run.EndedAt,
	}
	if len(run.Errors) > 0 {
		if raw, err := json.Marshal(run.Errors); err == nil {
			rec.Errors = raw
		}
	}
	return rec
}

func (o *Orchestrator) persistRun(run *Run) {
	if err := o.runs.UpdateRun(o.record(run)); err != nil {
		o.logger.Error("failed to persist run record",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

func splitPages(pages []identify.IdentifiedPage) ([]string, []int) {
	seen := make(map[string]bool)
	var documentIDs []string
	pageNumbers := make([]int, len(pages))
	for i, p := range pages {
		if !seen[p.DocumentID] {
			seen[p.DocumentID] = true
			documentIDs = append(documentIDs, p.DocumentID)
		}
		pageNumbers[i] = p.PageNumber
	}
	return documentIDs, pageNumbers
}
