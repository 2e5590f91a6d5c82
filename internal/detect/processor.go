// Package detect drives per-page AI detection: the interactive processor
// surfaces one page's proposals at a time for human review, the batch
// processor trades that granularity for a single consolidated request.
package detect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/identify"
)

// Persister writes accepted proposals to storage. It is the narrow contract
// to the external persistence collaborator.
type Persister interface {
	PersistResult(ctx context.Context, projectID string, result *TakeoffResult) (conditions int, measurements int, err error)
}

// Processor walks a user-approved page sequence one page at a time. Pages are
// visited strictly in the order presented; the processor never re-sorts them.
// It is single-owner state driven by discrete events, not safe for concurrent
// use.
type Processor struct {
	backend   Backend
	persister Persister
	logger    *zap.Logger

	projectID string
	scope     string
	pages     []identify.IdentifiedPage

	index   int
	pending *TakeoffResult

	accepted           []*TakeoffResult
	rejectedPages      []int
	errs               []string
	conditionsCreated  int
	measurementsPlaced int
}

// NewProcessor creates an interactive per-page processor over the selected
// pages
func NewProcessor(backend Backend, persister Persister, logger *zap.Logger, projectID, scope string, pages []identify.IdentifiedPage) *Processor {
	selected := make([]identify.IdentifiedPage, 0, len(pages))
	for _, p := range pages {
		if p.Selected {
			selected = append(selected, p)
		}
	}
	return &Processor{
		backend:   backend,
		persister: persister,
		logger:    logger,
		projectID: projectID,
		scope:     scope,
		pages:     selected,
	}
}

// Done reports whether every selected page has an outcome
func (p *Processor) Done() bool {
	return p.index >= len(p.pages) && p.pending == nil
}

// Pending returns the surfaced result awaiting a human decision
func (p *Processor) Pending() *TakeoffResult {
	return p.pending
}

// ProcessNext runs detection on the next page and surfaces the result for
// review. An unavailable backend yields an empty result with an explanatory
// message instead of blocking the workflow. Any other processing failure
// marks the page rejected and returns the error; the caller's loop continues
// with the following page.
func (p *Processor) ProcessNext(ctx context.Context) (*TakeoffResult, error) {
	if p.pending != nil {
		return p.pending, nil
	}
	if p.index >= len(p.pages) {
		return nil, nil
	}

	page := p.pages[p.index]
	result, err := p.backend.DetectPage(ctx, page.DocumentID, page.PageNumber, p.scope, string(page.PageType))
	if err != nil {
		if errors.GetCode(err) == errors.ErrDetectionUnavailable.Code {
			p.logger.Warn("detection backend unavailable, surfacing empty result",
				zap.String("document_id", page.DocumentID),
				zap.Int("page", page.PageNumber))
			p.pending = &TakeoffResult{
				DocumentID: page.DocumentID,
				PageNumber: page.PageNumber,
				Message:    "Detection backend is unavailable; no elements were identified on this page.",
			}
			return p.pending, nil
		}

		// One page's failure never aborts the run.
		p.rejectedPages = append(p.rejectedPages, page.PageNumber)
		p.errs = append(p.errs, fmt.Sprintf("page %d: %v", page.PageNumber, err))
		p.index++
		p.logger.Error("page processing failed, continuing",
			zap.Int("page", page.PageNumber),
			zap.Error(err))
		return nil, err
	}

	result.DocumentID = page.DocumentID
	result.PageNumber = page.PageNumber
	p.pending = result
	return result, nil
}

// Accept persists the pending result and advances. On a persistence failure
// the pending result is retained so the proposed data is not lost and the
// caller can retry.
func (p *Processor) Accept(ctx context.Context) error {
	if p.pending == nil {
		return errors.New("DETECT_002", "no result pending acceptance")
	}

	conditions, measurements, err := p.persister.PersistResult(ctx, p.projectID, p.pending)
	if err != nil {
		return errors.Wrap(err, errors.ErrPersistFailed.Code, errors.ErrPersistFailed.Message)
	}

	p.accepted = append(p.accepted, p.pending)
	p.conditionsCreated += conditions
	p.measurementsPlaced += measurements
	p.pending = nil
	p.index++
	return nil
}

// Reject discards the pending result and advances
func (p *Processor) Reject() {
	p.discard()
}

// Skip behaves like Reject: the page is recorded as not taken
func (p *Processor) Skip() {
	p.discard()
}

// Decide applies a human verdict to the pending result
func (p *Processor) Decide(ctx context.Context, d Decision) error {
	switch d {
	case DecisionAccept:
		return p.Accept(ctx)
	case DecisionReject:
		p.Reject()
	case DecisionSkip:
		p.Skip()
	default:
		return errors.New("DETECT_002", fmt.Sprintf("unknown decision %q", d))
	}
	return nil
}

func (p *Processor) discard() {
	if p.pending == nil {
		return
	}
	p.rejectedPages = append(p.rejectedPages, p.pending.PageNumber)
	p.pending = nil
	p.index++
}

// AcceptedResults returns the append-only log of accepted page results
func (p *Processor) AcceptedResults() []*TakeoffResult {
	return p.accepted
}

// RejectedPages returns the pages rejected, skipped, or failed
func (p *Processor) RejectedPages() []int {
	return p.rejectedPages
}

// Errors returns per-page failure messages recorded during the run
func (p *Processor) Errors() []string {
	return p.errs
}

// Summary totals the run's outcomes
func (p *Processor) Summary() RunSummary {
	return RunSummary{
		TotalPages:             len(p.pages),
		TotalConditionsCreated: p.conditionsCreated,
		TotalMeasurementsMade:  p.measurementsPlaced,
		TotalErrors:            len(p.errs),
	}
}
