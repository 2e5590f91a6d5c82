package detect

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/identify"
)

// Trades whose takeoffs benefit from merging same-type findings across pages
// into consolidated conditions.
var aggregationKeywords = []string{
	"flooring", "floor", "lvt", "carpet", "tile",
	"paint", "drywall", "ceiling", "insulation",
}

// ShouldAggregate reports whether the scope matches a trade whose batch
// results should be merged across pages by the backend
func ShouldAggregate(scope string) bool {
	lower := strings.ToLower(scope)
	for _, kw := range aggregationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BatchProcessor submits every selected page in one request and flattens the
// response into a single reviewable result with one accept action. It is a
// deliberate alternative to the interactive loop, not a degraded fallback.
type BatchProcessor struct {
	backend   Backend
	persister Persister
	logger    *zap.Logger

	projectID string
	scope     string
	pages     []identify.IdentifiedPage
}

// NewBatchProcessor creates a batch processor over the selected pages
func NewBatchProcessor(backend Backend, persister Persister, logger *zap.Logger, projectID, scope string, pages []identify.IdentifiedPage) *BatchProcessor {
	selected := make([]identify.IdentifiedPage, 0, len(pages))
	for _, p := range pages {
		if p.Selected {
			selected = append(selected, p)
		}
	}
	return &BatchProcessor{
		backend:   backend,
		persister: persister,
		logger:    logger,
		projectID: projectID,
		scope:     scope,
		pages:     selected,
	}
}

// Process submits all pages and consolidates the per-page results. Whether
// the backend actually merged same-type conditions is opaque here; the
// processor only flattens what came back.
func (b *BatchProcessor) Process(ctx context.Context) (*TakeoffResult, bool, error) {
	if len(b.pages) == 0 {
		return nil, false, errors.ErrNoPagesSelected
	}

	refs := make([]PageRef, len(b.pages))
	for i, p := range b.pages {
		refs[i] = PageRef{
			DocumentID: p.DocumentID,
			PageNumber: p.PageNumber,
			PageType:   p.PageType,
		}
	}

	resp, err := b.backend.DetectBatch(ctx, refs, b.scope, ShouldAggregate(b.scope))
	if err != nil {
		return nil, false, err
	}

	consolidated := Flatten(resp.Results)
	consolidated.Message = resp.Message

	b.logger.Info("batch detection complete",
		zap.Int("pages", len(b.pages)),
		zap.Bool("aggregated", resp.Aggregated),
		zap.Int("conditions", len(consolidated.Conditions)),
		zap.Int("measurements", len(consolidated.Measurements)))

	return consolidated, resp.Aggregated, nil
}

// Accept persists the consolidated result in a single action
func (b *BatchProcessor) Accept(ctx context.Context, consolidated *TakeoffResult) (int, int, error) {
	conditions, measurements, err := b.persister.PersistResult(ctx, b.projectID, consolidated)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrPersistFailed.Code, errors.ErrPersistFailed.Message)
	}
	return conditions, measurements, nil
}

// Flatten merges per-page results into one, re-keying each measurement's
// condition index against the combined condition list.
func Flatten(results []TakeoffResult) *TakeoffResult {
	out := &TakeoffResult{}
	for _, r := range results {
		if out.DocumentID == "" {
			out.DocumentID = r.DocumentID
		}
		offset := len(out.Conditions)
		out.Conditions = append(out.Conditions, r.Conditions...)
		for _, m := range r.Measurements {
			m.ConditionIndex += offset
			if m.PageNumber == 0 {
				m.PageNumber = r.PageNumber
			}
			out.Measurements = append(out.Measurements, m)
		}
	}
	return out
}
