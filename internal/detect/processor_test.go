package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/identify"
)

// stubBackend scripts per-page outcomes by page number
type stubBackend struct {
	results map[int]*TakeoffResult
	errs    map[int]error
	batch   *BatchResponse
	batchErr error
	calls   []int
	batchCalls []batchCall
}

type batchCall struct {
	pages     []PageRef
	aggregate bool
}

func (s *stubBackend) DetectPage(_ context.Context, _ string, pageNumber int, _ string, _ string) (*TakeoffResult, error) {
	s.calls = append(s.calls, pageNumber)
	if err, ok := s.errs[pageNumber]; ok {
		return nil, err
	}
	if r, ok := s.results[pageNumber]; ok {
		copied := *r
		return &copied, nil
	}
	return &TakeoffResult{PageNumber: pageNumber}, nil
}

func (s *stubBackend) DetectBatch(_ context.Context, pages []PageRef, _ string, aggregate bool) (*BatchResponse, error) {
	s.batchCalls = append(s.batchCalls, batchCall{pages: pages, aggregate: aggregate})
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	return s.batch, nil
}

func (s *stubBackend) StartAutomatedRun(_ context.Context, _ string, _ []string, _ []int) (*AutomatedRunResponse, error) {
	return &AutomatedRunResponse{RunID: "run1"}, nil
}

// stubPersister counts persisted proposals and can fail on demand
type stubPersister struct {
	failures int
	persists int
}

func (s *stubPersister) PersistResult(_ context.Context, _ string, r *TakeoffResult) (int, int, error) {
	if s.failures > 0 {
		s.failures--
		return 0, 0, fmt.Errorf("storage write failed")
	}
	s.persists++
	return len(r.Conditions), len(r.Measurements), nil
}

func selectedPages(numbers ...int) []identify.IdentifiedPage {
	pages := make([]identify.IdentifiedPage, len(numbers))
	for i, n := range numbers {
		pages[i] = identify.IdentifiedPage{
			DocumentID: "d1",
			PageNumber: n,
			PageType:   identify.PageTypeFloorPlan,
			Selected:   true,
		}
	}
	return pages
}

func proposal(conditions, measurements int) *TakeoffResult {
	r := &TakeoffResult{}
	for i := 0; i < conditions; i++ {
		r.Conditions = append(r.Conditions, ProposedCondition{Name: fmt.Sprintf("cond %d", i), Type: "area", Unit: "sf"})
	}
	for i := 0; i < measurements; i++ {
		r.Measurements = append(r.Measurements, ProposedMeasurement{ConditionIndex: i % max(conditions, 1), CalculatedValue: 10})
	}
	return r
}

func newTestProcessor(backend Backend, persister Persister, pages []identify.IdentifiedPage) *Processor {
	logger, _ := zap.NewDevelopment()
	return NewProcessor(backend, persister, logger, "p1", "LVT flooring takeoff", pages)
}

func TestProcessor_AcceptPersistsAndAdvances(t *testing.T) {
	backend := &stubBackend{results: map[int]*TakeoffResult{
		1: proposal(2, 3),
	}}
	persister := &stubPersister{}
	p := newTestProcessor(backend, persister, selectedPages(1))

	result, err := p.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Conditions, 2)

	require.NoError(t, p.Accept(context.Background()))

	assert.True(t, p.Done())
	assert.Len(t, p.AcceptedResults(), 1)
	assert.Empty(t, p.RejectedPages())
	assert.Equal(t, 1, persister.persists)

	summary := p.Summary()
	assert.Equal(t, 2, summary.TotalConditionsCreated)
	assert.Equal(t, 3, summary.TotalMeasurementsMade)
}

func TestProcessor_RejectAndSkipRecordPage(t *testing.T) {
	backend := &stubBackend{}
	p := newTestProcessor(backend, &stubPersister{}, selectedPages(1, 2))

	_, err := p.ProcessNext(context.Background())
	require.NoError(t, err)
	p.Reject()

	_, err = p.ProcessNext(context.Background())
	require.NoError(t, err)
	p.Skip()

	assert.True(t, p.Done())
	assert.Equal(t, []int{1, 2}, p.RejectedPages())
	assert.Empty(t, p.AcceptedResults())
}

func TestProcessor_PerPageIsolation(t *testing.T) {
	backend := &stubBackend{
		results: map[int]*TakeoffResult{
			1: proposal(1, 1),
			3: proposal(1, 2),
		},
		errs: map[int]error{
			2: fmt.Errorf("detection model crashed"),
		},
	}
	p := newTestProcessor(backend, &stubPersister{}, selectedPages(1, 2, 3))

	ctx := context.Background()
	for !p.Done() {
		result, err := p.ProcessNext(ctx)
		if err != nil {
			continue // failed page was recorded; the loop advances
		}
		if result != nil {
			require.NoError(t, p.Accept(ctx))
		}
	}

	// Page 2's failure never aborts the run and pages 1 and 3 keep their
	// own outcomes.
	assert.Len(t, p.AcceptedResults(), 2)
	assert.Equal(t, []int{2}, p.RejectedPages())
	assert.Equal(t, 3, len(p.AcceptedResults())+len(p.RejectedPages()))
	assert.Len(t, p.Errors(), 1)
}

func TestProcessor_UnavailableBackendYieldsEmptyResult(t *testing.T) {
	backend := &stubBackend{errs: map[int]error{
		1: errors.ErrDetectionUnavailable,
	}}
	p := newTestProcessor(backend, &stubPersister{}, selectedPages(1))

	result, err := p.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Empty())
	assert.NotEmpty(t, result.Message)

	// The human can still decide; skipping records the page
	p.Skip()
	assert.Equal(t, []int{1}, p.RejectedPages())
	assert.True(t, p.Done())
}

func TestProcessor_PersistFailureRetainsPending(t *testing.T) {
	backend := &stubBackend{results: map[int]*TakeoffResult{
		1: proposal(1, 1),
	}}
	persister := &stubPersister{failures: 1}
	p := newTestProcessor(backend, persister, selectedPages(1))

	ctx := context.Background()
	_, err := p.ProcessNext(ctx)
	require.NoError(t, err)

	err = p.Accept(ctx)
	require.Error(t, err)
	assert.Equal(t, "PERSIST_001", errors.GetCode(err))

	// The proposal is not lost; a retry succeeds
	require.NotNil(t, p.Pending())
	require.NoError(t, p.Accept(ctx))
	assert.Len(t, p.AcceptedResults(), 1)
}

func TestProcessor_PageOrderPreserved(t *testing.T) {
	backend := &stubBackend{}
	p := newTestProcessor(backend, &stubPersister{}, selectedPages(5, 3, 9))

	ctx := context.Background()
	for !p.Done() {
		_, err := p.ProcessNext(ctx)
		require.NoError(t, err)
		p.Skip()
	}

	// Identifier order, never re-sorted numerically
	assert.Equal(t, []int{5, 3, 9}, backend.calls)
	assert.Equal(t, []int{5, 3, 9}, p.RejectedPages())
}

func TestProcessor_DeselectedPagesExcluded(t *testing.T) {
	pages := selectedPages(1, 2, 3)
	pages[1].Selected = false

	backend := &stubBackend{}
	p := newTestProcessor(backend, &stubPersister{}, pages)

	ctx := context.Background()
	for !p.Done() {
		_, err := p.ProcessNext(ctx)
		require.NoError(t, err)
		p.Skip()
	}

	assert.Equal(t, []int{1, 3}, backend.calls)
}

func TestProcessor_Decide(t *testing.T) {
	backend := &stubBackend{results: map[int]*TakeoffResult{1: proposal(1, 0)}}
	p := newTestProcessor(backend, &stubPersister{}, selectedPages(1))

	ctx := context.Background()
	_, err := p.ProcessNext(ctx)
	require.NoError(t, err)

	assert.Error(t, p.Decide(ctx, Decision("maybe")))
	require.NoError(t, p.Decide(ctx, DecisionAccept))
	assert.True(t, p.Done())
}

func TestProcessor_AcceptWithoutPending(t *testing.T) {
	p := newTestProcessor(&stubBackend{}, &stubPersister{}, selectedPages(1))
	assert.Error(t, p.Accept(context.Background()))
}
