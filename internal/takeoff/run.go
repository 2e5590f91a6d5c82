package takeoff

import (
	"time"

	"github.com/planlift/takeoff/internal/detect"
	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/identify"
)

// State is the workflow position of a run
type State string

const (
	StateScope         State = "scope"
	StateIdentifying   State = "identifying"
	StatePageSelection State = "page-selection"
	StateProcessing    State = "processing"
	StateComplete      State = "complete"
)

// Mode selects how the processing stage executes
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeBatch       Mode = "batch"
	ModeAutomated   Mode = "automated"
)

// transitions is the set of legal state edges. page-selection may fall back
// to scope so the user can rephrase; every other edge moves forward.
var transitions = map[State][]State{
	StateScope:         {StateIdentifying},
	StateIdentifying:   {StatePageSelection, StateScope},
	StatePageSelection: {StateProcessing, StateScope},
	StateProcessing:    {StateComplete},
	StateComplete:      {},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Run is one pass of the takeoff workflow. All mutation goes through the
// orchestrator, which serializes events; a Run never guards itself.
type Run struct {
	ID        string
	ProjectID string
	Scope     string
	State     State
	Mode      Mode

	Pages []identify.IdentifiedPage

	// interactive mode
	processor *detect.Processor

	// batch mode
	batch        *detect.BatchProcessor
	consolidated *detect.TakeoffResult
	aggregated   bool

	// automated mode
	BackendRunID string

	Summary   detect.RunSummary
	Errors    []string
	StartedAt time.Time
	EndedAt   *time.Time
}

func (r *Run) transition(to State) error {
	if !canTransition(r.State, to) {
		return errors.New(errors.ErrInvalidTransition.Code,
			"cannot move from "+string(r.State)+" to "+string(to))
	}
	r.State = to
	return nil
}

// SelectedPages returns the pages still marked selected, in the order the
// identifier presented them. Order is never re-sorted; sheet numbering is
// not a reliable proxy for a document's authored page order.
func (r *Run) SelectedPages() []identify.IdentifiedPage {
	var out []identify.IdentifiedPage
	for _, p := range r.Pages {
		if p.Selected {
			out = append(out, p)
		}
	}
	return out
}

// SetPageSelection toggles one identified page in or out of the selection
func (r *Run) SetPageSelection(documentID string, pageNumber int, selected bool) bool {
	for i := range r.Pages {
		if r.Pages[i].DocumentID == documentID && r.Pages[i].PageNumber == pageNumber {
			r.Pages[i].Selected = selected
			return true
		}
	}
	return false
}

// Terminal reports whether the run can accept no further events
func (r *Run) Terminal() bool {
	return r.State == StateComplete
}
