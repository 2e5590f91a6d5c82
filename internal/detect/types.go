package detect

import (
	"github.com/planlift/takeoff/internal/geometry"
	"github.com/planlift/takeoff/internal/identify"
)

// ProposedCondition is a condition suggested by the detection backend. It is
// transient; only an explicit accept turns it into a persisted condition.
type ProposedCondition struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Unit         string   `json:"unit"`
	WasteFactor  float64  `json:"wasteFactor"`
	Color        string   `json:"color"`
	LaborCost    *float64 `json:"laborCost,omitempty"`
	MaterialCost *float64 `json:"materialCost,omitempty"`
}

// ProposedMeasurement is a measurement suggested by the detection backend,
// keyed into the result's conditions by index.
type ProposedMeasurement struct {
	ConditionIndex  int              `json:"conditionIndex"`
	PageNumber      int              `json:"pageNumber"`
	Type            string           `json:"type"`
	Points          []geometry.Point `json:"points"`
	CalculatedValue float64          `json:"calculatedValue"`
	Unit            string           `json:"unit"`
	PerimeterValue  *float64         `json:"perimeterValue,omitempty"`
}

// TakeoffResult is one page's detection output
type TakeoffResult struct {
	DocumentID   string                `json:"documentId"`
	PageNumber   int                   `json:"pageNumber"`
	Conditions   []ProposedCondition   `json:"conditions"`
	Measurements []ProposedMeasurement `json:"measurements"`
	ScaleFactor  *float64              `json:"scaleFactor,omitempty"`
	Message      string                `json:"message,omitempty"`
}

// Empty reports whether the result proposes nothing
func (r *TakeoffResult) Empty() bool {
	return len(r.Conditions) == 0 && len(r.Measurements) == 0
}

// PageRef identifies one page in a batch request
type PageRef struct {
	DocumentID string            `json:"documentId"`
	PageNumber int               `json:"pageNumber"`
	PageType   identify.PageType `json:"pageType,omitempty"`
}

// BatchResponse is the backend's reply to a multi-page detection request
type BatchResponse struct {
	Results    []TakeoffResult `json:"results"`
	Aggregated bool            `json:"aggregated"`
	Message    string          `json:"message,omitempty"`
}

// RunSummary is the immediate result of starting an automated run
type RunSummary struct {
	TotalPages             int `json:"totalPages"`
	TotalConditionsCreated int `json:"totalConditionsCreated"`
	TotalMeasurementsMade  int `json:"totalMeasurementsPlaced"`
	TotalErrors            int `json:"totalErrors"`
}

// AutomatedRunResponse is the backend's acknowledgement of an automated run
type AutomatedRunResponse struct {
	RunID   string     `json:"runId"`
	Summary RunSummary `json:"summary"`
}

// Decision is the human verdict on a surfaced page result
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
	DecisionSkip   Decision = "skip"
)
