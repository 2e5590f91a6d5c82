package capture

import (
	"time"

	"github.com/planlift/takeoff/internal/geometry"
)

// MeasurementType is the kind of quantity a capture produces
type MeasurementType string

const (
	TypeLinear MeasurementType = "linear"
	TypeArea   MeasurementType = "area"
	TypeVolume MeasurementType = "volume"
	TypeCount  MeasurementType = "count"
)

// MinPoints returns the fewest committed points the type needs to complete.
func (t MeasurementType) MinPoints() int {
	switch t {
	case TypeLinear:
		return 2
	case TypeArea, TypeVolume:
		return 3
	case TypeCount:
		return 1
	}
	return 2
}

// State is the capture engine's position in its lifecycle for the active page
type State string

const (
	StateIdle    State = "idle"
	StateDrawing State = "drawing"
	StateClosing State = "closing"
)

// Measurement is one committed geometric capture. It is transient until the
// caller persists it against a condition.
type Measurement struct {
	ID                 string             `json:"id"`
	Type               MeasurementType    `json:"type"`
	ConditionID        string             `json:"condition_id,omitempty"`
	Points             []geometry.Point   `json:"points"`
	PDFCoordinates     []geometry.Point   `json:"pdf_coordinates"`
	CalculatedValue    float64            `json:"calculated_value"`
	Unit               string             `json:"unit"`
	PerimeterValue     *float64           `json:"perimeter_value,omitempty"`
	Cutouts            [][]geometry.Point `json:"cutouts,omitempty"`
	NetCalculatedValue *float64           `json:"net_calculated_value,omitempty"`
	Depth              float64            `json:"depth,omitempty"`
	Timestamp          time.Time          `json:"timestamp"`
}

// Net returns the net value when cutouts apply, the gross value otherwise.
func (m *Measurement) Net() float64 {
	if m.NetCalculatedValue != nil {
		return *m.NetCalculatedValue
	}
	return m.CalculatedValue
}
