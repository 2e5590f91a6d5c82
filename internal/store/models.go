package store

import (
	"encoding/json"
	"time"
)

// Condition is a named, unit-typed bucket measurements roll up into.
type Condition struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	ProjectID    string          `gorm:"index" json:"project_id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"` // linear, area, volume, count
	Unit         string          `json:"unit"`
	WasteFactor  float64         `json:"waste_factor"`
	Color        string          `json:"color"`
	LaborCost    *float64        `json:"labor_cost,omitempty"`
	MaterialCost *float64        `json:"material_cost,omitempty"`
	Source       string          `json:"source"` // manual, ai
	Metadata     json.RawMessage `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Measurements []Measurement `json:"measurements,omitempty" gorm:"foreignKey:ConditionID"`
}

// Measurement is one quantified geometric capture tied to a condition and a
// page. Points, PDF coordinates and cutout polygons are stored as JSON text.
type Measurement struct {
	ID                 string          `gorm:"primaryKey" json:"id"`
	ProjectID          string          `gorm:"index" json:"project_id"`
	ConditionID        string          `gorm:"index" json:"condition_id"`
	DocumentID         string          `gorm:"index:idx_doc_page" json:"document_id"`
	PageNumber         int             `gorm:"index:idx_doc_page" json:"page_number"`
	Type               string          `json:"type"`
	Points             json.RawMessage `json:"points" gorm:"type:text"`
	PDFCoordinates     json.RawMessage `json:"pdf_coordinates,omitempty" gorm:"type:text"`
	Cutouts            json.RawMessage `json:"cutouts,omitempty" gorm:"type:text"`
	CalculatedValue    float64         `json:"calculated_value"`
	NetCalculatedValue *float64        `json:"net_calculated_value,omitempty"`
	PerimeterValue     *float64        `json:"perimeter_value,omitempty"`
	Unit               string          `json:"unit"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TakeoffRun records one pass of the takeoff workflow for audit and for
// reconciling automated runs whose backend keeps creating data after the
// start call returns.
type TakeoffRun struct {
	ID                string          `gorm:"primaryKey" json:"id"`
	ProjectID         string          `gorm:"index" json:"project_id"`
	Scope             string          `json:"scope"`
	State             string          `json:"state"`
	Mode              string          `json:"mode"` // interactive, batch, automated
	BackendRunID      string          `gorm:"index" json:"backend_run_id,omitempty"`
	TotalPages        int             `json:"total_pages"`
	ProcessedPages    int             `json:"processed_pages"`
	ConditionsCreated int             `json:"conditions_created"`
	MeasurementsMade  int             `json:"measurements_made"`
	Errors            json.RawMessage `json:"errors,omitempty" gorm:"type:text"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
