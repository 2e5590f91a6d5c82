package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/capture"
	"github.com/planlift/takeoff/internal/geometry"
	"github.com/planlift/takeoff/internal/store"
)

type createMeasurementRequest struct {
	ProjectID   string            `json:"projectId"`
	ConditionID string            `json:"conditionId"`
	DocumentID  string            `json:"documentId"`
	PageNumber  int               `json:"pageNumber"`
	Type        string            `json:"type"`
	Unit        string            `json:"unit"`
	Depth       float64           `json:"depth,omitempty"`
	OrthoSnap   bool              `json:"orthoSnap,omitempty"`
	Points      []geometry.Point  `json:"points"`
	Viewport    geometry.Viewport `json:"viewport"`
}

// handleCreateMeasurement commits a drawn point sequence the same way an
// interactive session would: the points are replayed through a capture
// engine bound to the page's calibration, and whatever it commits is
// persisted. Count captures commit one measurement per point.
func (s *Server) handleCreateMeasurement(c *fiber.Ctx) error {
	var req createMeasurementRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if req.ProjectID == "" || req.DocumentID == "" || len(req.Points) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "projectId, documentId and points are required"})
	}

	mtype := capture.MeasurementType(req.Type)
	switch mtype {
	case capture.TypeLinear, capture.TypeArea, capture.TypeVolume, capture.TypeCount:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "unknown measurement type"})
	}

	cal, err := s.calibrations.Resolve(c.Context(), req.ProjectID, req.DocumentID, req.PageNumber, req.Viewport)
	if err != nil {
		s.logger.Error("Failed to resolve calibration", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to resolve calibration"})
	}

	// Replayed points are not double inputs, so the interactive debounce
	// window is effectively disabled here.
	engine := capture.NewEngine(capture.Config{
		ClosureTolerance: s.config.Takeoff.ClosureTolerance,
		DebounceWindow:   time.Nanosecond,
		ComputePerimeter: true,
	}, cal, s.logger)

	engine.Begin(mtype, req.ConditionID, req.Unit)
	engine.SetDepth(req.Depth)
	engine.SetOrthoSnap(req.OrthoSnap)

	var committed []*capture.Measurement
	for _, p := range req.Points {
		if m := engine.AddPoint(p); m != nil {
			committed = append(committed, m)
		}
	}
	// Polygons may have auto-closed on the last point; only an open capture
	// still needs an explicit completion.
	if mtype != capture.TypeCount && len(committed) == 0 {
		m := engine.Complete()
		if m == nil {
			return c.Status(400).JSON(fiber.Map{"error": "not enough points for measurement type"})
		}
		committed = append(committed, m)
	}

	rows := make([]*store.Measurement, 0, len(committed))
	for _, m := range committed {
		row, err := s.persistCapture(req, m)
		if err != nil {
			s.logger.Error("Failed to persist measurement", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{"error": "failed to persist measurement"})
		}
		rows = append(rows, row)
	}
	return c.Status(201).JSON(rows)
}

func (s *Server) persistCapture(req createMeasurementRequest, m *capture.Measurement) (*store.Measurement, error) {
	points, err := json.Marshal(m.Points)
	if err != nil {
		return nil, err
	}
	pdfCoords, err := json.Marshal(m.PDFCoordinates)
	if err != nil {
		return nil, err
	}

	row := &store.Measurement{
		ID:              uuid.New().String(),
		ProjectID:       req.ProjectID,
		ConditionID:     req.ConditionID,
		DocumentID:      req.DocumentID,
		PageNumber:      req.PageNumber,
		Type:            string(m.Type),
		Points:          points,
		PDFCoordinates:  pdfCoords,
		CalculatedValue: m.CalculatedValue,
		PerimeterValue:  m.PerimeterValue,
		Unit:            m.Unit,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := s.store.CreateMeasurement(row); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordPersisted(0, 1)
	}
	return row, nil
}

type applyCutoutsRequest struct {
	ProjectID string             `json:"projectId"`
	Depth     float64            `json:"depth,omitempty"`
	Cutouts   [][]geometry.Point `json:"cutouts"`
	Viewport  geometry.Viewport  `json:"viewport"`
}

// handleApplyCutouts subtracts cutout polygons from a stored measurement's
// gross value and persists the net result.
func (s *Server) handleApplyCutouts(c *fiber.Ctx) error {
	var req applyCutoutsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if len(req.Cutouts) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "cutouts are required"})
	}

	row, err := s.store.GetMeasurement(c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "measurement not found"})
	}

	var points []geometry.Point
	if err := json.Unmarshal(row.Points, &points); err != nil {
		s.logger.Error("Stored measurement has malformed points",
			zap.String("measurement_id", row.ID),
			zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "stored measurement is unreadable"})
	}

	cal, err := s.calibrations.Resolve(c.Context(), req.ProjectID, row.DocumentID, row.PageNumber, req.Viewport)
	if err != nil {
		s.logger.Error("Failed to resolve calibration", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to resolve calibration"})
	}

	m := &capture.Measurement{
		ID:              row.ID,
		Type:            capture.MeasurementType(row.Type),
		Points:          points,
		CalculatedValue: row.CalculatedValue,
		PerimeterValue:  row.PerimeterValue,
		Unit:            row.Unit,
		Depth:           req.Depth,
	}
	result := capture.ApplyCutouts(m, req.Cutouts, cal)

	cutouts, err := json.Marshal(req.Cutouts)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to encode cutouts"})
	}
	row.Cutouts = cutouts
	row.NetCalculatedValue = &result.NetCalculatedValue
	row.UpdatedAt = time.Now()
	if err := s.store.UpdateMeasurement(row); err != nil {
		s.logger.Error("Failed to persist net value", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to persist net value"})
	}

	return c.JSON(result)
}
