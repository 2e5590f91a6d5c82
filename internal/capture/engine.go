// Package capture implements the interactive measurement engine: a small
// state machine that turns sequences of normalized click points into
// committed linear, area, volume, and count measurements.
package capture

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/calibration"
	"github.com/planlift/takeoff/internal/geometry"
)

// Config tunes an engine session
type Config struct {
	// ClosureTolerance is the pixel radius within which a click on the first
	// point closes a polygon.
	ClosureTolerance float64

	// DebounceWindow collapses two completion triggers into one commit.
	DebounceWindow time.Duration

	// ComputePerimeter asks area/volume commits to include the perimeter.
	ComputePerimeter bool
}

// DefaultConfig returns the standard session tuning
func DefaultConfig() Config {
	return Config{
		ClosureTolerance: 10,
		DebounceWindow:   300 * time.Millisecond,
		ComputePerimeter: true,
	}
}

// Engine captures measurements on one active page. It is driven by discrete
// UI events and is not safe for concurrent use; each page session owns one.
type Engine struct {
	cfg    Config
	cal    calibration.Calibration
	logger *zap.Logger

	state        State
	mtype        MeasurementType
	unit         string
	conditionID  string
	depth        float64
	activePoints []geometry.Point

	orthoSnap bool

	// cutout mode: commits subtract from target instead of creating
	target *Measurement

	completing     bool
	lastCompletion time.Time
	now            func() time.Time
}

// NewEngine creates a capture engine bound to a page's calibration
func NewEngine(cfg Config, cal calibration.Calibration, logger *zap.Logger) *Engine {
	if cfg.ClosureTolerance <= 0 {
		cfg.ClosureTolerance = 10
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 300 * time.Millisecond
	}
	return &Engine{
		cfg:    cfg,
		cal:    cal,
		logger: logger,
		state:  StateIdle,
		now:    time.Now,
	}
}

// State returns the engine's current lifecycle state
func (e *Engine) State() State {
	return e.state
}

// ActivePoints returns the in-progress point sequence
func (e *Engine) ActivePoints() []geometry.Point {
	return e.activePoints
}

// SetOrthoSnap toggles axis-aligned snapping for subsequent candidates.
// Already-committed points are never rewritten.
func (e *Engine) SetOrthoSnap(on bool) {
	e.orthoSnap = on
}

// SetDepth declares the depth used by volume commits
func (e *Engine) SetDepth(depth float64) {
	e.depth = depth
}

// Begin starts a capture of the given type for a condition
func (e *Engine) Begin(mtype MeasurementType, conditionID, unit string) {
	e.state = StateIdle
	e.mtype = mtype
	e.conditionID = conditionID
	e.unit = unit
	e.target = nil
	e.activePoints = nil
}

// Candidate returns the point that would be committed for a raw cursor
// position, with ortho-snapping applied against the last committed point.
func (e *Engine) Candidate(p geometry.Point) geometry.Point {
	if !e.orthoSnap || len(e.activePoints) == 0 {
		return p
	}
	last := e.activePoints[len(e.activePoints)-1]
	return geometry.OrthoSnap(last, p)
}

// AddPoint places the next point. For count captures every click commits one
// measurement; polygon captures auto-close when the point lands within the
// closure tolerance of the first point.
func (e *Engine) AddPoint(p geometry.Point) *Measurement {
	p = e.Candidate(p)

	if e.mtype == TypeCount && e.target == nil {
		e.activePoints = []geometry.Point{p}
		return e.commit()
	}

	if e.isPolygon() && len(e.activePoints) >= e.minPoints() &&
		geometry.ClosesLoop(e.activePoints[0], p, e.cal.Viewport, e.cfg.ClosureTolerance) {
		return e.Complete()
	}

	e.activePoints = append(e.activePoints, p)
	e.state = StateDrawing
	return nil
}

// RunningLength returns the live calibrated length for a linear capture with
// the cursor at p. Fewer than two total points measure zero.
func (e *Engine) RunningLength(cursor geometry.Point) float64 {
	if e.mtype != TypeLinear {
		return 0
	}
	all := append(append([]geometry.Point{}, e.activePoints...), e.Candidate(cursor))
	if len(all) < 2 {
		return 0
	}
	return e.cal.ScaleFactor * geometry.PolylineLength(all, e.cal.Viewport)
}

// Complete commits the in-progress capture. Completing with fewer points than
// the type requires is a silent no-op, as is a second trigger inside the
// debounce window.
func (e *Engine) Complete() *Measurement {
	if len(e.activePoints) < e.minPoints() {
		return nil
	}
	return e.commit()
}

// Cancel discards the in-progress capture without committing
func (e *Engine) Cancel() {
	e.activePoints = nil
	e.state = StateIdle
}

func (e *Engine) commit() *Measurement {
	if e.completing {
		return nil
	}
	if !e.lastCompletion.IsZero() && e.now().Sub(e.lastCompletion) < e.cfg.DebounceWindow {
		return nil
	}
	e.completing = true
	e.state = StateClosing

	var m *Measurement
	if e.target != nil {
		m = e.commitCutout()
	} else {
		m = e.buildMeasurement()
	}

	e.activePoints = nil
	e.state = StateIdle
	e.lastCompletion = e.now()
	e.completing = false
	return m
}

func (e *Engine) buildMeasurement() *Measurement {
	points := append([]geometry.Point{}, e.activePoints...)
	m := &Measurement{
		ID:             uuid.NewString(),
		Type:           e.mtype,
		ConditionID:    e.conditionID,
		Points:         points,
		PDFCoordinates: e.toPDFCoordinates(points),
		Unit:           e.unit,
		Timestamp:      e.now(),
	}

	scale := e.cal.ScaleFactor
	switch e.mtype {
	case TypeLinear:
		m.CalculatedValue = scale * geometry.PolylineLength(points, e.cal.Viewport)
	case TypeArea:
		m.CalculatedValue = geometry.PolygonArea(points, e.cal.Viewport) * scale * scale
	case TypeVolume:
		m.Depth = e.depth
		m.CalculatedValue = geometry.PolygonArea(points, e.cal.Viewport) * e.depth * scale * scale * scale
	case TypeCount:
		m.CalculatedValue = 1
	}

	if e.cfg.ComputePerimeter && (e.mtype == TypeArea || e.mtype == TypeVolume) {
		p := scale * geometry.PolygonPerimeter(points, e.cal.Viewport)
		m.PerimeterValue = &p
	}

	e.logger.Debug("measurement committed",
		zap.String("type", string(e.mtype)),
		zap.Int("points", len(points)),
		zap.Float64("value", m.CalculatedValue))

	return m
}

// toPDFCoordinates converts normalized points to the page-invariant pixel
// frame of the calibration viewport.
func (e *Engine) toPDFCoordinates(points []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		out[i] = geometry.Point{
			X: p.X * e.cal.Viewport.Width,
			Y: p.Y * e.cal.Viewport.Height,
		}
	}
	return out
}

func (e *Engine) isPolygon() bool {
	return e.mtype == TypeArea || e.mtype == TypeVolume || (e.target != nil)
}

func (e *Engine) minPoints() int {
	if e.target != nil {
		return 3 // cutouts are always polygons
	}
	return e.mtype.MinPoints()
}
