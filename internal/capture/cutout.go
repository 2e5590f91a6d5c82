package capture

import (
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/calibration"
	"github.com/planlift/takeoff/internal/geometry"
)

// CutoutResult is the adjusted value after subtracting enclosed cutouts
type CutoutResult struct {
	NetCalculatedValue float64  `json:"net_calculated_value"`
	AdjustedPerimeter  *float64 `json:"adjusted_perimeter,omitempty"`
}

// ApplyCutouts subtracts the scaled area of each cutout polygon from the
// measurement's gross value. The net value is clamped at zero; a cutout can
// never invert the measurement's sign. Only area and volume measurements
// carry cutouts.
func ApplyCutouts(m *Measurement, cutouts [][]geometry.Point, cal calibration.Calibration) CutoutResult {
	result := CutoutResult{NetCalculatedValue: m.CalculatedValue}
	if m.Type != TypeArea && m.Type != TypeVolume {
		return result
	}

	scale := cal.ScaleFactor
	removed := 0.0
	for _, polygon := range cutouts {
		area := geometry.PolygonArea(polygon, cal.Viewport) * scale * scale
		if m.Type == TypeVolume {
			area *= m.Depth * scale
		}
		removed += area
	}

	net := m.CalculatedValue - removed
	if net < 0 {
		net = 0
	}
	result.NetCalculatedValue = net

	if m.PerimeterValue != nil {
		// Interior openings add their outline to the measured edge length.
		adjusted := *m.PerimeterValue
		for _, polygon := range cutouts {
			adjusted += scale * geometry.PolygonPerimeter(polygon, cal.Viewport)
		}
		result.AdjustedPerimeter = &adjusted
	}

	m.Cutouts = cutouts
	m.NetCalculatedValue = &result.NetCalculatedValue
	return result
}

// BeginCutout switches the engine into cutout mode on an existing area or
// volume measurement: point collection works exactly as for a polygon
// capture, but completion subtracts from the target instead of creating a
// new measurement.
func (e *Engine) BeginCutout(target *Measurement) {
	e.state = StateIdle
	e.target = target
	e.activePoints = nil
}

// EndCutout leaves cutout mode, discarding any in-progress polygon
func (e *Engine) EndCutout() {
	e.target = nil
	e.activePoints = nil
	e.state = StateIdle
}

func (e *Engine) commitCutout() *Measurement {
	polygon := append([]geometry.Point{}, e.activePoints...)
	cutouts := append(append([][]geometry.Point{}, e.target.Cutouts...), polygon)

	result := ApplyCutouts(e.target, cutouts, e.cal)

	e.logger.Debug("cutout applied",
		zap.Int("cutouts", len(cutouts)),
		zap.Float64("net", result.NetCalculatedValue))

	return e.target
}
