package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/geometry"
)

func squarePoints(origin geometry.Point, side float64) []geometry.Point {
	return []geometry.Point{
		origin,
		{X: origin.X + side, Y: origin.Y},
		{X: origin.X + side, Y: origin.Y + side},
		{X: origin.X, Y: origin.Y + side},
	}
}

func TestApplyCutouts_SubtractsArea(t *testing.T) {
	cal := testCalibration()
	m := &Measurement{
		Type:            TypeArea,
		Points:          squarePoints(geometry.Point{X: 0, Y: 0}, 0.1),
		CalculatedValue: 100,
	}

	// 50x50px hole at scale 0.1 removes 25
	cutout := squarePoints(geometry.Point{X: 0.02, Y: 0.02}, 0.05)
	result := ApplyCutouts(m, [][]geometry.Point{cutout}, cal)

	assert.InDelta(t, 75.0, result.NetCalculatedValue, 1e-9)
	require.NotNil(t, m.NetCalculatedValue)
	assert.InDelta(t, 75.0, *m.NetCalculatedValue, 1e-9)
	assert.LessOrEqual(t, *m.NetCalculatedValue, m.CalculatedValue)
}

func TestApplyCutouts_ClampsAtZero(t *testing.T) {
	cal := testCalibration()
	m := &Measurement{
		Type:            TypeArea,
		CalculatedValue: 100,
	}

	// Cutouts larger than the gross area never produce a negative net
	big := squarePoints(geometry.Point{X: 0, Y: 0}, 0.2) // 400 scaled
	result := ApplyCutouts(m, [][]geometry.Point{big}, cal)

	assert.Zero(t, result.NetCalculatedValue)
}

func TestApplyCutouts_MultiplePolygons(t *testing.T) {
	cal := testCalibration()
	m := &Measurement{
		Type:            TypeArea,
		CalculatedValue: 100,
	}

	c1 := squarePoints(geometry.Point{X: 0, Y: 0}, 0.05)   // 25 scaled
	c2 := squarePoints(geometry.Point{X: 0.5, Y: 0.5}, 0.05) // 25 scaled
	result := ApplyCutouts(m, [][]geometry.Point{c1, c2}, cal)

	assert.InDelta(t, 50.0, result.NetCalculatedValue, 1e-9)
	assert.Len(t, m.Cutouts, 2)
}

func TestApplyCutouts_IgnoredForLinear(t *testing.T) {
	cal := testCalibration()
	m := &Measurement{
		Type:            TypeLinear,
		CalculatedValue: 42,
	}

	result := ApplyCutouts(m, [][]geometry.Point{squarePoints(geometry.Point{}, 0.1)}, cal)
	assert.InDelta(t, 42.0, result.NetCalculatedValue, 1e-9)
	assert.Nil(t, m.NetCalculatedValue)
}

func TestApplyCutouts_AdjustedPerimeter(t *testing.T) {
	cal := testCalibration()
	perimeter := 40.0
	m := &Measurement{
		Type:            TypeArea,
		CalculatedValue: 100,
		PerimeterValue:  &perimeter,
	}

	cutout := squarePoints(geometry.Point{X: 0.02, Y: 0.02}, 0.05)
	result := ApplyCutouts(m, [][]geometry.Point{cutout}, cal)

	// Opening adds its own outline: 200px * 0.1 = 20
	require.NotNil(t, result.AdjustedPerimeter)
	assert.InDelta(t, 60.0, *result.AdjustedPerimeter, 1e-9)
}

func TestEngine_CutoutMode(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEngine(DefaultConfig(), testCalibration(), logger)
	e.now = stubClock()

	e.Begin(TypeArea, "cond1", "sf")
	for _, p := range squarePoints(geometry.Point{X: 0, Y: 0}, 0.1) {
		e.AddPoint(p)
	}
	m := e.Complete()
	require.NotNil(t, m)
	assert.InDelta(t, 100.0, m.CalculatedValue, 1e-9)

	// Capture a cutout polygon with the same point mechanism
	e.BeginCutout(m)
	for _, p := range squarePoints(geometry.Point{X: 0.02, Y: 0.02}, 0.05) {
		e.AddPoint(p)
	}
	updated := e.Complete()

	require.NotNil(t, updated)
	require.NotNil(t, updated.NetCalculatedValue)
	assert.InDelta(t, 75.0, *updated.NetCalculatedValue, 1e-9)
	assert.Len(t, updated.Cutouts, 1)
}

func TestEngine_CutoutUnderPointsIsNoOp(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	e := NewEngine(DefaultConfig(), testCalibration(), logger)
	e.now = stubClock()

	m := &Measurement{Type: TypeArea, CalculatedValue: 100}
	e.BeginCutout(m)
	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})

	assert.Nil(t, e.Complete())
	assert.Nil(t, m.NetCalculatedValue)

	e.EndCutout()
	assert.Equal(t, StateIdle, e.State())
}
