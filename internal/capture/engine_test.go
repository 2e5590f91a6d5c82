package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/calibration"
	"github.com/planlift/takeoff/internal/geometry"
)

func testCalibration() calibration.Calibration {
	return calibration.Calibration{
		DocumentID:  "d1",
		ScaleFactor: 0.1,
		Viewport:    geometry.Viewport{Width: 1000, Height: 1000},
	}
}

func newTestEngine(t *testing.T) *Engine {
	logger, _ := zap.NewDevelopment()
	return NewEngine(DefaultConfig(), testCalibration(), logger)
}

func TestEngine_InitialState(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_LinearRunningLength(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")

	// No points yet: running length is zero
	assert.Zero(t, e.RunningLength(geometry.Point{X: 0.5, Y: 0.5}))

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	assert.Equal(t, StateDrawing, e.State())

	// 100px at scale 0.1 = 10 real units
	length := e.RunningLength(geometry.Point{X: 0.1, Y: 0})
	assert.InDelta(t, 10.0, length, 1e-9)
}

func TestEngine_LinearCommit(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0.1})

	m := e.Complete()
	require.NotNil(t, m)

	assert.Equal(t, TypeLinear, m.Type)
	assert.InDelta(t, 20.0, m.CalculatedValue, 1e-9)
	assert.Equal(t, "cond1", m.ConditionID)
	assert.Len(t, m.Points, 3)
	assert.Equal(t, StateIdle, e.State())
	assert.Empty(t, e.ActivePoints())
}

func TestEngine_AreaCommit(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeArea, "cond1", "sf")

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0.1})
	e.AddPoint(geometry.Point{X: 0, Y: 0.1})

	m := e.Complete()
	require.NotNil(t, m)

	// 100x100px square at scale 0.1: 10000 * 0.01 = 100
	assert.InDelta(t, 100.0, m.CalculatedValue, 1e-9)
	require.NotNil(t, m.PerimeterValue)
	assert.InDelta(t, 40.0, *m.PerimeterValue, 1e-9)
}

func TestEngine_VolumeCommit(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeVolume, "cond1", "cy")
	e.SetDepth(2)

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0.1})
	e.AddPoint(geometry.Point{X: 0, Y: 0.1})

	m := e.Complete()
	require.NotNil(t, m)

	// pixelArea * depth * scale^3 = 10000 * 2 * 0.001 = 20
	assert.InDelta(t, 20.0, m.CalculatedValue, 1e-9)
	assert.InDelta(t, 2.0, m.Depth, 1e-9)
}

func TestEngine_CountCommitsPerClick(t *testing.T) {
	e := newTestEngine(t)
	e.now = stubClock()
	e.Begin(TypeCount, "cond1", "ea")

	m1 := e.AddPoint(geometry.Point{X: 0.2, Y: 0.2})
	m2 := e.AddPoint(geometry.Point{X: 0.4, Y: 0.4})

	require.NotNil(t, m1)
	require.NotNil(t, m2)
	assert.InDelta(t, 1.0, m1.CalculatedValue, 1e-9)
	assert.InDelta(t, 1.0, m2.CalculatedValue, 1e-9)
	assert.NotEqual(t, m1.ID, m2.ID)
}

func TestEngine_CompleteUnderPointsIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")
	e.AddPoint(geometry.Point{X: 0, Y: 0})

	assert.Nil(t, e.Complete())

	e.Begin(TypeArea, "cond1", "sf")
	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})

	assert.Nil(t, e.Complete())
}

func TestEngine_DoubleCompletionCollapses(t *testing.T) {
	e := newTestEngine(t)

	// Frozen clock: the second trigger lands inside the debounce window
	frozen := time.Now()
	e.now = func() time.Time { return frozen }

	e.Begin(TypeLinear, "cond1", "ft")

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})

	first := e.Complete()
	require.NotNil(t, first)

	// A rapid second trigger inside the debounce window is swallowed
	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.2, Y: 0})
	assert.Nil(t, e.Complete())
}

func TestEngine_CompletionAllowedAfterDebounceWindow(t *testing.T) {
	e := newTestEngine(t)

	current := time.Now()
	e.now = func() time.Time { return current }

	e.Begin(TypeLinear, "cond1", "ft")
	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})
	require.NotNil(t, e.Complete())

	current = current.Add(time.Second)

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.2, Y: 0})
	assert.NotNil(t, e.Complete())
}

func TestEngine_OrthoSnapCandidate(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")
	e.SetOrthoSnap(true)

	e.AddPoint(geometry.Point{X: 0.50, Y: 0.50})

	// dx dominates: snap to horizontal
	got := e.Candidate(geometry.Point{X: 0.60, Y: 0.53})
	assert.Equal(t, geometry.Point{X: 0.60, Y: 0.50}, got)

	// dy dominates: snap to vertical
	got = e.Candidate(geometry.Point{X: 0.52, Y: 0.60})
	assert.Equal(t, geometry.Point{X: 0.50, Y: 0.60}, got)
}

func TestEngine_OrthoSnapOnlyAffectsCandidate(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")

	e.AddPoint(geometry.Point{X: 0.50, Y: 0.50})
	e.SetOrthoSnap(true)
	e.AddPoint(geometry.Point{X: 0.60, Y: 0.53})

	// The committed point is snapped; the first point is untouched
	points := e.ActivePoints()
	require.Len(t, points, 2)
	assert.Equal(t, geometry.Point{X: 0.50, Y: 0.50}, points[0])
	assert.Equal(t, geometry.Point{X: 0.60, Y: 0.50}, points[1])
}

func TestEngine_PolygonAutoClose(t *testing.T) {
	e := newTestEngine(t)
	e.now = stubClock()
	e.Begin(TypeArea, "cond1", "sf")

	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0.1})

	// Click within closure tolerance of the first point commits the polygon
	m := e.AddPoint(geometry.Point{X: 0.002, Y: 0})
	require.NotNil(t, m)
	assert.Equal(t, TypeArea, m.Type)
	assert.Len(t, m.Points, 3)
}

func TestEngine_CancelDiscards(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")
	e.AddPoint(geometry.Point{X: 0, Y: 0})
	e.AddPoint(geometry.Point{X: 0.1, Y: 0})

	e.Cancel()

	assert.Equal(t, StateIdle, e.State())
	assert.Empty(t, e.ActivePoints())
}

func TestEngine_PDFCoordinates(t *testing.T) {
	e := newTestEngine(t)
	e.Begin(TypeLinear, "cond1", "ft")

	e.AddPoint(geometry.Point{X: 0.25, Y: 0.5})
	e.AddPoint(geometry.Point{X: 0.75, Y: 0.5})

	m := e.Complete()
	require.NotNil(t, m)
	require.Len(t, m.PDFCoordinates, 2)
	assert.Equal(t, geometry.Point{X: 250, Y: 500}, m.PDFCoordinates[0])
	assert.Equal(t, geometry.Point{X: 750, Y: 500}, m.PDFCoordinates[1])
}

// stubClock advances a minute per call so debounce never trips accidentally
func stubClock() func() time.Time {
	current := time.Now()
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}
