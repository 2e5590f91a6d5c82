package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var vp = Viewport{Width: 1000, Height: 1000}

func TestDistance(t *testing.T) {
	d := Distance(Point{X: 0, Y: 0}, Point{X: 0.1, Y: 0}, vp)
	assert.InDelta(t, 100.0, d, 1e-9)

	d = Distance(Point{X: 0, Y: 0}, Point{X: 0.3, Y: 0.4}, vp)
	assert.InDelta(t, 500.0, d, 1e-9)
}

func TestDistance_NonSquareViewport(t *testing.T) {
	wide := Viewport{Width: 2000, Height: 1000}
	d := Distance(Point{X: 0, Y: 0}, Point{X: 0.1, Y: 0}, wide)
	assert.InDelta(t, 200.0, d, 1e-9)
}

func TestPolylineLength(t *testing.T) {
	points := []Point{{0, 0}, {0.1, 0}, {0.1, 0.1}}
	assert.InDelta(t, 200.0, PolylineLength(points, vp), 1e-9)
}

func TestPolylineLength_TooFewPoints(t *testing.T) {
	assert.Zero(t, PolylineLength(nil, vp))
	assert.Zero(t, PolylineLength([]Point{{0.5, 0.5}}, vp))
}

func TestPolygonArea_Square(t *testing.T) {
	square := []Point{{0, 0}, {0.1, 0}, {0.1, 0.1}, {0, 0.1}}
	assert.InDelta(t, 10000.0, PolygonArea(square, vp), 1e-9)
}

func TestPolygonArea_Triangle(t *testing.T) {
	tri := []Point{{0, 0}, {0.2, 0}, {0, 0.2}}
	assert.InDelta(t, 20000.0, PolygonArea(tri, vp), 1e-9)
}

func TestPolygonArea_WindingOrderIrrelevant(t *testing.T) {
	cw := []Point{{0, 0}, {0, 0.1}, {0.1, 0.1}, {0.1, 0}}
	ccw := []Point{{0, 0}, {0.1, 0}, {0.1, 0.1}, {0, 0.1}}
	assert.InDelta(t, PolygonArea(ccw, vp), PolygonArea(cw, vp), 1e-9)
}

func TestPolygonArea_TooFewPoints(t *testing.T) {
	assert.Zero(t, PolygonArea([]Point{{0, 0}, {1, 1}}, vp))
}

func TestPolygonPerimeter(t *testing.T) {
	square := []Point{{0, 0}, {0.1, 0}, {0.1, 0.1}, {0, 0.1}}
	assert.InDelta(t, 400.0, PolygonPerimeter(square, vp), 1e-9)
}

func TestOrthoSnap_HorizontalDominant(t *testing.T) {
	got := OrthoSnap(Point{X: 0.50, Y: 0.50}, Point{X: 0.60, Y: 0.53})
	assert.Equal(t, Point{X: 0.60, Y: 0.50}, got)
}

func TestOrthoSnap_VerticalDominant(t *testing.T) {
	got := OrthoSnap(Point{X: 0.50, Y: 0.50}, Point{X: 0.52, Y: 0.60})
	assert.Equal(t, Point{X: 0.50, Y: 0.60}, got)
}

func TestOrthoSnap_TieSnapsVertical(t *testing.T) {
	got := OrthoSnap(Point{X: 0.5, Y: 0.5}, Point{X: 0.6, Y: 0.6})
	assert.Equal(t, Point{X: 0.5, Y: 0.6}, got)
}

func TestClosesLoop(t *testing.T) {
	first := Point{X: 0.5, Y: 0.5}
	near := Point{X: 0.505, Y: 0.5} // 5px at 1000 wide
	far := Point{X: 0.6, Y: 0.5}

	assert.True(t, ClosesLoop(first, near, vp, 10))
	assert.False(t, ClosesLoop(first, far, vp, 10))
}

func TestPolygonArea_DegenerateCollinear(t *testing.T) {
	line := []Point{{0, 0}, {0.1, 0.1}, {0.2, 0.2}}
	assert.InDelta(t, 0.0, PolygonArea(line, vp), 1e-9)
	assert.False(t, math.IsNaN(PolygonArea(line, vp)))
}
