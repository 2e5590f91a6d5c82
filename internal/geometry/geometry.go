// Package geometry implements the point math shared by measurement capture
// and cutout processing. Points are normalized viewport coordinates (0..1);
// a Viewport converts them to pixel space before any distance or area is taken.
package geometry

import "math"

// Point is a normalized viewport coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the pixel extent a normalized point is scaled against. For
// measured values this is always the viewport captured at calibration time,
// so zoom and pan never change a committed quantity.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Distance returns the pixel distance between two normalized points.
func Distance(a, b Point, vp Viewport) float64 {
	dx := (b.X - a.X) * vp.Width
	dy := (b.Y - a.Y) * vp.Height
	return math.Hypot(dx, dy)
}

// PolylineLength returns the summed pixel length of the open polyline.
// Fewer than two points measure zero.
func PolylineLength(points []Point, vp Viewport) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i], vp)
	}
	return total
}

// PolygonArea returns the pixel area of the closed polygon via the shoelace
// formula. The polygon is implicitly closed; the last point does not need to
// repeat the first. Fewer than three points enclose zero area.
func PolygonArea(points []Point, vp Viewport) float64 {
	if len(points) < 3 {
		return 0
	}
	sum := 0.0
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi := points[i].X * vp.Width
		yi := points[i].Y * vp.Height
		xj := points[j].X * vp.Width
		yj := points[j].Y * vp.Height
		sum += xi*yj - xj*yi
	}
	return math.Abs(sum) / 2
}

// PolygonPerimeter returns the pixel perimeter of the closed polygon,
// including the closing segment back to the first point.
func PolygonPerimeter(points []Point, vp Viewport) float64 {
	if len(points) < 3 {
		return 0
	}
	total := PolylineLength(points, vp)
	total += Distance(points[len(points)-1], points[0], vp)
	return total
}

// OrthoSnap constrains candidate to be axis-aligned with last: when the
// horizontal delta dominates the candidate keeps its X and takes last's Y,
// otherwise the reverse. Ties snap vertically.
func OrthoSnap(last, candidate Point) Point {
	dx := math.Abs(candidate.X - last.X)
	dy := math.Abs(candidate.Y - last.Y)
	if dx > dy {
		return Point{X: candidate.X, Y: last.Y}
	}
	return Point{X: last.X, Y: candidate.Y}
}

// ClosesLoop reports whether candidate falls within tolerance pixels of the
// polygon's first point, the close trigger for polygon capture.
func ClosesLoop(first, candidate Point, vp Viewport, tolerance float64) bool {
	return Distance(first, candidate, vp) <= tolerance
}
