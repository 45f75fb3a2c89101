// Package profile holds the 2D cross-section sketch: an ordered, logically
// closed point sequence. A profile must form a simple polygon with nonzero
// enclosed area before it may be extruded; Validate enforces exactly that
// contract and nothing more.
package profile

import (
	"fmt"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// areaEpsilon is the smallest enclosed area a profile may have before it is
// considered degenerate.
const areaEpsilon = 1e-9

// GeometryError reports a profile that cannot be extruded. The Reason is one
// of the stable strings "self-intersecting profile" or "degenerate profile",
// optionally followed by detail.
type GeometryError struct {
	Reason string
	Detail string
}

func (e *GeometryError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
	}
	return e.Reason
}

// Profile is an ordered closed 2D point sequence. The last point connects
// back to the first; the closing point is not stored. A Profile is treated
// as immutable once handed to the extruder.
type Profile struct {
	Points []v2.Vec
}

// New creates a profile from an ordered point sequence. A trailing point
// equal to the first is dropped so callers may pass explicitly closed rings.
func New(points []v2.Vec) *Profile {
	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	cp := make([]v2.Vec, len(points))
	copy(cp, points)
	return &Profile{Points: cp}
}

// Rect creates a w×h rectangle with its minimum corner at the origin.
func Rect(w, h float64) *Profile {
	return New([]v2.Vec{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}})
}

// Ngon creates a regular n-gon of the given circumradius centered at the
// origin, wound counter-clockwise.
func Ngon(n int, radius float64) *Profile {
	pts := make([]v2.Vec, 0, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts = append(pts, v2.Vec{X: radius * math.Cos(a), Y: radius * math.Sin(a)})
	}
	return New(pts)
}

// Translated returns a copy of the profile offset by d.
func (p *Profile) Translated(d v2.Vec) *Profile {
	pts := make([]v2.Vec, len(p.Points))
	for i, pt := range p.Points {
		pts[i] = v2.Vec{X: pt.X + d.X, Y: pt.Y + d.Y}
	}
	return &Profile{Points: pts}
}

// Area returns the signed enclosed area (shoelace formula). Positive for
// counter-clockwise winding.
func (p *Profile) Area() float64 {
	var sum float64
	n := len(p.Points)
	for i := 0; i < n; i++ {
		a := p.Points[i]
		b := p.Points[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Bounds returns the axis-aligned bounding box of the profile.
func (p *Profile) Bounds() (min, max v2.Vec) {
	if len(p.Points) == 0 {
		return v2.Vec{}, v2.Vec{}
	}
	min, max = p.Points[0], p.Points[0]
	for _, pt := range p.Points[1:] {
		min.X = math.Min(min.X, pt.X)
		min.Y = math.Min(min.Y, pt.Y)
		max.X = math.Max(max.X, pt.X)
		max.Y = math.Max(max.Y, pt.Y)
	}
	return min, max
}

// Normalized returns a copy of the profile wound counter-clockwise.
func (p *Profile) Normalized() *Profile {
	if p.Area() >= 0 {
		return New(p.Points)
	}
	n := len(p.Points)
	rev := make([]v2.Vec, n)
	for i, pt := range p.Points {
		rev[n-1-i] = pt
	}
	return &Profile{Points: rev}
}

// Validate checks that the profile is a simple polygon enclosing nonzero
// area. It returns a *GeometryError describing the first violation found,
// or nil if the profile is extrudable.
func (p *Profile) Validate() error {
	n := len(p.Points)
	if n < 3 {
		return &GeometryError{
			Reason: "degenerate profile",
			Detail: fmt.Sprintf("%d points, need at least 3", n),
		}
	}
	for i := 0; i < n; i++ {
		if p.Points[i] == p.Points[(i+1)%n] {
			return &GeometryError{
				Reason: "degenerate profile",
				Detail: fmt.Sprintf("repeated point at index %d", i),
			}
		}
	}
	// Pairwise edge intersection test, before the area check: a symmetric
	// bowtie encloses zero signed area, but the actionable defect is the
	// crossing. Adjacent edges share a vertex and are skipped; anything
	// else that touches makes the polygon non-simple.
	for i := 0; i < n; i++ {
		a1 := p.Points[i]
		a2 := p.Points[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip the edge itself and the two neighbors.
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1 := p.Points[j]
			b2 := p.Points[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return &GeometryError{
					Reason: "self-intersecting profile",
					Detail: fmt.Sprintf("edge %d crosses edge %d", i, j),
				}
			}
		}
	}
	if math.Abs(p.Area()) < areaEpsilon {
		return &GeometryError{Reason: "degenerate profile", Detail: "zero enclosed area"}
	}
	return nil
}

// cross returns the z component of (b-a) × (c-a).
func cross(a, b, c v2.Vec) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// onSegment reports whether c, known collinear with a-b, lies on segment a-b.
func onSegment(a, b, c v2.Vec) bool {
	return math.Min(a.X, b.X) <= c.X && c.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= c.Y && c.Y <= math.Max(a.Y, b.Y)
}

// segmentsIntersect reports whether segments a1-a2 and b1-b2 share any point.
func segmentsIntersect(a1, a2, b1, b2 v2.Vec) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && onSegment(b1, b2, a1) {
		return true
	}
	if d2 == 0 && onSegment(b1, b2, a2) {
		return true
	}
	if d3 == 0 && onSegment(a1, a2, b1) {
		return true
	}
	if d4 == 0 && onSegment(a1, a2, b2) {
		return true
	}
	return false
}
