// Package extrude sweeps a validated 2D profile along an axis into a closed
// triangular prism mesh: two triangulated caps plus one quad (as a triangle
// pair) per profile edge. The result is watertight whenever the profile is a
// simple polygon, which the profile package guarantees before this code runs.
package extrude

import (
	"fmt"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/flumelab/flume/pkg/mesh"
	"github.com/flumelab/flume/pkg/profile"
)

// Axis selects the sweep direction of an extrusion.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String returns the lowercase axis name.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "?"
}

// ParseAxis converts "x", "y" or "z" to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("invalid axis %q, expected x, y, or z", s)
}

// embed maps profile coordinates (u,v) at sweep position w into 3D so that
// the profile's counter-clockwise winding faces the positive sweep axis.
func (a Axis) embed(u, v, w float64) v3.Vec {
	switch a {
	case AxisX:
		return v3.Vec{X: w, Y: u, Z: v}
	case AxisY:
		return v3.Vec{X: v, Y: w, Z: u}
	default:
		return v3.Vec{X: u, Y: v, Z: w}
	}
}

// Extrude sweeps the profile along the axis over the given length. The
// profile must validate as a simple polygon with nonzero area; violations
// surface as *profile.GeometryError before any mesh is built. A nonpositive
// length is degenerate for the same reason a zero-area profile is.
func Extrude(p *profile.Profile, length float64, axis Axis) (*mesh.Mesh, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, &profile.GeometryError{
			Reason: "degenerate profile",
			Detail: fmt.Sprintf("extrusion length %g, must be positive", length),
		}
	}

	ccw := p.Normalized()
	caps, err := Triangulate(ccw.Points)
	if err != nil {
		return nil, err
	}

	n := len(ccw.Points)
	m := &mesh.Mesh{
		Vertices: make([]float32, 0, 2*n*3),
		Indices:  make([]uint32, 0, (2*len(caps)+2*n)*3),
	}

	// Bottom ring [0,n), top ring [n,2n).
	for _, pt := range ccw.Points {
		v := axis.embed(pt.X, pt.Y, 0)
		m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
	}
	for _, pt := range ccw.Points {
		v := axis.embed(pt.X, pt.Y, length)
		m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
	}

	// Caps. The triangulation is counter-clockwise, which faces +axis: the
	// top cap keeps it, the bottom cap flips it to face outward.
	for i := 0; i < len(caps); i += 3 {
		i0, i1, i2 := caps[i], caps[i+1], caps[i+2]
		m.Indices = append(m.Indices, i0, i2, i1)
		m.Indices = append(m.Indices, uint32(n)+i0, uint32(n)+i1, uint32(n)+i2)
	}

	// Side wall: one quad per profile edge.
	for i := 0; i < n; i++ {
		a := uint32(i)
		b := uint32((i + 1) % n)
		m.Indices = append(m.Indices, a, b, uint32(n)+b)
		m.Indices = append(m.Indices, a, uint32(n)+b, uint32(n)+a)
	}

	return m, nil
}

// Triangulate triangulates a counter-clockwise simple polygon by ear
// clipping and returns index triples into the input slice. The output always
// holds 3*(n-2) indices for an n-point polygon.
func Triangulate(points []v2.Vec) ([]uint32, error) {
	n := len(points)
	if n < 3 {
		return nil, fmt.Errorf("triangulate: %d points, need at least 3", n)
	}

	// Remaining vertex indices, clipped down to a final triangle.
	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}

	out := make([]uint32, 0, 3*(n-2))
	guard := 0
	for len(remaining) > 3 {
		clipped := false
		for i := 0; i < len(remaining); i++ {
			prev := remaining[(i+len(remaining)-1)%len(remaining)]
			cur := remaining[i]
			next := remaining[(i+1)%len(remaining)]
			if !isEar(points, remaining, prev, cur, next) {
				continue
			}
			out = append(out, uint32(prev), uint32(cur), uint32(next))
			remaining = append(remaining[:i], remaining[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// A simple polygon always has at least two ears; reaching this
			// point means collinear runs defeated the strict convexity test.
			// Clip the first convex-or-flat vertex to make progress.
			for i := 0; i < len(remaining); i++ {
				prev := remaining[(i+len(remaining)-1)%len(remaining)]
				cur := remaining[i]
				next := remaining[(i+1)%len(remaining)]
				if cross2(points[prev], points[cur], points[next]) >= 0 {
					out = append(out, uint32(prev), uint32(cur), uint32(next))
					remaining = append(remaining[:i], remaining[i+1:]...)
					clipped = true
					break
				}
			}
		}
		if !clipped {
			return nil, fmt.Errorf("triangulate: no ear found with %d vertices left", len(remaining))
		}
		guard++
		if guard > n {
			return nil, fmt.Errorf("triangulate: failed to terminate")
		}
	}
	out = append(out, uint32(remaining[0]), uint32(remaining[1]), uint32(remaining[2]))
	return out, nil
}

func cross2(a, b, c v2.Vec) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// isEar reports whether cur is a convex vertex whose triangle with its
// neighbors contains no other remaining vertex.
func isEar(points []v2.Vec, remaining []int, prev, cur, next int) bool {
	a, b, c := points[prev], points[cur], points[next]
	if cross2(a, b, c) <= 0 {
		return false // reflex or collinear
	}
	for _, r := range remaining {
		if r == prev || r == cur || r == next {
			continue
		}
		if pointInTriangle(points[r], a, b, c) {
			return false
		}
	}
	return true
}

// pointInTriangle reports whether p lies inside or on triangle a,b,c (CCW).
func pointInTriangle(p, a, b, c v2.Vec) bool {
	return cross2(a, b, p) >= 0 && cross2(b, c, p) >= 0 && cross2(c, a, p) >= 0
}
