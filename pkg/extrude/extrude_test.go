package extrude

import (
	"errors"
	"math"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/flumelab/flume/pkg/profile"
)

func unitSquare() *profile.Profile {
	return profile.Rect(1, 1)
}

// --- Triangulation ---

func TestTriangulateCount(t *testing.T) {
	tests := []struct {
		name   string
		points []v2.Vec
	}{
		{"triangle", []v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}},
		{"square", []v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}},
		{"concave L", []v2.Vec{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2}}},
		{"heptagon", profile.Ngon(7, 1).Points},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tris, err := Triangulate(tt.points)
			if err != nil {
				t.Fatalf("Triangulate() error = %v", err)
			}
			want := 3 * (len(tt.points) - 2)
			if len(tris) != want {
				t.Errorf("got %d indices, want %d", len(tris), want)
			}
		})
	}
}

func TestTriangulatePreservesArea(t *testing.T) {
	pts := []v2.Vec{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2}}
	tris, err := Triangulate(pts)
	if err != nil {
		t.Fatalf("Triangulate() error = %v", err)
	}
	var sum float64
	for i := 0; i < len(tris); i += 3 {
		a, b, c := pts[tris[i]], pts[tris[i+1]], pts[tris[i+2]]
		area := ((b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)) / 2
		if area <= 0 {
			t.Errorf("triangle %d has non-positive area %g", i/3, area)
		}
		sum += area
	}
	if math.Abs(sum-3.0) > 1e-9 {
		t.Errorf("triangulated area = %g, want 3.0", sum)
	}
}

// --- Extrusion ---

func TestExtrudeUnitSquareTriangleCount(t *testing.T) {
	m, err := Extrude(unitSquare(), 1.0, AxisZ)
	if err != nil {
		t.Fatalf("Extrude() error = %v", err)
	}
	// 2 caps x 2 triangles + 4 side quads x 2 triangles.
	if m.TriangleCount() != 12 {
		t.Errorf("TriangleCount() = %d, want 12", m.TriangleCount())
	}
	if m.VertexCount() != 8 {
		t.Errorf("VertexCount() = %d, want 8", m.VertexCount())
	}
}

func TestExtrudeProducesManifold(t *testing.T) {
	profiles := map[string]*profile.Profile{
		"square":    unitSquare(),
		"triangle":  profile.New([]v2.Vec{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 0, Y: 2}}),
		"concave L": profile.New([]v2.Vec{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 2}}),
		"heptagon":  profile.Ngon(7, 1.5),
		"clockwise": profile.New([]v2.Vec{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}}),
	}
	for name, p := range profiles {
		t.Run(name, func(t *testing.T) {
			m, err := Extrude(p, 2.0, AxisZ)
			if err != nil {
				t.Fatalf("Extrude() error = %v", err)
			}
			if err := m.ManifoldCheck(); err != nil {
				t.Errorf("ManifoldCheck() = %v", err)
			}
		})
	}
}

func TestExtrudeAxisEmbedding(t *testing.T) {
	tests := []struct {
		axis Axis
		// expected bbox max: profile is the unit square, length 5.
		maxX, maxY, maxZ float64
	}{
		{AxisX, 5, 1, 1},
		{AxisY, 1, 5, 1},
		{AxisZ, 1, 1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.axis.String(), func(t *testing.T) {
			m, err := Extrude(unitSquare(), 5.0, tt.axis)
			if err != nil {
				t.Fatalf("Extrude() error = %v", err)
			}
			_, max := m.Bounds()
			if max.X != tt.maxX || max.Y != tt.maxY || max.Z != tt.maxZ {
				t.Errorf("bounds max = %v, want {%g %g %g}", max, tt.maxX, tt.maxY, tt.maxZ)
			}
		})
	}
}

func TestExtrudeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		prof   *profile.Profile
		length float64
	}{
		{"bowtie", profile.New([]v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 1}}), 1},
		{"two points", profile.New([]v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}}), 1},
		{"zero length", unitSquare(), 0},
		{"negative length", unitSquare(), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extrude(tt.prof, tt.length, AxisZ)
			var ge *profile.GeometryError
			if !errors.As(err, &ge) {
				t.Errorf("Extrude() error = %v, want *profile.GeometryError", err)
			}
		})
	}
}

func TestParseAxis(t *testing.T) {
	for _, s := range []string{"x", "y", "z", "X"} {
		if _, err := ParseAxis(s); err != nil {
			t.Errorf("ParseAxis(%q) error = %v", s, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("ParseAxis(\"w\") should fail")
	}
}
