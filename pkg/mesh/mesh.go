// Package mesh provides the triangle mesh exchanged between the extruder,
// the voxelizer and the solver. All arrays are flat: vertices has 3 floats
// per vertex (x,y,z), indices has 3 uint32s per triangle.
package mesh

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is an indexed triangle mesh. Vertices may be shared between
// triangles; normals, when present, are per-vertex and parallel to Vertices.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Name     string    `json:"name"`     // label carried through to payloads
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i as a v3.Vec.
func (m *Mesh) Vertex(i int) v3.Vec {
	return v3.Vec{
		X: float64(m.Vertices[3*i]),
		Y: float64(m.Vertices[3*i+1]),
		Z: float64(m.Vertices[3*i+2]),
	}
}

// Triangle returns the three corner positions of triangle t.
func (m *Mesh) Triangle(t int) (a, b, c v3.Vec) {
	return m.Vertex(int(m.Indices[3*t])),
		m.Vertex(int(m.Indices[3*t+1])),
		m.Vertex(int(m.Indices[3*t+2]))
}

// Bounds returns the axis-aligned bounding box of the mesh.
func (m *Mesh) Bounds() (min, max v3.Vec) {
	if m.IsEmpty() {
		return v3.Vec{}, v3.Vec{}
	}
	min = m.Vertex(0)
	max = min
	for i := 1; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}
	return min, max
}

// Center translates the mesh so its bounding-box center sits at the origin
// and returns the offset that was subtracted. The solver expects centered
// geometry.
func (m *Mesh) Center() v3.Vec {
	min, max := m.Bounds()
	off := v3.Vec{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2, Z: (min.Z + max.Z) / 2}
	for i := 0; i < m.VertexCount(); i++ {
		m.Vertices[3*i] -= float32(off.X)
		m.Vertices[3*i+1] -= float32(off.Y)
		m.Vertices[3*i+2] -= float32(off.Z)
	}
	return off
}

// faceNormal returns the unit normal of the triangle a,b,c.
func faceNormal(a, b, c v3.Vec) v3.Vec {
	u := v3.Vec{X: b.X - a.X, Y: b.Y - a.Y, Z: b.Z - a.Z}
	w := v3.Vec{X: c.X - a.X, Y: c.Y - a.Y, Z: c.Z - a.Z}
	n := v3.Vec{
		X: u.Y*w.Z - u.Z*w.Y,
		Y: u.Z*w.X - u.X*w.Z,
		Z: u.X*w.Y - u.Y*w.X,
	}
	l := math.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z)
	if l == 0 {
		return v3.Vec{}
	}
	return v3.Vec{X: n.X / l, Y: n.Y / l, Z: n.Z / l}
}

// FlatShaded returns a copy of the mesh with vertices duplicated per
// triangle and per-face normals, the layout the frontend mesh view expects.
func (m *Mesh) FlatShaded() *Mesh {
	nt := m.TriangleCount()
	out := &Mesh{
		Vertices: make([]float32, 0, nt*9),
		Normals:  make([]float32, 0, nt*9),
		Indices:  make([]uint32, 0, nt*3),
		Name:     m.Name,
	}
	for t := 0; t < nt; t++ {
		a, b, c := m.Triangle(t)
		n := faceNormal(a, b, c)
		for _, v := range []v3.Vec{a, b, c} {
			out.Vertices = append(out.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			out.Normals = append(out.Normals, float32(n.X), float32(n.Y), float32(n.Z))
			out.Indices = append(out.Indices, uint32(len(out.Indices)))
		}
	}
	return out
}

// edgeKey is an undirected vertex index pair.
type edgeKey struct {
	lo, hi uint32
}

func makeEdgeKey(a, b uint32) edgeKey {
	if a < b {
		return edgeKey{lo: a, hi: b}
	}
	return edgeKey{lo: b, hi: a}
}

// ManifoldCheck verifies that every undirected edge borders exactly two
// triangles, the closed-manifold property the voxelizer's parity test
// depends on. It returns nil for a watertight mesh.
func (m *Mesh) ManifoldCheck() error {
	if m.TriangleCount() == 0 {
		return fmt.Errorf("manifold check: empty mesh")
	}
	edges := make(map[edgeKey]int)
	for t := 0; t < m.TriangleCount(); t++ {
		i0 := m.Indices[3*t]
		i1 := m.Indices[3*t+1]
		i2 := m.Indices[3*t+2]
		edges[makeEdgeKey(i0, i1)]++
		edges[makeEdgeKey(i1, i2)]++
		edges[makeEdgeKey(i2, i0)]++
	}
	for e, count := range edges {
		if count != 2 {
			return fmt.Errorf("manifold check: edge %d-%d borders %d triangles, want 2", e.lo, e.hi, count)
		}
	}
	return nil
}
