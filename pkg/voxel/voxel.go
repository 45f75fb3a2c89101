// Package voxel rasterizes a closed triangle mesh into a dense grid of
// per-cell boundary flags sized to a cell-count budget. The grid is the
// geometry artifact a simulation run is started with, and its dimensions fix
// the snapshot shape for the lifetime of that run.
package voxel

import (
	"fmt"
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/flumelab/flume/pkg/mesh"
)

// CellType classifies one grid cell.
type CellType uint8

const (
	CellFluid CellType = iota
	CellSolid
	CellEdge // outer face of the domain box
)

// String returns the lowercase cell type name.
func (c CellType) String() string {
	switch c {
	case CellFluid:
		return "fluid"
	case CellSolid:
		return "solid"
	case CellEdge:
		return "edge"
	}
	return "?"
}

// BudgetError reports a resolution request clamped to the cell budget. It is
// a warning: the dimensions returned alongside it are valid and usable.
type BudgetError struct {
	Requested int
	Limit     int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("voxel budget exceeded: requested %d cells, clamped to %d", e.Requested, e.Limit)
}

// Resolution chooses grid dimensions proportional to the aspect ratio whose
// product is the largest value not exceeding the cell budget. A request above
// limit (when limit > 0) is clamped to limit and reported via *BudgetError;
// the dimensions are still returned and the caller may proceed.
func Resolution(aspect v3.Vec, cells, limit int) (nx, ny, nz int, err error) {
	if aspect.X <= 0 || aspect.Y <= 0 || aspect.Z <= 0 {
		return 0, 0, 0, fmt.Errorf("resolution: aspect ratio %v, all components must be positive", aspect)
	}
	if cells <= 0 {
		return 0, 0, 0, fmt.Errorf("resolution: cell budget %d, must be positive", cells)
	}
	budget := cells
	if limit > 0 && cells > limit {
		budget = limit
		err = &BudgetError{Requested: cells, Limit: limit}
	}

	// Solve nx*ny*nz = budget with nx:ny:nz = aspect, then floor per axis.
	s := math.Cbrt(float64(budget) / (aspect.X * aspect.Y * aspect.Z))
	nx = axisCells(aspect.X * s)
	ny = axisCells(aspect.Y * s)
	nz = axisCells(aspect.Z * s)
	for nx*ny*nz > budget {
		switch {
		case nx >= ny && nx >= nz && nx > 1:
			nx--
		case ny >= nz && ny > 1:
			ny--
		default:
			nz--
		}
	}
	return nx, ny, nz, err
}

func axisCells(n float64) int {
	// Absorb float error before flooring so an exact fit is not lost.
	c := int(math.Floor(n + 1e-9))
	if c < 1 {
		return 1
	}
	return c
}

// Grid is a dense 3D boundary-flag field. Flags is indexed x-fastest:
// Flags[i + Nx*(j + Ny*k)].
type Grid struct {
	Nx, Ny, Nz int
	Origin     v3.Vec // position of the corner of cell (0,0,0)
	Spacing    v3.Vec // cell size per axis
	Flags      []CellType
}

// NewGrid allocates an all-fluid grid.
func NewGrid(nx, ny, nz int, origin, spacing v3.Vec) *Grid {
	return &Grid{
		Nx: nx, Ny: ny, Nz: nz,
		Origin:  origin,
		Spacing: spacing,
		Flags:   make([]CellType, nx*ny*nz),
	}
}

// GridFor allocates a grid whose box exactly covers the mesh bounds.
func GridFor(m *mesh.Mesh, nx, ny, nz int) *Grid {
	min, max := m.Bounds()
	return NewGrid(nx, ny, nz, min, v3.Vec{
		X: span(max.X-min.X) / float64(nx),
		Y: span(max.Y-min.Y) / float64(ny),
		Z: span(max.Z-min.Z) / float64(nz),
	})
}

// span guards against a flat mesh producing zero-width cells.
func span(d float64) float64 {
	if d <= 0 {
		return 1
	}
	return d
}

// CellCount returns the total number of cells.
func (g *Grid) CellCount() int {
	return g.Nx * g.Ny * g.Nz
}

// Index returns the flat index of cell (i,j,k).
func (g *Grid) Index(i, j, k int) int {
	return i + g.Nx*(j+g.Ny*k)
}

// At returns the flag of cell (i,j,k).
func (g *Grid) At(i, j, k int) CellType {
	return g.Flags[g.Index(i, j, k)]
}

// Center returns the world-space center of cell (i,j,k).
func (g *Grid) Center(i, j, k int) v3.Vec {
	return v3.Vec{
		X: g.Origin.X + (float64(i)+0.5)*g.Spacing.X,
		Y: g.Origin.Y + (float64(j)+0.5)*g.Spacing.Y,
		Z: g.Origin.Z + (float64(k)+0.5)*g.Spacing.Z,
	}
}

// SolidCount returns the number of solid cells.
func (g *Grid) SolidCount() int {
	n := 0
	for _, f := range g.Flags {
		if f == CellSolid {
			n++
		}
	}
	return n
}

// SolidFraction returns the solid cell count over the total cell count.
func (g *Grid) SolidFraction() float64 {
	if len(g.Flags) == 0 {
		return 0
	}
	return float64(g.SolidCount()) / float64(len(g.Flags))
}

// Classify marks every cell whose center lies inside the mesh as solid,
// using a parity test along +X: for each (j,k) row it collects the x
// positions where the row's axis line crosses the mesh, then flags cells
// with an odd number of crossings to their left. Geometry outside the grid
// box is simply never sampled, which clips it at the boundary. A mesh that
// encloses no cell center leaves the grid all fluid; callers may warn on
// that but it is not an error.
func (g *Grid) Classify(m *mesh.Mesh) {
	var crossings []float64
	for k := 0; k < g.Nz; k++ {
		for j := 0; j < g.Ny; j++ {
			c := g.Center(0, j, k)
			crossings = rowCrossings(m, c.Y, c.Z, crossings[:0])
			sort.Float64s(crossings)
			ci := 0
			for i := 0; i < g.Nx; i++ {
				xc := g.Origin.X + (float64(i)+0.5)*g.Spacing.X
				for ci < len(crossings) && crossings[ci] < xc {
					ci++
				}
				if ci%2 == 1 {
					g.Flags[g.Index(i, j, k)] = CellSolid
				}
			}
		}
	}
}

// rowCrossings appends the x coordinates where the +X line through (y,z)
// crosses the mesh. Triangles parallel to the x axis project to a degenerate
// sliver and are skipped; the line never crosses them transversally. Each
// triangle is canonicalized to counter-clockwise in projection so a line
// landing exactly on a shared edge is claimed by exactly one of the two
// triangles along it, never both and never neither.
func rowCrossings(m *mesh.Mesh, y, z float64, out []float64) []float64 {
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Triangle(t)
		area := edge2(a, b, c.Y, c.Z)
		if area == 0 {
			continue
		}
		if area < 0 {
			b, c = c, b
			area = -area
		}
		wa := edge2(b, c, y, z)
		wb := edge2(c, a, y, z)
		wc := edge2(a, b, y, z)
		if !covers(wa, b, c) || !covers(wb, c, a) || !covers(wc, a, b) {
			continue
		}
		out = append(out, (wa*a.X+wb*b.X+wc*c.X)/area)
	}
	return out
}

// covers applies the fill rule for one edge of a counter-clockwise projected
// triangle. Strictly inside always counts; a point exactly on the edge counts
// only when the edge runs in the accepting direction. Triangles consistently
// wound around a shared edge traverse it in opposite directions, so the tie
// goes to exactly one side.
func covers(w float64, a, b v3.Vec) bool {
	if w != 0 {
		return w > 0
	}
	dy := b.Y - a.Y
	return dy > 0 || (dy == 0 && b.Z > a.Z)
}

// edge2 is the 2D edge function of segment a->b against point (y,z), with
// the triangle projected onto the (y,z) plane.
func edge2(a, b v3.Vec, y, z float64) float64 {
	return (b.Y-a.Y)*(z-a.Z) - (b.Z-a.Z)*(y-a.Y)
}

// MarkDomainEdges reclassifies every cell on the outer face of the grid box
// as a domain-edge cell. The outer box is a flow boundary, never solid.
func (g *Grid) MarkDomainEdges() {
	for k := 0; k < g.Nz; k++ {
		for j := 0; j < g.Ny; j++ {
			for i := 0; i < g.Nx; i++ {
				if i == 0 || i == g.Nx-1 || j == 0 || j == g.Ny-1 || k == 0 || k == g.Nz-1 {
					g.Flags[g.Index(i, j, k)] = CellEdge
				}
			}
		}
	}
}

// Voxelize rasterizes the mesh into a grid covering its bounds, then applies
// the domain-edge shell.
func Voxelize(m *mesh.Mesh, nx, ny, nz int) *Grid {
	g := GridFor(m, nx, ny, nz)
	g.Classify(m)
	g.MarkDomainEdges()
	return g
}
