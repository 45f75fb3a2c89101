// Package snapshot ingests the field files a running solver publishes and
// hands the most recent complete one to the renderer. The producer contract
// is atomic publish: a snapshot appears under its final *.vtk name only once
// fully written (temp name + rename), so anything visible is parseable
// unless the producer broke the contract; in that case the previous
// snapshot is retained and the file is retried on the next poll.
package snapshot

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Snapshot is one complete, immutable set of field grids at a point in
// simulation time. All arrays are cell-aligned and x-fastest indexed:
// value(i,j,k) = arr[i + Nx*(j + Ny*k)].
type Snapshot struct {
	Published time.Time // file modification time
	Source    string    // file the snapshot was loaded from

	Nx, Ny, Nz int
	Origin     v3.Vec
	Spacing    v3.Vec

	Density  []float32 // scalar field, one per cell
	Velocity []float32 // vector field, three per cell
	Flags    []uint8   // boundary classification, one per cell; may be nil
}

// CellCount returns the total number of cells.
func (s *Snapshot) CellCount() int {
	return s.Nx * s.Ny * s.Nz
}

// Index returns the flat index of cell (i,j,k).
func (s *Snapshot) Index(i, j, k int) int {
	return i + s.Nx*(j+s.Ny*k)
}

// Speed returns the velocity magnitude at a flat cell index.
func (s *Snapshot) Speed(idx int) float64 {
	vx := float64(s.Velocity[3*idx])
	vy := float64(s.Velocity[3*idx+1])
	vz := float64(s.Velocity[3*idx+2])
	return math.Sqrt(vx*vx + vy*vy + vz*vz)
}

// ShapeMismatchError reports a snapshot whose dimensions do not match the
// grid the run was started with. Non-fatal: the loader skips the file.
type ShapeMismatchError struct {
	Got, Want [3]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("snapshot shape %v does not match run shape %v", e.Got, e.Want)
}

// Store is the double buffer between the loader and the renderer. The
// renderer always observes either the previous or the next fully assembled
// snapshot, never a mix; the pointer swap is the only synchronization.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// Publish makes the snapshot the latest. The snapshot must not be mutated
// after publishing.
func (s *Store) Publish(sn *Snapshot) {
	s.cur.Store(sn)
}

// Latest returns the most recently published snapshot, or nil if none has
// arrived yet.
func (s *Store) Latest() *Snapshot {
	return s.cur.Load()
}
