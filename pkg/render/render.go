// Package render composes the surface, slice and volume visualization
// modes from the most recent complete snapshot. It reads the render state
// and the snapshot store each frame and mutates neither; everything it
// returns is freshly allocated payload data for the frontend.
package render

import (
	"math"

	"github.com/flumelab/flume/pkg/mesh"
	"github.com/flumelab/flume/pkg/snapshot"
	"github.com/flumelab/flume/pkg/voxel"
)

// DefaultVolumeSize is the composited volume image edge length.
const DefaultVolumeSize = 256

// Renderer builds one frame payload per call. The solid mesh is static
// geometry; the snapshot store supplies the fields.
type Renderer struct {
	State *State
	Store *snapshot.Store

	// VolumeW/VolumeH size the volume image. Zero means DefaultVolumeSize.
	VolumeW, VolumeH int

	solid *mesh.Mesh
}

// NewRenderer wires a renderer to its state and snapshot source.
func NewRenderer(state *State, store *snapshot.Store) *Renderer {
	return &Renderer{State: state, Store: store}
}

// SetSolid installs the extruded solid shown in surface mode.
func (r *Renderer) SetSolid(m *mesh.Mesh) {
	r.solid = m
}

// Frame is one rendered frame, with exactly the payload of the active mode
// populated.
type Frame struct {
	Mode    string       `json:"mode"`
	Surface *mesh.Mesh   `json:"surface,omitempty"`
	Slices  []SlicePlane `json:"slices,omitempty"`
	Volume  *Image       `json:"volume,omitempty"`
}

// SlicePlane is one axis-aligned sample plane as an RGBA raster.
type SlicePlane struct {
	Axis  string  `json:"axis"`
	Index int     `json:"index"` // cell layer along the axis
	Frac  float64 `json:"frac"`
	W     int     `json:"w"`
	H     int     `json:"h"`
	RGBA  []uint8 `json:"rgba"`
}

// Image is a composited RGBA raster.
type Image struct {
	W    int     `json:"w"`
	H    int     `json:"h"`
	RGBA []uint8 `json:"rgba"`
}

// Frame renders the current mode against the latest snapshot. Surface mode
// works with no snapshot at all; slice and volume modes degrade to empty
// payloads until the first snapshot arrives.
func (r *Renderer) Frame() *Frame {
	st := r.State.view()
	snap := r.Store.Latest()
	f := &Frame{Mode: st.mode.String()}
	switch st.mode {
	case ModeSurface:
		if r.solid != nil {
			f.Surface = r.solid.FlatShaded()
		}
	case ModeSlice:
		if snap != nil {
			f.Slices = slicePlanes(snap, st)
		}
	case ModeVolume:
		w, h := r.VolumeW, r.VolumeH
		if w == 0 {
			w = DefaultVolumeSize
		}
		if h == 0 {
			h = DefaultVolumeSize
		}
		f.Volume = volumeImage(snap, st, w, h)
	}
	return f
}

// fieldRange returns the min and max of the scalar field, skipping solid
// cells so obstacle interiors do not stretch the color scale.
func fieldRange(s *snapshot.Snapshot) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i, v := range s.Density {
		if s.Flags != nil && voxel.CellType(s.Flags[i]) == voxel.CellSolid {
			continue
		}
		f := float64(v)
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if lo > hi { // all solid or empty
		return 0, 0
	}
	return lo, hi
}

// normalize maps v into [0,1] over the lo..hi range.
func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	t := (v - lo) / (hi - lo)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// heatColor maps a normalized value to the blue-to-red scale.
func heatColor(t float64) (uint8, uint8, uint8) {
	r := uint8(255 * t)
	g := uint8(64 * (1 - math.Abs(2*t-1)))
	b := uint8(255 * (1 - t))
	return r, g, b
}

var solidGray = [4]uint8{96, 96, 96, 255}

// slicePlanes samples every enabled axis plane of the scalar field.
func slicePlanes(s *snapshot.Snapshot, st stateView) []SlicePlane {
	lo, hi := fieldRange(s)
	dims := [3]int{s.Nx, s.Ny, s.Nz}
	var out []SlicePlane
	for axis := 0; axis < 3; axis++ {
		if !st.enabled[axis] {
			continue
		}
		layer := int(st.slices[axis] * float64(dims[axis]-1))
		out = append(out, samplePlane(s, axis, layer, st.slices[axis], lo, hi))
	}
	return out
}

func samplePlane(s *snapshot.Snapshot, axis, layer int, frac, lo, hi float64) SlicePlane {
	// The two in-plane axes, in (width, height) order.
	var w, h int
	switch axis {
	case 0:
		w, h = s.Ny, s.Nz
	case 1:
		w, h = s.Nx, s.Nz
	default:
		w, h = s.Nx, s.Ny
	}
	p := SlicePlane{
		Axis:  [3]string{"x", "y", "z"}[axis],
		Index: layer,
		Frac:  frac,
		W:     w,
		H:     h,
		RGBA:  make([]uint8, w*h*4),
	}
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			var idx int
			switch axis {
			case 0:
				idx = s.Index(layer, u, v)
			case 1:
				idx = s.Index(u, layer, v)
			default:
				idx = s.Index(u, v, layer)
			}
			o := (v*w + u) * 4
			if s.Flags != nil && voxel.CellType(s.Flags[idx]) == voxel.CellSolid {
				copy(p.RGBA[o:o+4], solidGray[:])
				continue
			}
			cr, cg, cb := heatColor(normalize(float64(s.Density[idx]), lo, hi))
			p.RGBA[o] = cr
			p.RGBA[o+1] = cg
			p.RGBA[o+2] = cb
			p.RGBA[o+3] = 255
		}
	}
	return p
}

// volumeImage ray-marches the scalar field along -Z with an orthographic
// camera, compositing front to back. Samples below the visibility
// threshold contribute nothing; accumulated opacity saturates early and
// terminates the ray.
func volumeImage(s *snapshot.Snapshot, st stateView, w, h int) *Image {
	img := &Image{W: w, H: h, RGBA: make([]uint8, w*h*4)}
	if s == nil {
		return img
	}
	lo, hi := fieldRange(s)
	for py := 0; py < h; py++ {
		// Image rows run top to bottom, grid rows bottom to top.
		j := (h - 1 - py) * s.Ny / h
		for px := 0; px < w; px++ {
			i := px * s.Nx / w
			var cr, cg, cb, ca float64
			for k := s.Nz - 1; k >= 0 && ca < 0.99; k-- {
				idx := s.Index(i, j, k)
				if s.Flags != nil && voxel.CellType(s.Flags[idx]) == voxel.CellSolid {
					continue
				}
				t := normalize(float64(s.Density[idx]), lo, hi)
				if t < st.threshold {
					continue
				}
				a := st.opacity * t / float64(s.Nz)
				if a > 1 {
					a = 1
				}
				hr, hg, hb := heatColor(t)
				cr += (1 - ca) * a * float64(hr)
				cg += (1 - ca) * a * float64(hg)
				cb += (1 - ca) * a * float64(hb)
				ca += (1 - ca) * a
			}
			o := (py*w + px) * 4
			img.RGBA[o] = clamp8(cr)
			img.RGBA[o+1] = clamp8(cg)
			img.RGBA[o+2] = clamp8(cb)
			img.RGBA[o+3] = clamp8(255 * ca)
		}
	}
	return img
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
