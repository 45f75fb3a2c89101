package render

import (
	"fmt"
	"sync"
)

// Mode selects which draw path the next frame takes.
type Mode int

const (
	ModeSurface Mode = iota
	ModeSlice
	ModeVolume
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeSurface:
		return "surface"
	case ModeSlice:
		return "slice"
	case ModeVolume:
		return "volume"
	}
	return "?"
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "surface":
		return ModeSurface, nil
	case "slice":
		return ModeSlice, nil
	case "volume":
		return ModeVolume, nil
	}
	return 0, fmt.Errorf("invalid render mode %q", s)
}

// State is the user-mutable visualization state, read once per frame. Mode
// switches are instantaneous and carry no side effects beyond which draw
// path runs next.
type State struct {
	mu        sync.Mutex
	mode      Mode
	slices    [3]float64 // plane position per axis as a fraction of the extent
	enabled   [3]bool
	opacity   float64 // volume opacity scale
	threshold float64 // volume visibility threshold, in normalized [0,1]
}

// NewState returns the session defaults: surface mode, a single mid-domain
// Z plane, full opacity, no threshold.
func NewState() *State {
	s := &State{opacity: 1}
	s.slices = [3]float64{0.5, 0.5, 0.5}
	s.enabled[2] = true
	return s
}

// SetMode switches the visualization mode.
func (s *State) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Mode returns the current mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetSlice positions the slice plane for one axis (0=X, 1=Y, 2=Z) at a
// fraction of the domain extent, clamped to [0,1], and toggles it.
func (s *State) SetSlice(axis int, frac float64, on bool) error {
	if axis < 0 || axis > 2 {
		return fmt.Errorf("invalid slice axis %d", axis)
	}
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slices[axis] = frac
	s.enabled[axis] = on
	return nil
}

// SetTransfer sets the volume transfer function parameters.
func (s *State) SetTransfer(opacity, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opacity < 0 {
		opacity = 0
	}
	s.opacity = opacity
	s.threshold = threshold
}

// view returns an immutable copy for one frame.
func (s *State) view() stateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stateView{
		mode:      s.mode,
		slices:    s.slices,
		enabled:   s.enabled,
		opacity:   s.opacity,
		threshold: s.threshold,
	}
}

type stateView struct {
	mode      Mode
	slices    [3]float64
	enabled   [3]bool
	opacity   float64
	threshold float64
}
