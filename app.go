package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/flumelab/flume/pkg/engine"
	"github.com/flumelab/flume/pkg/extrude"
	"github.com/flumelab/flume/pkg/mesh"
	"github.com/flumelab/flume/pkg/render"
	"github.com/flumelab/flume/pkg/sim"
	"github.com/flumelab/flume/pkg/snapshot"
	"github.com/flumelab/flume/pkg/voxel"
)

// Event names emitted to the frontend.
const (
	eventSnapshot    = "snapshot:published"
	eventSolverExit  = "solver:exited"
	eventSolverCrash = "solver:crashed"
	eventVoxelWarn   = "voxel:warning"
)

// App is the Wails backend. It exposes the sketch-to-visualization
// pipeline to the frontend via bindings and pushes solver progress back
// through events.
type App struct {
	ctx      context.Context
	engine   *engine.Engine
	bridge   *sim.Bridge
	store    *snapshot.Store
	state    *render.State
	renderer *render.Renderer

	mu          sync.Mutex
	sketch      *engine.Sketch
	solid       *mesh.Mesh
	grid        *voxel.Grid
	run         *sim.Run
	watchCancel context.CancelFunc
}

// NewApp creates a new App with all pipeline components wired.
func NewApp() *App {
	state := render.NewState()
	store := &snapshot.Store{}
	return &App{
		engine:   engine.NewEngine(),
		bridge:   &sim.Bridge{},
		store:    store,
		state:    state,
		renderer: render.NewRenderer(state, store),
	}
}

// startup is called by Wails on app startup. The context is saved for
// runtime event emission.
func (a *App) startup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
}

// shutdown stops any running solver.
func (a *App) shutdown(ctx context.Context) {
	a.StopSimulation()
}

// emit sends a frontend event when the Wails runtime is up.
func (a *App) emit(name string, data ...interface{}) {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, name, data...)
}

// ---------------------------------------------------------------------------
// Sketch and geometry bindings
// ---------------------------------------------------------------------------

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// SketchResult is returned by EvaluateSketch.
type SketchResult struct {
	Profiles []ProfileData   `json:"profiles"`
	Errors   []EvalErrorData `json:"errors"`
}

// ProfileData is a JSON-serializable profile outline.
type ProfileData struct {
	Name   string    `json:"name"`
	Points []float64 `json:"points"` // [x0,y0, x1,y1, ...]
	Area   float64   `json:"area"`
}

// EvaluateSketch runs Lisp source through the engine and returns the
// defined profiles. This is the binding behind the editor.
func (a *App) EvaluateSketch(source string) SketchResult {
	result := SketchResult{Profiles: []ProfileData{}, Errors: []EvalErrorData{}}

	sk, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		log.Printf("evaluate fatal error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Message: e.Message})
		}
		return result
	}

	a.mu.Lock()
	a.sketch = sk
	a.mu.Unlock()

	for _, np := range sk.Profiles {
		pd := ProfileData{Name: np.Name, Area: np.Profile.Area()}
		for _, pt := range np.Profile.Points {
			pd.Points = append(pd.Points, pt.X, pt.Y)
		}
		result.Profiles = append(result.Profiles, pd)
	}
	return result
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices  []float32 `json:"vertices"`
	Normals   []float32 `json:"normals"`
	Indices   []uint32  `json:"indices"`
	Name      string    `json:"name"`
	Triangles int       `json:"triangles"`
}

func toMeshData(m *mesh.Mesh) MeshData {
	flat := m.FlatShaded()
	return MeshData{
		Vertices:  flat.Vertices,
		Normals:   flat.Normals,
		Indices:   flat.Indices,
		Name:      flat.Name,
		Triangles: flat.TriangleCount(),
	}
}

// ExtrudeProfile sweeps a named profile from the current sketch into the
// solid shown in surface mode and voxelized for the solver.
func (a *App) ExtrudeProfile(name string, length float64, axisName string) (MeshData, error) {
	axis, err := extrude.ParseAxis(axisName)
	if err != nil {
		return MeshData{}, err
	}

	a.mu.Lock()
	sk := a.sketch
	a.mu.Unlock()
	if sk == nil {
		return MeshData{}, fmt.Errorf("no sketch evaluated yet")
	}
	p := sk.Find(name)
	if p == nil {
		return MeshData{}, fmt.Errorf("no profile named %q", name)
	}

	m, err := extrude.Extrude(p, length, axis)
	if err != nil {
		return MeshData{}, err
	}
	m.Name = name

	a.mu.Lock()
	a.solid = m
	a.grid = nil // stale against the new geometry
	a.mu.Unlock()
	a.renderer.SetSolid(m)

	return toMeshData(m), nil
}

// GridInfo reports the outcome of BuildGrid.
type GridInfo struct {
	Nx            int     `json:"nx"`
	Ny            int     `json:"ny"`
	Nz            int     `json:"nz"`
	SolidFraction float64 `json:"solidFraction"`
	Warning       string  `json:"warning,omitempty"`
}

// MaxCellBudget caps the voxel grid regardless of the requested budget.
const MaxCellBudget = 64_000_000

// BuildGrid voxelizes the current solid at a resolution chosen from the
// aspect ratio and cell budget. Budget overruns clamp with a warning;
// a solid that encloses no cells warns as well. Neither is fatal.
func (a *App) BuildGrid(ax, ay, az float64, budget int) (GridInfo, error) {
	a.mu.Lock()
	solid := a.solid
	a.mu.Unlock()
	if solid == nil {
		return GridInfo{}, fmt.Errorf("no solid extruded yet")
	}

	var info GridInfo
	nx, ny, nz, err := voxel.Resolution(v3.Vec{X: ax, Y: ay, Z: az}, budget, MaxCellBudget)
	if err != nil {
		var be *voxel.BudgetError
		if !errors.As(err, &be) {
			return GridInfo{}, err
		}
		info.Warning = be.Error()
		a.emit(eventVoxelWarn, be.Error())
	}

	g := voxel.Voxelize(solid, nx, ny, nz)
	if g.SolidCount() == 0 {
		info.Warning = "geometry encloses no grid cells"
		a.emit(eventVoxelWarn, info.Warning)
	}

	a.mu.Lock()
	a.grid = g
	a.mu.Unlock()

	info.Nx, info.Ny, info.Nz = g.Nx, g.Ny, g.Nz
	info.SolidFraction = g.SolidFraction()
	return info, nil
}

// ---------------------------------------------------------------------------
// Simulation bindings
// ---------------------------------------------------------------------------

// StartOptions carries the user-set run parameters.
type StartOptions struct {
	SolverPath    string  `json:"solverPath"`
	Dir           string  `json:"dir"`
	Viscosity     float64 `json:"viscosity"`
	Velocity      float64 `json:"velocity"`
	PumpForce     float64 `json:"pumpForce"`
	Steps         int     `json:"steps"`
	SnapshotEvery int     `json:"snapshotEvery"`
}

// StartSimulation launches the solver on the current grid and begins
// watching its snapshot output. Solver exit and crash are reported through
// events, never synchronously.
func (a *App) StartSimulation(opts StartOptions) error {
	a.mu.Lock()
	solid, grid, running := a.solid, a.grid, a.run != nil && a.run.Alive()
	a.mu.Unlock()
	if running {
		return fmt.Errorf("a simulation is already running")
	}
	if solid == nil || grid == nil {
		return fmt.Errorf("no voxelized geometry to simulate")
	}

	cfg := sim.DefaultConfig()
	cfg.SolverPath = opts.SolverPath
	if opts.Viscosity > 0 {
		cfg.Viscosity = opts.Viscosity
	}
	if opts.Velocity > 0 {
		cfg.Velocity = opts.Velocity
	}
	if opts.PumpForce > 0 {
		cfg.PumpForce = opts.PumpForce
	}
	if opts.Steps > 0 {
		cfg.Steps = opts.Steps
	}
	if opts.SnapshotEvery > 0 {
		cfg.SnapshotEvery = opts.SnapshotEvery
	}

	run, err := a.bridge.Start(context.Background(), opts.Dir, cfg, grid, solid)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	watcher := &snapshot.Watcher{
		Dir:   run.SnapshotDir(),
		Want:  [3]int{grid.Nx, grid.Ny, grid.Nz},
		Store: a.store,
		OnPublish: func(s *snapshot.Snapshot) {
			a.emit(eventSnapshot, s.Source)
		},
	}
	go watcher.Run(watchCtx)

	// Crash and exit reporting runs in the background; the render loop
	// must never block on solver state.
	go func() {
		err := run.Wait(context.Background())
		cancel()
		if err != nil {
			log.Printf("solver run failed: %v", err)
			a.emit(eventSolverCrash, err.Error())
			return
		}
		a.emit(eventSolverExit)
	}()

	a.mu.Lock()
	a.run = run
	a.watchCancel = cancel
	a.mu.Unlock()
	return nil
}

// currentRun returns the active run, if any.
func (a *App) currentRun() *sim.Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.run
}

// PauseSimulation raises the solver's pause flag.
func (a *App) PauseSimulation() error {
	run := a.currentRun()
	if run == nil {
		return fmt.Errorf("no simulation running")
	}
	return run.Pause()
}

// ResumeSimulation clears the solver's pause flag.
func (a *App) ResumeSimulation() error {
	run := a.currentRun()
	if run == nil {
		return fmt.Errorf("no simulation running")
	}
	return run.Resume()
}

// RequestExport asks the solver for an out-of-band snapshot. Best effort:
// repeated requests coalesce.
func (a *App) RequestExport() error {
	run := a.currentRun()
	if run == nil {
		return fmt.Errorf("no simulation running")
	}
	return run.RequestExport()
}

// StopSimulation terminates the solver, kills it after the grace period,
// and stops the snapshot watcher. Safe to call with nothing running.
func (a *App) StopSimulation() error {
	a.mu.Lock()
	run, cancel := a.run, a.watchCancel
	a.run, a.watchCancel = nil, nil
	a.mu.Unlock()
	if run == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return run.Stop()
}

// ResetRun stops any running solver and clears the loaded snapshot, taking
// the session back to geometry editing.
func (a *App) ResetRun() error {
	err := a.StopSimulation()
	a.store.Publish(nil)
	return err
}

// StatusData reports the solver state for the frontend.
type StatusData struct {
	Running bool   `json:"running"`
	Paused  bool   `json:"paused"`
	Dir     string `json:"dir,omitempty"`
}

// SimulationStatus polls the current run state.
func (a *App) SimulationStatus() StatusData {
	run := a.currentRun()
	if run == nil {
		return StatusData{}
	}
	return StatusData{Running: run.Alive(), Paused: run.Paused(), Dir: run.Dir()}
}

// ---------------------------------------------------------------------------
// Render bindings
// ---------------------------------------------------------------------------

// SetRenderMode switches between surface, slice and volume modes.
func (a *App) SetRenderMode(mode string) error {
	m, err := render.ParseMode(mode)
	if err != nil {
		return err
	}
	a.state.SetMode(m)
	return nil
}

// SetSlicePlane positions and toggles one slice plane (axis 0=X, 1=Y, 2=Z).
func (a *App) SetSlicePlane(axis int, frac float64, on bool) error {
	return a.state.SetSlice(axis, frac, on)
}

// SetTransferFunction sets the volume opacity scale and threshold.
func (a *App) SetTransferFunction(opacity, threshold float64) {
	a.state.SetTransfer(opacity, threshold)
}

// RenderFrame composes one frame for the active mode from the latest
// snapshot. Never blocks on solver progress.
func (a *App) RenderFrame() *render.Frame {
	return a.renderer.Frame()
}

// ---------------------------------------------------------------------------
// Mesh import/export bindings
// ---------------------------------------------------------------------------

// ExportMesh writes the current solid as an STL file.
func (a *App) ExportMesh(path string) error {
	a.mu.Lock()
	solid := a.solid
	a.mu.Unlock()
	if solid == nil {
		return fmt.Errorf("no solid to export")
	}
	return solid.SaveSTL(path)
}

// LoadMesh imports an STL file as the current solid, bypassing the sketch
// pipeline.
func (a *App) LoadMesh(path string) (MeshData, error) {
	m, err := mesh.LoadSTL(path)
	if err != nil {
		return MeshData{}, err
	}
	a.mu.Lock()
	a.solid = m
	a.grid = nil
	a.mu.Unlock()
	a.renderer.SetSolid(m)
	return toMeshData(m), nil
}
