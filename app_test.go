package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flumelab/flume/pkg/snapshot"
)

func writeFakeSolver(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "solver.sh")
	script := "#!/bin/sh\ntrap 'exit 0' TERM\nwhile :; do sleep 0.05; done\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// sketchToGrid drives the geometry half of the pipeline.
func sketchToGrid(t *testing.T, a *App) {
	t.Helper()
	res := a.EvaluateSketch(`(defprofile "duct" (rect 1 1))`)
	if len(res.Errors) > 0 {
		t.Fatalf("EvaluateSketch() errors = %v", res.Errors)
	}
	if _, err := a.ExtrudeProfile("duct", 1, "z"); err != nil {
		t.Fatalf("ExtrudeProfile() error = %v", err)
	}
	if _, err := a.BuildGrid(1, 1, 1, 64); err != nil {
		t.Fatalf("BuildGrid() error = %v", err)
	}
}

func startFakeRun(t *testing.T, a *App) {
	t.Helper()
	dir := t.TempDir()
	sketchToGrid(t, a)
	err := a.StartSimulation(StartOptions{
		SolverPath: writeFakeSolver(t, dir),
		Dir:        dir,
	})
	if err != nil {
		t.Fatalf("StartSimulation() error = %v", err)
	}
	t.Cleanup(func() { a.StopSimulation() })
}

// --- Sketch evaluation ---

func TestEvaluateSketch(t *testing.T) {
	a := NewApp()
	res := a.EvaluateSketch(`(defprofile "duct" (rect 2 1))`)
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(res.Profiles) != 1 || res.Profiles[0].Name != "duct" {
		t.Fatalf("profiles = %+v", res.Profiles)
	}
	if res.Profiles[0].Area != 2 {
		t.Errorf("area = %g, want 2", res.Profiles[0].Area)
	}
	if len(res.Profiles[0].Points) != 8 {
		t.Errorf("points = %v, want 4 xy pairs", res.Profiles[0].Points)
	}
}

func TestEvaluateSketchReportsErrors(t *testing.T) {
	a := NewApp()
	res := a.EvaluateSketch(`(defprofile "bad" (polygon (point 0 0) (point 1 1) (point 1 0) (point 0 1)))`)
	if len(res.Errors) == 0 {
		t.Fatal("self-intersecting profile produced no errors")
	}
	if !strings.Contains(res.Errors[0].Message, "self-intersecting") {
		t.Errorf("error = %q", res.Errors[0].Message)
	}
	if len(res.Profiles) != 0 {
		t.Errorf("profiles = %+v, want none on error", res.Profiles)
	}
}

// --- Geometry pipeline ---

func TestExtrudeProfile(t *testing.T) {
	a := NewApp()
	a.EvaluateSketch(`(defprofile "duct" (rect 1 1))`)

	md, err := a.ExtrudeProfile("duct", 1, "z")
	if err != nil {
		t.Fatalf("ExtrudeProfile() error = %v", err)
	}
	if md.Triangles != 12 {
		t.Errorf("triangles = %d, want 12", md.Triangles)
	}
	if len(md.Normals) != len(md.Vertices) {
		t.Error("payload missing normals")
	}

	if _, err := a.ExtrudeProfile("missing", 1, "z"); err == nil {
		t.Error("unknown profile should fail")
	}
	if _, err := a.ExtrudeProfile("duct", 1, "q"); err == nil {
		t.Error("bad axis should fail")
	}
}

func TestExtrudeBeforeSketch(t *testing.T) {
	a := NewApp()
	if _, err := a.ExtrudeProfile("duct", 1, "z"); err == nil {
		t.Error("extrude without sketch should fail")
	}
}

func TestBuildGrid(t *testing.T) {
	a := NewApp()
	a.EvaluateSketch(`(defprofile "duct" (rect 1 1))`)
	if _, err := a.ExtrudeProfile("duct", 1, "z"); err != nil {
		t.Fatal(err)
	}

	info, err := a.BuildGrid(1, 1, 1, 1000)
	if err != nil {
		t.Fatalf("BuildGrid() error = %v", err)
	}
	if info.Nx != 10 || info.Ny != 10 || info.Nz != 10 {
		t.Errorf("dims = (%d,%d,%d), want (10,10,10)", info.Nx, info.Ny, info.Nz)
	}
	if info.SolidFraction <= 0 {
		t.Error("solid fraction should be positive for a unit cube")
	}
	if info.Warning != "" {
		t.Errorf("unexpected warning %q", info.Warning)
	}
}

func TestBuildGridClampWarns(t *testing.T) {
	a := NewApp()
	a.EvaluateSketch(`(defprofile "duct" (rect 1 1))`)
	if _, err := a.ExtrudeProfile("duct", 1, "z"); err != nil {
		t.Fatal(err)
	}
	info, err := a.BuildGrid(1, 1, 1, MaxCellBudget*2)
	if err != nil {
		t.Fatalf("BuildGrid() error = %v", err)
	}
	if info.Warning == "" {
		t.Error("budget overrun should warn")
	}
	if info.Nx*info.Ny*info.Nz > MaxCellBudget {
		t.Error("clamped grid still exceeds the cap")
	}
}

func TestBuildGridBeforeExtrude(t *testing.T) {
	a := NewApp()
	if _, err := a.BuildGrid(1, 1, 1, 1000); err == nil {
		t.Error("grid without solid should fail")
	}
}

// --- Simulation control ---

func TestSimulationLifecycle(t *testing.T) {
	a := NewApp()
	startFakeRun(t, a)

	st := a.SimulationStatus()
	if !st.Running || st.Paused {
		t.Fatalf("status after start = %+v", st)
	}

	if err := a.PauseSimulation(); err != nil {
		t.Fatalf("PauseSimulation() error = %v", err)
	}
	if !a.SimulationStatus().Paused {
		t.Error("status not paused after Pause")
	}
	if err := a.ResumeSimulation(); err != nil {
		t.Fatalf("ResumeSimulation() error = %v", err)
	}
	if err := a.RequestExport(); err != nil {
		t.Fatalf("RequestExport() error = %v", err)
	}

	if err := a.StopSimulation(); err != nil {
		t.Fatalf("StopSimulation() error = %v", err)
	}
	if a.SimulationStatus().Running {
		t.Error("still running after stop")
	}
}

func TestStartRequiresGrid(t *testing.T) {
	a := NewApp()
	err := a.StartSimulation(StartOptions{SolverPath: "/bin/true", Dir: t.TempDir()})
	if err == nil {
		t.Error("start without grid should fail")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	a := NewApp()
	startFakeRun(t, a)
	err := a.StartSimulation(StartOptions{SolverPath: "/bin/true", Dir: t.TempDir()})
	if err == nil {
		t.Error("second start while running should fail")
	}
}

// --- Snapshot ingestion through the app ---

func smallVTK(nx, ny, nz int) []byte {
	var b strings.Builder
	n := nx * ny * nz
	fmt.Fprintf(&b, "# vtk DataFile Version 3.0\nfields\nASCII\nDATASET STRUCTURED_POINTS\n")
	fmt.Fprintf(&b, "DIMENSIONS %d %d %d\nORIGIN 0 0 0\nSPACING 1 1 1\nPOINT_DATA %d\n", nx, ny, nz, n)
	b.WriteString("SCALARS rho float 1\nLOOKUP_TABLE default\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d ", i)
	}
	b.WriteString("\nVECTORS u float\n")
	for i := 0; i < 3*n; i++ {
		b.WriteString("0 ")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

func TestSnapshotFlowsToRenderer(t *testing.T) {
	a := NewApp()
	startFakeRun(t, a)
	if err := a.SetRenderMode("slice"); err != nil {
		t.Fatal(err)
	}

	// Publish a snapshot the way the solver does.
	snapDir := filepath.Join(a.SimulationStatus().Dir, "snapshots")
	tmp := filepath.Join(snapDir, "fields_000100.vtk.tmp")
	if err := os.WriteFile(tmp, smallVTK(4, 4, 4), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(snapDir, "fields_000100.vtk")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f := a.RenderFrame(); len(f.Slices) > 0 {
			p := f.Slices[0]
			if p.W != 4 || p.H != 4 {
				t.Fatalf("plane = %+v", p)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("snapshot never reached the renderer")
}

func TestResetRunClearsSnapshot(t *testing.T) {
	a := NewApp()
	startFakeRun(t, a)
	a.store.Publish(&snapshot.Snapshot{
		Nx: 1, Ny: 1, Nz: 1,
		Density:  []float32{1},
		Velocity: make([]float32, 3),
	})
	if err := a.ResetRun(); err != nil {
		t.Fatalf("ResetRun() error = %v", err)
	}
	if a.store.Latest() != nil {
		t.Error("snapshot survived reset")
	}
	if a.SimulationStatus().Running {
		t.Error("solver survived reset")
	}
}
