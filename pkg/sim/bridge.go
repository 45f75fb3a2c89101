// Package sim owns the lifecycle of the external solver process and the
// narrow control channel to it. The solver is an opaque long-running
// executable: it reads a YAML config and an STL geometry from its run
// directory, writes snapshot files into a subdirectory, and polls two flag
// files at its own iteration cadence: a pause flag (present = paused) and a
// one-shot export flag it removes once handled. All control is therefore
// advisory and eventually effective, never synchronous.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/flumelab/flume/pkg/mesh"
	"github.com/flumelab/flume/pkg/voxel"
)

const (
	geometryFile = "geometry.stl"
	configFile   = "run.yaml"
	solverLog    = "solver.log"

	// SnapshotSubdir is where the solver publishes field files, relative
	// to the run directory.
	SnapshotSubdir = "snapshots"

	pauseFlag  = "pause.flag"
	exportFlag = "export.flag"
)

// LaunchError reports a solver that could not be started or that exited
// nonzero before the startup check elapsed.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ProcessCrashedError reports a solver that exited unexpectedly mid-run.
type ProcessCrashedError struct {
	ExitCode int
}

func (e *ProcessCrashedError) Error() string {
	return fmt.Sprintf("solver crashed with exit code %d", e.ExitCode)
}

// Bridge launches solver runs. The zero value is usable.
type Bridge struct {
	// Grace is how long Stop waits after the termination request before
	// killing the process. Zero means DefaultGrace.
	Grace time.Duration

	// StartupCheck is how long Start watches the new process for an
	// immediate nonzero exit. Zero means DefaultStartupCheck.
	StartupCheck time.Duration
}

const (
	DefaultGrace        = 5 * time.Second
	DefaultStartupCheck = 200 * time.Millisecond
)

// Start prepares the run directory (geometry artifact, config, snapshot
// subdirectory), launches the solver and returns a handle to the running
// process. The grid fixes the config's dimensions; the mesh is centered
// before export, which is what the solver expects. Launch failures surface
// as *LaunchError.
func (b *Bridge) Start(ctx context.Context, dir string, cfg Config, g *voxel.Grid, m *mesh.Mesh) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Nx, cfg.Ny, cfg.Nz = g.Nx, g.Ny, g.Nz
	cfg.Geometry = geometryFile
	cfg.SnapshotDir = SnapshotSubdir

	if err := os.MkdirAll(filepath.Join(dir, SnapshotSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	// Center a copy; the caller's mesh keeps its authoring coordinates.
	solid := &mesh.Mesh{
		Vertices: append([]float32(nil), m.Vertices...),
		Indices:  m.Indices,
		Name:     m.Name,
	}
	solid.Center()
	if err := solid.SaveSTL(filepath.Join(dir, geometryFile)); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if err := cfg.Save(filepath.Join(dir, configFile)); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	logFile, err := os.Create(filepath.Join(dir, solverLog))
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	grace := b.Grace
	if grace == 0 {
		grace = DefaultGrace
	}
	cmd := exec.CommandContext(ctx, cfg.SolverPath, configFile)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, &LaunchError{Path: cfg.SolverPath, Err: err}
	}
	log.Printf("solver started: pid=%d dir=%s grid=%dx%dx%d", cmd.Process.Pid, dir, cfg.Nx, cfg.Ny, cfg.Nz)

	r := &Run{
		dir:   dir,
		cmd:   cmd,
		grace: grace,
		done:  make(chan struct{}),
	}
	go func() {
		r.exitErr = cmd.Wait()
		logFile.Close()
		close(r.done)
	}()

	check := b.StartupCheck
	if check == 0 {
		check = DefaultStartupCheck
	}
	select {
	case <-r.done:
		if r.exitErr != nil {
			return nil, &LaunchError{Path: cfg.SolverPath, Err: r.exitErr}
		}
	case <-time.After(check):
	}
	return r, nil
}

// Run is a handle to one launched solver process.
type Run struct {
	dir      string
	cmd      *exec.Cmd
	grace    time.Duration
	done     chan struct{}
	exitErr  error // written once, before done is closed
	stopping atomic.Bool
}

// Dir returns the run directory.
func (r *Run) Dir() string { return r.dir }

// SnapshotDir returns the directory the solver publishes snapshots into.
func (r *Run) SnapshotDir() string { return filepath.Join(r.dir, SnapshotSubdir) }

// Alive reports whether the solver process is still running.
func (r *Run) Alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Pause raises the pause flag. The solver observes it at its next iteration
// boundary; there is no bound on when that happens.
func (r *Run) Pause() error {
	tmp, err := os.CreateTemp(r.dir, pauseFlag+".*")
	if err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), filepath.Join(r.dir, pauseFlag)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("pause: %w", err)
	}
	return nil
}

// Resume clears the pause flag. Resuming a run that was never paused is a
// no-op.
func (r *Run) Resume() error {
	err := os.Remove(filepath.Join(r.dir, pauseFlag))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}

// Paused reports whether the pause flag is currently raised.
func (r *Run) Paused() bool {
	_, err := os.Stat(filepath.Join(r.dir, pauseFlag))
	return err == nil
}

// RequestExport raises the one-shot export flag, asking the solver to write
// an out-of-band snapshot. At most once per pending request: if a previous
// request has not been consumed yet, the new one coalesces into it.
func (r *Run) RequestExport() error {
	f, err := os.OpenFile(filepath.Join(r.dir, exportFlag), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil // coalesced with the pending request
		}
		return fmt.Errorf("request export: %w", err)
	}
	return f.Close()
}

// Stop requests graceful termination and escalates to a kill after the
// grace period. Safe to call at any time, including on an already-exited
// run. The snapshot publish contract (temp name + rename) is what keeps a
// mid-write termination from leaving a corrupt file visible.
func (r *Run) Stop() error {
	if !r.Alive() {
		return nil
	}
	r.stopping.Store(true)
	if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	select {
	case <-r.done:
	case <-time.After(r.grace):
		log.Printf("solver pid=%d ignored termination, killing", r.cmd.Process.Pid)
		r.cmd.Process.Kill()
		<-r.done
	}
	return nil
}

// Wait blocks until the solver exits or the context is canceled. A clean
// exit and an exit caused by Stop both return nil; an unexpected nonzero
// exit returns *ProcessCrashedError.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
	}
	if r.exitErr == nil || r.stopping.Load() {
		return nil
	}
	var exit *exec.ExitError
	if errors.As(r.exitErr, &exit) {
		return &ProcessCrashedError{ExitCode: exit.ExitCode()}
	}
	return r.exitErr
}
