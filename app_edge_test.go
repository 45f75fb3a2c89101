package main

import "testing"

// Edge cases around control calls arriving in the wrong session state.

func TestControlsWithoutRun(t *testing.T) {
	a := NewApp()
	if err := a.PauseSimulation(); err == nil {
		t.Error("pause without run should fail")
	}
	if err := a.ResumeSimulation(); err == nil {
		t.Error("resume without run should fail")
	}
	if err := a.RequestExport(); err == nil {
		t.Error("export without run should fail")
	}
	// Stop and reset are cleanup paths and must be safe anytime.
	if err := a.StopSimulation(); err != nil {
		t.Errorf("StopSimulation() without run = %v", err)
	}
	if err := a.ResetRun(); err != nil {
		t.Errorf("ResetRun() without run = %v", err)
	}
}

func TestStopTwice(t *testing.T) {
	a := NewApp()
	startFakeRun(t, a)
	if err := a.StopSimulation(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := a.StopSimulation(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestSetRenderMode(t *testing.T) {
	a := NewApp()
	for _, m := range []string{"surface", "slice", "volume"} {
		if err := a.SetRenderMode(m); err != nil {
			t.Errorf("SetRenderMode(%q) error = %v", m, err)
		}
		if got := a.RenderFrame().Mode; got != m {
			t.Errorf("frame mode = %q, want %q", got, m)
		}
	}
	if err := a.SetRenderMode("wireframe"); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestRenderFrameBeforeAnything(t *testing.T) {
	a := NewApp()
	// No sketch, no solid, no snapshot: every mode still renders.
	f := a.RenderFrame()
	if f.Mode != "surface" || f.Surface != nil {
		t.Errorf("empty surface frame = %+v", f)
	}
	a.SetRenderMode("volume")
	f = a.RenderFrame()
	if f.Volume == nil {
		t.Error("volume placeholder missing")
	}
	a.SetRenderMode("slice")
	if f = a.RenderFrame(); len(f.Slices) != 0 {
		t.Error("slice frame should be empty without a snapshot")
	}
}

func TestExportMeshWithoutSolid(t *testing.T) {
	a := NewApp()
	if err := a.ExportMesh("/tmp/nothing.stl"); err == nil {
		t.Error("export without solid should fail")
	}
}

func TestExportThenLoadMesh(t *testing.T) {
	a := NewApp()
	a.EvaluateSketch(`(defprofile "duct" (rect 1 1))`)
	if _, err := a.ExtrudeProfile("duct", 1, "z"); err != nil {
		t.Fatal(err)
	}
	path := t.TempDir() + "/duct.stl"
	if err := a.ExportMesh(path); err != nil {
		t.Fatalf("ExportMesh() error = %v", err)
	}

	md, err := a.LoadMesh(path)
	if err != nil {
		t.Fatalf("LoadMesh() error = %v", err)
	}
	if md.Triangles != 12 {
		t.Errorf("reloaded triangles = %d, want 12", md.Triangles)
	}
}
