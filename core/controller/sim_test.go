package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSimMastershipExclusive(t *testing.T) {
	sim := NewSim()
	ctx := context.Background()

	if err := sim.RequestMastership(ctx); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := sim.RequestMastership(ctx); !errors.Is(err, ErrMastershipHeld) {
		t.Fatalf("expected ErrMastershipHeld, got %v", err)
	}
	if err := sim.ReleaseMastership(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := sim.RequestMastership(ctx); err != nil {
		t.Fatalf("re-request after release: %v", err)
	}
}

func TestSimLoadRequiresMastership(t *testing.T) {
	sim := NewSim()
	ctx := context.Background()

	if err := sim.LoadProgram(ctx, TaskLeft, "/staging/p.pgf"); !errors.Is(err, ErrNoMastership) {
		t.Fatalf("expected ErrNoMastership, got %v", err)
	}
	if err := sim.RequestMastership(ctx); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := sim.LoadProgram(ctx, TaskLeft, "/staging/p.pgf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if p, ok := sim.Program(TaskLeft); !ok || p != "/staging/p.pgf" {
		t.Fatalf("program not recorded: %q ok=%v", p, ok)
	}
}

func TestSimStartNeedsAutoMode(t *testing.T) {
	sim := NewSim()
	ctx := context.Background()

	if err := sim.RequestMastership(ctx); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := sim.Start(ctx); err == nil {
		t.Fatalf("expected start to fail in manual mode")
	}
	if err := sim.SetMode(ctx, ModeAuto, 5*time.Second); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := sim.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !sim.Running() {
		t.Fatalf("expected running")
	}
	if err := sim.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sim.Running() {
		t.Fatalf("expected stopped")
	}
}

func TestSimStopNeedsNothing(t *testing.T) {
	sim := NewSim()
	sim.SetGrants(NewGrantSet())
	if err := sim.Stop(context.Background()); err != nil {
		t.Fatalf("stop without mastership or grants: %v", err)
	}
	if sim.StopCalls() != 1 {
		t.Fatalf("expected one stop call")
	}
}

func TestSimFileSystemOnlyWhenPhysical(t *testing.T) {
	sim := NewSim()
	if fs := sim.FileSystem(); fs != nil {
		t.Fatalf("simulated controller must expose no file system")
	}
	sim.SetKind(KindPhysical)
	if fs := sim.FileSystem(); fs == nil {
		t.Fatalf("physical controller must expose a file system")
	}
}

func TestSimFSPutRequiresDir(t *testing.T) {
	sim := NewSim()
	sim.SetKind(KindPhysical)
	fs := sim.FileSystem()
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "T_ROB_L.mod")
	if err := os.WriteFile(local, []byte("MODULE m1\nENDMODULE\n"), 0o644); err != nil {
		t.Fatalf("write local: %v", err)
	}

	if err := fs.Put(ctx, local, "armbridge/T_ROB_L.mod"); err == nil {
		t.Fatalf("expected put to fail before EnsureDir")
	}
	if err := fs.EnsureDir(ctx, "armbridge"); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	if err := fs.Put(ctx, local, "armbridge/T_ROB_L.mod"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ok := sim.RemoteFile("armbridge/T_ROB_L.mod")
	if !ok || string(data) != "MODULE m1\nENDMODULE\n" {
		t.Fatalf("remote content mismatch: ok=%v data=%q", ok, data)
	}

	// Removing a missing file is not an error.
	if err := fs.Remove(ctx, "armbridge/absent.mod"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestTargetString(t *testing.T) {
	tgt := Target{Trans: [3]float64{100.5, -20, 0}, Rot: [4]float64{1, 0, 0, 0}}
	want := "[[100.5,-20,0],[1,0,0,0]]"
	if got := tgt.String(); got != want {
		t.Fatalf("serialized form %q, want %q", got, want)
	}
}

func TestGrantSet(t *testing.T) {
	set := NewGrantSet(GrantLoadProgram, GrantExecute)
	if !set.Has(GrantLoadProgram) || !set.Has(GrantExecute) {
		t.Fatalf("missing grants: %v", set)
	}
	if set.Has(GrantAdminSystem) {
		t.Fatalf("unexpected grant: %v", set)
	}
}
