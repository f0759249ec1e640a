package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/leases"
	"github.com/robonet-io/armbridge/core/mastership"
	"github.com/robonet-io/armbridge/core/staging"
)

func newLoader(t *testing.T, sim *controller.Sim) *Loader {
	t.Helper()
	store := staging.New(t.TempDir(), "BlockProgram")
	guard := mastership.NewGuard(sim, leases.NewMemoryStore(), "bridge-test", 5*time.Second)
	return New(sim, store, guard, "armbridge", nil, nil)
}

func TestSimulatedProgramLoadSkipsTransfer(t *testing.T) {
	sim := controller.NewSim()
	l := newLoader(t, sim)

	if err := l.LoadProgram(context.Background(), controller.TaskLeft); err != nil {
		t.Fatalf("load program: %v", err)
	}
	loaded, ok := sim.Program(controller.TaskLeft)
	if !ok {
		t.Fatalf("program not loaded")
	}
	// Simulated controllers load straight from the local staging path.
	if loaded == "" || len(sim.RemoteList("armbridge")) != 0 {
		t.Fatalf("unexpected remote transfer: path=%q remote=%v", loaded, sim.RemoteList("armbridge"))
	}
	if sim.MastershipHeld() {
		t.Fatalf("mastership leaked")
	}
}

func TestModuleLoadCarriesExactSource(t *testing.T) {
	sim := controller.NewSim()
	l := newLoader(t, sim)

	source := "MODULE m1\n  MoveJ p0;\nENDMODULE"
	if err := l.LoadModule(context.Background(), controller.TaskLeft, source); err != nil {
		t.Fatalf("load module: %v", err)
	}
	if _, ok := sim.Module(controller.TaskLeft); !ok {
		t.Fatalf("module not loaded")
	}
}

func TestGrantDenialIsSilentAndReleases(t *testing.T) {
	sim := controller.NewSim()
	// Only the narrow load grant: still denied, the administration grant
	// is required as well.
	sim.SetGrants(controller.NewGrantSet(controller.GrantLoadProgram))
	l := newLoader(t, sim)

	if err := l.LoadProgram(context.Background(), controller.TaskLeft); err != nil {
		t.Fatalf("denied load must be a silent no-op, got %v", err)
	}
	if sim.LoadCalls() != 0 {
		t.Fatalf("load call reached controller despite denial")
	}
	if _, ok := sim.Program(controller.TaskLeft); ok {
		t.Fatalf("program loaded despite denial")
	}
	if sim.MastershipHeld() {
		t.Fatalf("mastership not released after denial")
	}
}

func TestPhysicalLoadSyncsRemoteFile(t *testing.T) {
	sim := controller.NewSim()
	sim.SetKind(controller.KindPhysical)
	l := newLoader(t, sim)
	ctx := context.Background()

	source := "MODULE m1\nENDMODULE"
	if err := l.LoadModule(ctx, controller.TaskLeft, source); err != nil {
		t.Fatalf("load module: %v", err)
	}
	if !sim.RemoteDirExists("armbridge") {
		t.Fatalf("remote dir not created")
	}
	data, ok := sim.RemoteFile("armbridge/T_ROB_L.mod")
	if !ok || string(data) != source {
		t.Fatalf("remote content mismatch: ok=%v data=%q", ok, data)
	}
	if loaded, _ := sim.Module(controller.TaskLeft); loaded != "armbridge/T_ROB_L.mod" {
		t.Fatalf("module loaded from %q, want remote path", loaded)
	}
}

func TestRemoteSyncIdempotent(t *testing.T) {
	sim := controller.NewSim()
	sim.SetKind(controller.KindPhysical)
	l := newLoader(t, sim)
	ctx := context.Background()

	if err := l.LoadModule(ctx, controller.TaskRight, "MODULE v1\nENDMODULE"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := l.LoadModule(ctx, controller.TaskRight, "MODULE v2\nENDMODULE"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	files := sim.RemoteList("armbridge")
	if len(files) != 1 {
		t.Fatalf("expected exactly one remote file, got %v", files)
	}
	data, _ := sim.RemoteFile("armbridge/T_ROB_R.mod")
	if string(data) != "MODULE v2\nENDMODULE" {
		t.Fatalf("remote file not latest content: %q", data)
	}
}

func TestPhysicalProgramLoadDeletesPrior(t *testing.T) {
	sim := controller.NewSim()
	sim.SetKind(controller.KindPhysical)
	l := newLoader(t, sim)
	ctx := context.Background()

	if err := l.LoadProgram(ctx, controller.TaskLeft); err != nil {
		t.Fatalf("first program load: %v", err)
	}
	if err := l.LoadProgram(ctx, controller.TaskLeft); err != nil {
		t.Fatalf("second program load: %v", err)
	}
	if _, ok := sim.Program(controller.TaskLeft); !ok {
		t.Fatalf("program missing after replace-load")
	}
}

func TestControllerFailureIsNonFatal(t *testing.T) {
	sim := controller.NewSim()
	boom := errors.New("sdk cast failure")
	sim.FailLoads(boom)
	l := newLoader(t, sim)

	err := l.LoadModule(context.Background(), controller.TaskLeft, "MODULE m\nENDMODULE")
	if !errors.Is(err, boom) {
		t.Fatalf("expected sdk error to surface, got %v", err)
	}
	if sim.MastershipHeld() {
		t.Fatalf("mastership not released after sdk failure")
	}
}
