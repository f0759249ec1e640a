package mastership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/leases"
)

func newGuard(sim *controller.Sim, ledger leases.Store) *Guard {
	return NewGuard(sim, ledger, "bridge-test", 5*time.Second)
}

func TestWithReleasesOnSuccess(t *testing.T) {
	sim := controller.NewSim()
	ledger := leases.NewMemoryStore()
	guard := newGuard(sim, ledger)
	ctx := context.Background()

	ran := false
	err := guard.With(ctx, func(ctx context.Context) error {
		ran = true
		if !sim.MastershipHeld() {
			t.Fatalf("mastership not held inside scope")
		}
		if lease := guard.Holder(ctx); lease == nil || lease.Owner != "bridge-test" {
			t.Fatalf("ledger missing holder inside scope: %v", lease)
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("with: err=%v ran=%v", err, ran)
	}
	if sim.MastershipHeld() {
		t.Fatalf("mastership leaked after scope")
	}
	if lease := guard.Holder(ctx); lease != nil {
		t.Fatalf("ledger entry leaked: %v", lease)
	}
}

func TestWithReleasesOnError(t *testing.T) {
	sim := controller.NewSim()
	guard := newGuard(sim, leases.NewMemoryStore())

	boom := errors.New("load exploded")
	err := guard.With(context.Background(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if sim.MastershipHeld() {
		t.Fatalf("mastership leaked after error")
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	sim := controller.NewSim()
	guard := newGuard(sim, leases.NewMemoryStore())

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = guard.With(context.Background(), func(context.Context) error {
			panic("handler bug")
		})
	}()
	if sim.MastershipHeld() {
		t.Fatalf("mastership leaked after panic")
	}
}

// ctxAwareController fails release on a dead context, the way a remote
// controller client does.
type ctxAwareController struct {
	*controller.Sim
}

func (c *ctxAwareController) ReleaseMastership(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Sim.ReleaseMastership(ctx)
}

func TestWithReleasesAfterCallerCancel(t *testing.T) {
	sim := controller.NewSim()
	ledger := leases.NewMemoryStore()
	guard := NewGuard(&ctxAwareController{sim}, ledger, "bridge-test", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := guard.With(ctx, func(ctx context.Context) error {
		// Client hangs up mid-scope.
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from fn, got %v", err)
	}
	if sim.MastershipHeld() {
		t.Fatalf("mastership leaked: release ran on the canceled caller context")
	}
	if lease := guard.Holder(context.Background()); lease != nil {
		t.Fatalf("ledger entry leaked after cancel: %v", lease)
	}
}

func TestWithAcquireFailure(t *testing.T) {
	sim := controller.NewSim()
	guard := newGuard(sim, nil)
	ctx := context.Background()

	if err := sim.RequestMastership(ctx); err != nil {
		t.Fatalf("pre-hold: %v", err)
	}
	ran := false
	err := guard.With(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, controller.ErrMastershipHeld) {
		t.Fatalf("expected ErrMastershipHeld, got %v", err)
	}
	if ran {
		t.Fatalf("fn must not run when acquisition fails")
	}
}

func TestNilLedgerIsFine(t *testing.T) {
	sim := controller.NewSim()
	guard := newGuard(sim, nil)
	if err := guard.With(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("with: %v", err)
	}
	if guard.Holder(context.Background()) != nil {
		t.Fatalf("nil ledger must report no holder")
	}
}
