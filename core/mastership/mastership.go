// Package mastership provides the scoped acquisition bracket around every
// privileged controller mutation: acquire, run, release on all exit paths.
package mastership

import (
	"context"
	"fmt"
	"time"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/leases"
	"github.com/robonet-io/armbridge/core/infra/logging"
)

// LeaseResource names the controller mastership record in the ledger.
const LeaseResource = "controller:mastership"

// Guard brackets controller mutations in a mastership scope. The lease
// ledger entry is advisory bookkeeping; the controller's own mastership is
// the exclusion primitive.
type Guard struct {
	ctrl   controller.Controller
	ledger leases.Store
	owner  string
	ttl    time.Duration
}

// NewGuard constructs a guard for the given controller. ledger may be nil
// when no ledger is configured; owner identifies this bridge instance.
func NewGuard(ctrl controller.Controller, ledger leases.Store, owner string, ttl time.Duration) *Guard {
	return &Guard{ctrl: ctrl, ledger: ledger, owner: owner, ttl: ttl}
}

// releaseTimeout bounds the release call once it is detached from the
// caller's context.
const releaseTimeout = 10 * time.Second

// With acquires mastership, runs fn, and releases unconditionally on every
// exit path including panics. Errors from fn propagate after release. The
// release runs on a context detached from the caller's cancellation: a
// client hanging up mid-scope must not strand mastership on the controller.
func (g *Guard) With(ctx context.Context, fn func(context.Context) error) error {
	if err := g.ctrl.RequestMastership(ctx); err != nil {
		return fmt.Errorf("request mastership: %w", err)
	}
	g.record(ctx)
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := g.ctrl.ReleaseMastership(releaseCtx); err != nil {
			logging.Error("mastership", "release failed", "error", err)
		}
		g.clear(releaseCtx)
	}()
	return fn(ctx)
}

// Holder reports the current ledger entry, or nil when free or no ledger
// is configured.
func (g *Guard) Holder(ctx context.Context) *leases.Lease {
	if g == nil || g.ledger == nil {
		return nil
	}
	lease, err := g.ledger.Get(ctx, LeaseResource)
	if err != nil {
		logging.Warn("mastership", "ledger read failed", "error", err)
		return nil
	}
	return lease
}

func (g *Guard) record(ctx context.Context) {
	if g.ledger == nil {
		return
	}
	if _, ok, err := g.ledger.Acquire(ctx, LeaseResource, g.owner, g.ttl); err != nil {
		logging.Warn("mastership", "ledger acquire failed", "error", err)
	} else if !ok {
		// The controller granted mastership while the ledger says someone
		// else holds it: stale record or a foreign client, worth a log line.
		logging.Warn("mastership", "ledger disagrees with controller", "owner", g.owner)
	}
}

func (g *Guard) clear(ctx context.Context) {
	if g.ledger == nil {
		return
	}
	if _, err := g.ledger.Release(ctx, LeaseResource, g.owner); err != nil {
		logging.Warn("mastership", "ledger release failed", "error", err)
	}
}
