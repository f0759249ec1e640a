// Package execution controls program execution on the controller. Start is
// gated: automatic mode first, then mastership and the execute grant. Stop
// is deliberately ungated so halting the robot can never be blocked.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/bus"
	"github.com/robonet-io/armbridge/core/infra/logging"
	"github.com/robonet-io/armbridge/core/infra/metrics"
	"github.com/robonet-io/armbridge/core/mastership"
)

// autoModeTimeout bounds the wait for the automatic-mode switch. The only
// explicit timeout on any controller call.
const autoModeTimeout = 5000 * time.Millisecond

var errExecuteDenied = errors.New("execute grant denied")

// Service drives execution start/stop for one controller.
type Service struct {
	ctrl      controller.Controller
	guard     *mastership.Guard
	metrics   metrics.BridgeMetrics
	announcer *bus.Announcer
}

// New constructs a Service. announcer may be nil.
func New(ctrl controller.Controller, guard *mastership.Guard, m metrics.BridgeMetrics, announcer *bus.Announcer) *Service {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{ctrl: ctrl, guard: guard, metrics: m, announcer: announcer}
}

// Start switches the controller to automatic mode (bounded wait), then
// starts the task runner under mastership if the execute grant is held.
// A mode-switch timeout aborts before any mastership is requested.
func (s *Service) Start(ctx context.Context) error {
	if err := s.ctrl.SetMode(ctx, controller.ModeAuto, autoModeTimeout); err != nil {
		s.metrics.IncExecution("start", "error")
		logging.Error("execution", "automatic mode switch failed", "error", err)
		s.announcer.Notify("mode-switch", "could not switch controller to automatic mode",
			map[string]any{"error": err.Error()})
		return err
	}

	err := s.guard.With(ctx, func(ctx context.Context) error {
		grants, err := s.ctrl.Grants(ctx)
		if err != nil {
			return fmt.Errorf("query grants: %w", err)
		}
		if !grants.Has(controller.GrantExecute) {
			return errExecuteDenied
		}
		if err := s.ctrl.Start(ctx); err != nil {
			return fmt.Errorf("start execution: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		s.metrics.IncExecution("start", "ok")
		logging.Info("execution", "execution started")
		return nil
	case errors.Is(err, errExecuteDenied):
		s.metrics.IncGrantDenied("execute")
		logging.Warn("execution", "start denied by grants")
		return nil
	default:
		s.metrics.IncExecution("start", "error")
		logging.Error("execution", "start failed", "error", err)
		s.announcer.Notify("controller", "execution start failed",
			map[string]any{"error": err.Error()})
		return err
	}
}

// Stop halts execution unconditionally: no mastership, no grant check.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.ctrl.Stop(ctx); err != nil {
		s.metrics.IncExecution("stop", "error")
		logging.Error("execution", "stop failed", "error", err)
		s.announcer.Notify("controller", "execution stop failed",
			map[string]any{"error": err.Error()})
		return err
	}
	s.metrics.IncExecution("stop", "ok")
	logging.Info("execution", "execution stopped")
	return nil
}
