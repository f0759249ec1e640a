// Package position serves tool-target queries for the two arms. The query
// targets a fixed task per selector, independent of the session's selected
// task, and degrades to an empty reply on any failure.
package position

import (
	"context"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/bus"
	"github.com/robonet-io/armbridge/core/infra/logging"
	"github.com/robonet-io/armbridge/core/infra/metrics"
)

// Service reads tool targets from one controller.
type Service struct {
	ctrl      controller.Controller
	metrics   metrics.BridgeMetrics
	announcer *bus.Announcer
}

// New constructs a Service. announcer may be nil.
func New(ctrl controller.Controller, m metrics.BridgeMetrics, announcer *bus.Announcer) *Service {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{ctrl: ctrl, metrics: m, announcer: announcer}
}

// Query returns the serialized tool target for the task. Any retrieval
// failure is reported to the operator and yields the empty string: the
// protocol does not distinguish failure from "no position".
func (s *Service) Query(ctx context.Context, task controller.Task) string {
	target, err := s.ctrl.Target(ctx, task)
	if err != nil {
		s.metrics.IncPosition(string(task), "error")
		logging.Error("position", "target query failed", "task", task, "error", err)
		s.announcer.Notify("position", "position query failed",
			map[string]any{"task": string(task), "error": err.Error()})
		return ""
	}
	s.metrics.IncPosition(string(task), "ok")
	return target.String()
}
