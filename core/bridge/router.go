// Package bridge is the protocol surface between the block editor and the
// controller: a websocket channel carrying single-string messages, and the
// router that classifies each message and drives the downstream services.
package bridge

import (
	"context"
	"sync"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/execution"
	"github.com/robonet-io/armbridge/core/infra/logging"
	"github.com/robonet-io/armbridge/core/infra/metrics"
	"github.com/robonet-io/armbridge/core/loader"
	"github.com/robonet-io/armbridge/core/position"
)

// CommandKind is the closed classification of an inbound message.
type CommandKind int

const (
	KindStartExec CommandKind = iota
	KindStopExec
	KindUpdateLeftPosition
	KindUpdateRightPosition
	KindSelectLeft
	KindSelectRight
	// KindRawSource is the fallback: anything outside the fixed vocabulary
	// is module source for the currently selected task.
	KindRawSource
)

// The wire vocabulary, matched case-sensitively and exactly.
const (
	msgStartExec           = "START_EXEC"
	msgStopExec            = "STOP_EXEC"
	msgUpdateLeftPosition  = "UPDATE_LEFT_ARM_POSITION"
	msgUpdateRightPosition = "UPDATE_RIGHT_ARM_POSITION"
	msgSelectLeft          = "T_ROB_L"
	msgSelectRight         = "T_ROB_R"
)

// Command is a classified inbound message. Raw always holds the original
// text; for KindRawSource it is the module source itself.
type Command struct {
	Kind CommandKind
	Raw  string
}

// Classify maps a message onto the command vocabulary. No trimming, no
// case folding: the editor sends these strings verbatim.
func Classify(msg string) Command {
	switch msg {
	case msgStartExec:
		return Command{Kind: KindStartExec, Raw: msg}
	case msgStopExec:
		return Command{Kind: KindStopExec, Raw: msg}
	case msgUpdateLeftPosition:
		return Command{Kind: KindUpdateLeftPosition, Raw: msg}
	case msgUpdateRightPosition:
		return Command{Kind: KindUpdateRightPosition, Raw: msg}
	case msgSelectLeft:
		return Command{Kind: KindSelectLeft, Raw: msg}
	case msgSelectRight:
		return Command{Kind: KindSelectRight, Raw: msg}
	default:
		return Command{Kind: KindRawSource, Raw: msg}
	}
}

// Label returns the metrics label for a command kind.
func (k CommandKind) Label() string {
	switch k {
	case KindStartExec:
		return msgStartExec
	case KindStopExec:
		return msgStopExec
	case KindUpdateLeftPosition:
		return msgUpdateLeftPosition
	case KindUpdateRightPosition:
		return msgUpdateRightPosition
	case KindSelectLeft:
		return msgSelectLeft
	case KindSelectRight:
		return msgSelectRight
	default:
		return "RAW_SOURCE"
	}
}

// Session holds the per-bridge mutable state: the currently selected task.
// Written only by the router, under its dispatch lock.
type Session struct {
	task controller.Task
}

// NewSession starts with the left arm selected.
func NewSession() *Session {
	return &Session{task: controller.TaskLeft}
}

// Task returns the currently selected task.
func (s *Session) Task() controller.Task {
	return s.task
}

// Router dispatches inbound messages one at a time. The mutex serializes
// the websocket read loop and the optional NATS command subscription onto
// a single logical dispatch thread; each message runs to completion before
// the next is accepted.
type Router struct {
	mu       sync.Mutex
	session  *Session
	loader   *loader.Loader
	exec     *execution.Service
	position *position.Service
	metrics  metrics.BridgeMetrics
}

// NewRouter constructs a Router over the three services.
func NewRouter(l *loader.Loader, e *execution.Service, p *position.Service, m metrics.BridgeMetrics) *Router {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Router{
		session:  NewSession(),
		loader:   l,
		exec:     e,
		position: p,
		metrics:  m,
	}
}

// SelectedTask reports the session's current task.
func (r *Router) SelectedTask() controller.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Task()
}

// Handle processes one inbound message to completion and returns the
// protocol reply, if any. Only position queries produce a reply. Failures
// in downstream services are reported there and never propagate: the
// bridge answers the next message regardless.
func (r *Router) Handle(ctx context.Context, msg string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd := Classify(msg)
	r.metrics.IncCommand(cmd.Kind.Label())

	switch cmd.Kind {
	case KindStartExec:
		_ = r.exec.Start(ctx)
	case KindStopExec:
		_ = r.exec.Stop(ctx)
	case KindUpdateLeftPosition:
		return r.position.Query(ctx, controller.TaskLeft), true
	case KindUpdateRightPosition:
		return r.position.Query(ctx, controller.TaskRight), true
	case KindSelectLeft:
		r.session.task = controller.TaskLeft
		logging.Info("router", "task selected", "task", controller.TaskLeft)
	case KindSelectRight:
		r.session.task = controller.TaskRight
		logging.Info("router", "task selected", "task", controller.TaskRight)
	case KindRawSource:
		_ = r.loader.LoadModule(ctx, r.session.Task(), cmd.Raw)
	}
	return "", false
}
