package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BridgeMetrics defines counters for the controller bridge.
type BridgeMetrics interface {
	IncCommand(kind string)
	IncLoad(kind, status string)
	IncGrantDenied(operation string)
	IncTransfer(op string)
	IncPosition(task, status string)
	IncExecution(op, status string)
}

// Noop implements BridgeMetrics without emitting anything.
type Noop struct{}

func (Noop) IncCommand(string)           {}
func (Noop) IncLoad(string, string)      {}
func (Noop) IncGrantDenied(string)       {}
func (Noop) IncTransfer(string)          {}
func (Noop) IncPosition(string, string)  {}
func (Noop) IncExecution(string, string) {}

// Prom implements BridgeMetrics backed by Prometheus counters.
type Prom struct {
	commands    *prometheus.CounterVec
	loads       *prometheus.CounterVec
	grantDenied *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	positions   *prometheus.CounterVec
	executions  *prometheus.CounterVec
	once        sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_received_total",
			Help:      "Inbound editor commands by kind",
		}, []string{"kind"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Program/module loads by kind and status",
		}, []string{"kind", "status"}),
		grantDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_denied_total",
			Help:      "Privileged operations denied by the authorization system",
		}, []string{"operation"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_transfers_total",
			Help:      "Remote file system operations by op",
		}, []string{"op"}),
		positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_queries_total",
			Help:      "Position queries by task and status",
		}, []string{"task", "status"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Execution control operations by op and status",
		}, []string{"op", "status"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.commands, p.loads, p.grantDenied, p.transfers, p.positions, p.executions)
	})
}

func (p *Prom) IncCommand(kind string) {
	p.commands.WithLabelValues(kind).Inc()
}

func (p *Prom) IncLoad(kind, status string) {
	p.loads.WithLabelValues(kind, status).Inc()
}

func (p *Prom) IncGrantDenied(operation string) {
	p.grantDenied.WithLabelValues(operation).Inc()
}

func (p *Prom) IncTransfer(op string) {
	p.transfers.WithLabelValues(op).Inc()
}

func (p *Prom) IncPosition(task, status string) {
	p.positions.WithLabelValues(task, status).Inc()
}

func (p *Prom) IncExecution(op, status string) {
	p.executions.WithLabelValues(op, status).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
