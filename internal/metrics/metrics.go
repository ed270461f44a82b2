// Package metrics exposes Prometheus instrumentation for the panel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "debate_panel"

// Tick results.
const (
	TickOK        = "ok"
	TickError     = "error"
	TickSkipped   = "skipped"
	TickDiscarded = "discarded"
)

// Command results.
const (
	CommandOK         = "ok"
	CommandValidation = "validation_error"
	CommandRemote     = "remote_error"
	CommandNoop       = "noop"
)

var phases = []string{"stopped", "running", "paused", "completed"}

// Metrics holds the panel collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	syncTicks *prometheus.CounterVec
	commands  *prometheus.CounterVec
	phase     *prometheus.GaugeVec
	gatewayUp prometheus.Gauge
}

// New registers the panel collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		syncTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_ticks_total",
				Help:      "Synchronization ticks by result",
			},
			[]string{"result"},
		),
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Lifecycle commands by name and result",
			},
			[]string{"command", "result"},
		),
		phase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "conversation_phase",
				Help:      "1 for the current conversation phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		gatewayUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gateway_up",
				Help:      "Whether the conversation backend answered its last health probe",
			},
		),
	}
}

// ObserveTick counts one sync tick outcome.
func (m *Metrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.syncTicks.WithLabelValues(result).Inc()
}

// ObserveCommand counts one lifecycle command outcome.
func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}

// SetPhase marks phase as the current one.
func (m *Metrics) SetPhase(phase string) {
	if m == nil {
		return
	}
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// SetGatewayUp records the result of a backend health probe.
func (m *Metrics) SetGatewayUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.gatewayUp.Set(1)
		return
	}
	m.gatewayUp.Set(0)
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
