package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the webby service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CommandsTotal      *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
	UpstreamRequests   *prometheus.CounterVec
	OwnershipLookups   *prometheus.CounterVec
	AuditPublishErrors prometheus.Counter
	SlackEventsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webby_commands_total",
			Help: "Total number of slash commands handled",
		}, []string{"command", "outcome"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webby_command_duration_seconds",
			Help:    "Time spent handling a slash command",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"command"}),
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webby_upstream_requests_total",
			Help: "Total number of provider API requests by endpoint and status",
		}, []string{"endpoint", "status"}),
		OwnershipLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webby_ownership_lookups_total",
			Help: "Total number of IP ownership lookups by backend and result",
		}, []string{"backend", "result"}),
		AuditPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "webby_audit_publish_errors_total",
			Help: "Total number of audit records that failed to publish",
		}),
		SlackEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webby_slack_events_total",
			Help: "Total number of Slack Events API deliveries by type",
		}, []string{"type"}),
	}
}

// ObserveCommand records one handled command
func (m *Metrics) ObserveCommand(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveUpstream records one provider API response; status 0 means the
// request never got a response
func (m *Metrics) ObserveUpstream(endpoint string, status int) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveOwnershipLookup records one ownership lookup
func (m *Metrics) ObserveOwnershipLookup(backend string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.OwnershipLookups.WithLabelValues(backend, result).Inc()
}

// IncrementAuditPublishErrors increments the audit publish error counter
func (m *Metrics) IncrementAuditPublishErrors() {
	if m == nil {
		return
	}
	m.AuditPublishErrors.Inc()
}

// IncrementSlackEvents counts one Events API delivery
func (m *Metrics) IncrementSlackEvents(eventType string) {
	if m == nil {
		return
	}
	m.SlackEventsTotal.WithLabelValues(eventType).Inc()
}
