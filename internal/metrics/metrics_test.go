package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCommand("/website", "ok", 200*time.Millisecond)
	m.ObserveCommand("/website", "ok", time.Second)
	m.ObserveUpstream("zones", 403)
	m.ObserveOwnershipLookup("rdap", false)
	m.IncrementAuditPublishErrors()
	m.IncrementSlackEvents("message")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("/website", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("zones", "403")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OwnershipLookups.WithLabelValues("rdap", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditPublishErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlackEventsTotal.WithLabelValues("message")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveCommand("/cf", "ok", time.Second)
		m.ObserveUpstream("graphql", 200)
		m.ObserveOwnershipLookup("cymru", true)
		m.IncrementAuditPublishErrors()
		m.IncrementSlackEvents("message")
	})
}
