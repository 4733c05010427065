package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/webby/internal/metrics"
)

// mockConn records published messages
type mockConn struct {
	connected bool
	err       error
	published []*nats.Msg
	closed    bool
}

func (m *mockConn) PublishMsg(msg *nats.Msg) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, msg)
	return nil
}

func (m *mockConn) IsConnected() bool { return m.connected }

func (m *mockConn) Close() { m.closed = true }

func TestNewRecord(t *testing.T) {
	r := NewRecord("website", "C123", "U456", "example.com", "ok", 1500*time.Millisecond)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "website", r.Command)
	assert.Equal(t, "C123", r.ChannelID)
	assert.Equal(t, "U456", r.UserID)
	assert.Equal(t, "example.com", r.Argument)
	assert.Equal(t, "ok", r.Outcome)
	assert.Equal(t, int64(1500), r.DurationMs)
	assert.WithinDuration(t, time.Now(), r.Timestamp, time.Minute)

	other := NewRecord("website", "C123", "U456", "example.com", "ok", 0)
	assert.NotEqual(t, r.ID, other.ID)
}

func TestNATSPublisher_Publish(t *testing.T) {
	c := &mockConn{connected: true}
	p := newNATSPublisher(c, "", nil, nil)

	record := NewRecord("ray", "C1", "U1", "783dd7324ebfbb62", "not_found", time.Second)
	require.NoError(t, p.Publish(context.Background(), record))
	require.Len(t, c.published, 1)

	msg := c.published[0]
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, "ray", msg.Header.Get("x-command"))
	assert.Equal(t, "not_found", msg.Header.Get("x-outcome"))
	assert.Equal(t, record.ID, msg.Header.Get("x-record-id"))

	var decoded Record
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, record.ID, decoded.ID)
	assert.Equal(t, "783dd7324ebfbb62", decoded.Argument)
}

func TestNATSPublisher_Errors(t *testing.T) {
	tests := []struct {
		name string
		conn *mockConn
		ctx  func() context.Context
	}{
		{
			name: "not connected",
			conn: &mockConn{connected: false},
			ctx:  context.Background,
		},
		{
			name: "publish fails",
			conn: &mockConn{connected: true, err: errors.New("nats: connection closed")},
			ctx:  context.Background,
		},
		{
			name: "context cancelled",
			conn: &mockConn{connected: true},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewMetrics(prometheus.NewRegistry())
			p := newNATSPublisher(tt.conn, "audit.test", m, nil)

			err := p.Publish(tt.ctx(), NewRecord("website", "C1", "", "", "ok", 0))
			assert.Error(t, err)
			assert.Empty(t, tt.conn.published)
			assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditPublishErrors))
		})
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	c := &mockConn{connected: true}
	p := newNATSPublisher(c, "audit.test", nil, nil)

	assert.True(t, p.IsReady())
	require.NoError(t, p.Close())
	assert.True(t, c.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Record{}))
	assert.NoError(t, p.Close())
}
