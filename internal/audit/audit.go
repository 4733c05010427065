package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/sgerhart/webby/internal/metrics"
)

const (
	// DefaultSubject is where audit records go when none is configured
	DefaultSubject = "webby.commands"
	// ConnectTimeout bounds the initial NATS dial
	ConnectTimeout = 10 * time.Second
	// ReconnectWait is the pause between reconnect attempts
	ReconnectWait = 5 * time.Second
	// PublishTimeout bounds a single publish
	PublishTimeout = 5 * time.Second
)

// Record describes one handled command
type Record struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	ChannelID  string    `json:"channel_id"`
	UserID     string    `json:"user_id,omitempty"`
	Argument   string    `json:"argument,omitempty"`
	Outcome    string    `json:"outcome"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRecord creates a record with a fresh ID, stamped now
func NewRecord(command, channelID, userID, argument, outcome string, elapsed time.Duration) Record {
	return Record{
		ID:         uuid.New().String(),
		Command:    command,
		ChannelID:  channelID,
		UserID:     userID,
		Argument:   argument,
		Outcome:    outcome,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

// Publisher ships audit records somewhere
type Publisher interface {
	Publish(ctx context.Context, record Record) error
	Close() error
}

// NopPublisher discards every record
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(ctx context.Context, record Record) error { return nil }

// Close does nothing
func (NopPublisher) Close() error { return nil }

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	PublishMsg(msg *nats.Msg) error
	IsConnected() bool
	Close()
}

// NATSPublisher publishes audit records as JSON to a NATS subject
type NATSPublisher struct {
	conn    conn
	subject string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewNATSPublisher connects to natsURL and publishes to subject
func NewNATSPublisher(natsURL, subject string, m *metrics.Metrics, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit")

	nc, err := nats.Connect(natsURL,
		nats.Name("webby"),
		nats.Timeout(ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	logger.Info("NATS audit publisher initialized", "url", natsURL, "subject", subject)
	return newNATSPublisher(nc, subject, m, logger), nil
}

func newNATSPublisher(c conn, subject string, m *metrics.Metrics, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		conn:    c,
		subject: subject,
		metrics: m,
		logger:  logger,
	}
}

// Publish sends record to the audit subject
func (p *NATSPublisher) Publish(ctx context.Context, record Record) error {
	if err := p.publish(ctx, record); err != nil {
		p.metrics.IncrementAuditPublishErrors()
		p.logger.Error("Failed to publish audit record", "record_id", record.ID, "error", err)
		return err
	}

	p.logger.Debug("Audit record published", "record_id", record.ID, "subject", p.subject)
	return nil
}

func (p *NATSPublisher) publish(ctx context.Context, record Record) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS publisher not ready")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("x-record-id", record.ID)
	msg.Header.Set("x-command", record.Command)
	msg.Header.Set("x-outcome", record.Outcome)
	msg.Header.Set("x-timestamp", strconv.FormatInt(record.Timestamp.UnixMilli(), 10))

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish timeout: %w", ctx.Err())
	default:
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}

// IsReady reports whether the NATS connection is up
func (p *NATSPublisher) IsReady() bool {
	return p.conn.IsConnected()
}

// Close closes the NATS connection
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	p.logger.Info("NATS audit publisher closed")
	return nil
}
