package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// Timeout is the connection timeout.
	Timeout time.Duration

	// FlushTimeout bounds how long Close waits for buffered messages.
	FlushTimeout time.Duration
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:          nats.DefaultURL,
		Name:         "tracelens",
		Timeout:      5 * time.Second,
		FlushTimeout: 2 * time.Second,
	}
}

// NATSPublisher implements Publisher over a core NATS connection.
type NATSPublisher struct {
	conn         *nats.Conn
	flushTimeout time.Duration
}

// NewNATSPublisher connects to the server in cfg. A scan is a one-shot run,
// so the connection never reconnects.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, flushTimeout: cfg.FlushTimeout}, nil
}

// Publish sends data to subject.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.FlushTimeout(p.flushTimeout)
	p.conn.Close()
	if err != nil {
		return fmt.Errorf("flush NATS connection: %w", err)
	}
	return nil
}
