// Package publish announces completed scans on a message broker so other
// systems can react to them without polling the history.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/tracelens/internal/history"
)

// Publisher sends raw payloads to a subject.
type Publisher interface {
	// Publish sends data to subject. Delivery is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Notifier publishes scan records on a fixed subject.
type Notifier struct {
	pub     Publisher
	subject string
}

// NewNotifier creates a notifier publishing to subject.
func NewNotifier(pub Publisher, subject string) *Notifier {
	return &Notifier{pub: pub, subject: subject}
}

// Subject returns the subject records are published to.
func (n *Notifier) Subject() string {
	return n.subject
}

// ScanCompleted publishes r as JSON.
func (n *Notifier) ScanCompleted(ctx context.Context, r history.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := n.pub.Publish(ctx, n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (n *Notifier) Close() error {
	return n.pub.Close()
}
