package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// ScanIDKey is the context key for scan IDs.
const ScanIDKey = contextKey("scan-id")

// NewScanID generates an identifier for one scan run.
func NewScanID() string {
	return uuid.New().String()
}

// WithScanID stores a scan ID in the context.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ScanIDKey, id)
}

// ScanIDFrom extracts the scan ID from the context.
// Returns empty string if not found.
func ScanIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ScanIDKey).(string); ok {
		return id
	}
	return ""
}
