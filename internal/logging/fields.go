package logging

import "log/slog"

// Common field names for consistent logging across the scan pipeline.
const (
	FieldScanID   = "scan_id"
	FieldFile     = "file"
	FieldEventID  = "event_id"
	FieldReason   = "reason"
	FieldEvents   = "events"
	FieldSkipped  = "skipped"
	FieldBytes    = "bytes"
	FieldDuration = "duration_ms"
	FieldError    = "error"
	FieldScore    = "score"
	FieldLabel    = "label"
)

// File returns a slog attribute for an input file path.
func File(path string) slog.Attr {
	return slog.String(FieldFile, path)
}

// EventID returns a slog attribute for a Windows event id.
func EventID(id int) slog.Attr {
	return slog.Int(FieldEventID, id)
}

// Reason returns a slog attribute explaining why something was skipped.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Events returns a slog attribute for an event count.
func Events(n int) slog.Attr {
	return slog.Int(FieldEvents, n)
}

// Skipped returns a slog attribute for a skipped candidate count.
func Skipped(n int) slog.Attr {
	return slog.Int(FieldSkipped, n)
}

// Bytes returns a slog attribute for a byte count.
func Bytes(n int64) slog.Attr {
	return slog.Int64(FieldBytes, n)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Score returns a slog attribute for a risk score.
func Score(n int) slog.Attr {
	return slog.Int(FieldScore, n)
}

// Label returns a slog attribute for a risk label.
func Label(label string) slog.Attr {
	return slog.String(FieldLabel, label)
}
