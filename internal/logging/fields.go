package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldExecutionID = "execution_id"
	FieldStage       = "stage"
	FieldBackend     = "backend"
	FieldService     = "service"
	FieldRecords     = "records"
	FieldBytes       = "bytes"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldStatus      = "status"
	FieldTraceID     = "trace_id"
)

// Stage returns a slog attribute for the pipeline stage name.
func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}

// Backend returns a slog attribute for the delivery backend.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// Records returns a slog attribute for a record count.
func Records(n int) slog.Attr {
	return slog.Int(FieldRecords, n)
}

// Bytes returns a slog attribute for a byte count.
func Bytes(n int) slog.Attr {
	return slog.Int(FieldBytes, n)
}

// DurationMS returns a slog attribute for a duration in milliseconds.
func DurationMS(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
