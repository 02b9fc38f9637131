// Package ingest normalizes arbitrary raw input into an OTLP-shaped
// envelope. Missing top-level signal containers are repaired with
// valid-but-empty structures rather than causing failure; that leniency
// is deliberate policy.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/telhawk-systems/otelflow/internal/otlp"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage name used in errors and telemetry events.
const StageName = "ingestion"

const schemaVersion = "1.0"

// Config controls normalization.
type Config struct {
	// RequiredFields are the top-level signal keys repaired when missing.
	RequiredFields []string

	// Source tags the envelope metadata.
	Source string
}

// DefaultConfig returns the documented ingestion defaults.
func DefaultConfig() Config {
	return Config{
		RequiredFields: []string{otlp.KeyResourceSpans},
		Source:         "otlp",
	}
}

// Stage normalizes raw payloads into envelopes.
type Stage struct {
	cfg Config
}

// New creates an ingestion stage. Zero-value config fields fall back to
// defaults.
func New(cfg Config) *Stage {
	if len(cfg.RequiredFields) == 0 {
		cfg.RequiredFields = []string{otlp.KeyResourceSpans}
	}
	if cfg.Source == "" {
		cfg.Source = "otlp"
	}
	return &Stage{cfg: cfg}
}

// Run normalizes the payload by input type, repairs missing signal
// containers, and counts records. It fails only on a non-recoverable
// fault during normalization.
func (s *Stage) Run(ctx context.Context, raw any) (*model.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageName, model.KindIngestionMalformed, err)
	}

	data, format, size, err := s.normalize(raw)
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindIngestionMalformed, err)
	}

	for _, field := range s.cfg.RequiredFields {
		if _, ok := data[field]; !ok {
			data[field] = otlp.EmptyResourceContainer(field)
		}
	}

	if size == 0 {
		if b, merr := json.Marshal(data); merr == nil {
			size = len(b)
		}
	}

	env := &model.Envelope{
		Data: data,
		Metadata: model.EnvelopeMetadata{
			Source:        s.cfg.Source,
			Format:        format,
			SchemaVersion: schemaVersion,
		},
		Stats: model.EnvelopeStats{
			Records:   countRecords(data),
			SizeBytes: size,
		},
		TraceID: correlationID(data),
	}
	return env, nil
}

// correlationID reuses a trace_id already present in the payload so the
// key stays stable across re-ingestion; otherwise one is generated.
func correlationID(data map[string]any) string {
	if id := otlp.AsString(data["trace_id"]); id != "" {
		return id
	}
	return uuid.New().String()
}

// normalize coerces the payload by type: bytes attempt a JSON decode with
// an empty-skeleton fallback, maps pass through, lists are wrapped as a
// batch, and anything else becomes a single-item batch.
func (s *Stage) normalize(raw any) (map[string]any, string, int, error) {
	switch v := raw.(type) {
	case nil:
		return emptySkeleton(), "empty", 0, nil
	case []byte:
		return s.decodeBytes(v)
	case string:
		return s.decodeBytes([]byte(v))
	case json.RawMessage:
		return s.decodeBytes([]byte(v))
	case map[string]any:
		if v == nil {
			return emptySkeleton(), "map", 0, nil
		}
		return v, "map", 0, nil
	case []any:
		return map[string]any{"batch": v}, "list", 0, nil
	default:
		return map[string]any{"batch": []any{v}}, "single", 0, nil
	}
}

func (s *Stage) decodeBytes(b []byte) (map[string]any, string, int, error) {
	if len(b) == 0 {
		return emptySkeleton(), "empty", 0, nil
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		// Best-effort fallback: undecodable binary degrades to an empty
		// OTLP skeleton instead of failing the execution.
		return emptySkeleton(), "binary_fallback", len(b), nil
	}
	switch v := decoded.(type) {
	case map[string]any:
		return v, "json", len(b), nil
	case []any:
		return map[string]any{"batch": v}, "json_list", len(b), nil
	default:
		return map[string]any{"batch": []any{v}}, "json_scalar", len(b), nil
	}
}

func emptySkeleton() map[string]any {
	return map[string]any{}
}

// countRecords walks resource -> scope -> record arrays for every known
// signal container.
func countRecords(data map[string]any) int {
	total := 0
	for _, key := range []string{otlp.KeyResourceSpans, otlp.KeyResourceMetrics, otlp.KeyResourceLogs} {
		scopeKey := otlp.ScopeKey(key)
		recordKey := otlp.RecordKey(key)
		for _, resourceEntry := range otlp.AsSlice(data[key]) {
			rm := otlp.AsMap(resourceEntry)
			if rm == nil {
				continue
			}
			for _, scopeEntry := range otlp.AsSlice(rm[scopeKey]) {
				sm := otlp.AsMap(scopeEntry)
				if sm == nil {
					continue
				}
				total += len(otlp.AsSlice(sm[recordKey]))
			}
		}
	}
	return total
}
