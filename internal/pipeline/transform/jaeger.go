// Package transform converts a sampled set into the three backend wire
// shapes. Each transformer reads the same immutable input and never
// touches another transformer's output.
package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/telhawk-systems/otelflow/internal/otlp"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage names used in errors and telemetry events.
const (
	StageName              = "transform"
	StageNameJaeger        = "transform.jaeger"
	StageNamePrometheus    = "transform.prometheus"
	StageNameElasticsearch = "transform.elasticsearch"
)

// spanKindNames maps OTLP span kind integers to the Jaeger tag value.
var spanKindNames = map[int]string{
	0: "unspecified",
	1: "internal",
	2: "server",
	3: "client",
	4: "producer",
	5: "consumer",
}

// statusNames maps OTLP status codes to Jaeger status strings.
var statusNames = map[int]string{
	model.StatusCodeUnset: "UNSET",
	model.StatusCodeOK:    "OK",
	model.StatusCodeError: "ERROR",
}

// Jaeger converts sampled traces into Jaeger wire shape.
func Jaeger(ctx context.Context, set *model.SampledSet) (*model.JaegerBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageNameJaeger, model.KindTransformFailure, err)
	}

	batch := &model.JaegerBatch{Data: make([]model.JaegerTrace, 0, len(set.Traces))}
	for _, trace := range set.Traces {
		jt := model.JaegerTrace{
			TraceID:   NormalizeTraceID(trace.TraceID),
			Spans:     make([]model.JaegerSpan, 0, len(trace.Spans)),
			Processes: map[string]model.JaegerProcess{},
		}
		for _, span := range trace.Spans {
			processID := ProcessID(span.Service)
			if _, ok := jt.Processes[processID]; !ok {
				jt.Processes[processID] = model.JaegerProcess{ServiceName: span.Service}
			}
			jt.Spans = append(jt.Spans, convertSpan(span, processID))
		}
		batch.Data = append(batch.Data, jt)
	}
	batch.Total = len(batch.Data)
	return batch, nil
}

func convertSpan(span *model.Span, processID string) model.JaegerSpan {
	js := model.JaegerSpan{
		TraceID:       NormalizeTraceID(span.TraceID),
		SpanID:        NormalizeSpanID(span.SpanID),
		OperationName: span.Name,
		StartTime:     span.StartTime / 1000, // nanos to micros
		Duration:      span.Duration / 1000,
		ProcessID:     processID,
	}
	if span.ParentSpanID != "" {
		js.ParentSpanID = NormalizeSpanID(span.ParentSpanID)
	}

	js.Tags = append(js.Tags, model.JaegerTag{Key: "span.kind", Type: "string", Value: spanKindName(span.Kind)})
	js.Tags = append(js.Tags, model.JaegerTag{Key: "otel.status_code", Type: "string", Value: statusName(span.StatusCode)})
	if span.StatusCode == model.StatusCodeError {
		js.Tags = append(js.Tags, model.JaegerTag{Key: "error", Type: "bool", Value: true})
	}
	js.Tags = append(js.Tags, attributeTags(span.Attributes)...)
	js.Logs = eventLogs(span.Events)
	return js
}

func spanKindName(kind int) string {
	if name, ok := spanKindNames[kind]; ok {
		return name
	}
	return spanKindNames[0]
}

func statusName(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return statusNames[model.StatusCodeUnset]
}

// attributeTags converts decoded OTLP attributes into typed Jaeger tags.
func attributeTags(attrs map[string]any) []model.JaegerTag {
	if len(attrs) == 0 {
		return nil
	}
	tags := make([]model.JaegerTag, 0, len(attrs))
	for key, value := range attrs {
		tags = append(tags, typedTag(key, value))
	}
	return tags
}

func typedTag(key string, value any) model.JaegerTag {
	switch v := value.(type) {
	case string:
		return model.JaegerTag{Key: key, Type: "string", Value: v}
	case int64:
		return model.JaegerTag{Key: key, Type: "int64", Value: v}
	case float64:
		return model.JaegerTag{Key: key, Type: "float64", Value: v}
	case bool:
		return model.JaegerTag{Key: key, Type: "bool", Value: v}
	case []byte:
		return model.JaegerTag{Key: key, Type: "binary", Value: v}
	default:
		return model.JaegerTag{Key: key, Type: "string", Value: fmt.Sprintf("%v", v)}
	}
}

// eventLogs converts OTLP span events into Jaeger logs, prepending the
// event name as an "event" field.
func eventLogs(rawEvents []any) []model.JaegerLog {
	if len(rawEvents) == 0 {
		return nil
	}
	logs := make([]model.JaegerLog, 0, len(rawEvents))
	for _, raw := range rawEvents {
		ev, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		log := model.JaegerLog{
			Timestamp: otlp.AsUint64(ev["timeUnixNano"]) / 1000,
			Fields: []model.JaegerTag{
				{Key: "event", Type: "string", Value: otlp.AsString(ev["name"])},
			},
		}
		for key, value := range otlp.Attributes(otlp.AsSlice(ev["attributes"])) {
			log.Fields = append(log.Fields, typedTag(key, value))
		}
		logs = append(logs, log)
	}
	return logs
}

// NormalizeTraceID returns a 32 hex character trace id: 32-char hex input
// is unchanged, 16-char hex is left-padded with zeros, anything else is
// hashed to a deterministic 32-char value.
func NormalizeTraceID(id string) string {
	return normalizeHexID(id, 32)
}

// NormalizeSpanID returns a 16 hex character span id under the same rules.
func NormalizeSpanID(id string) string {
	return normalizeHexID(id, 16)
}

func normalizeHexID(id string, width int) string {
	if isHex(id) {
		if len(id) == width {
			return id
		}
		if len(id) == width/2 {
			return fmt.Sprintf("%0*s", width, id)
		}
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:width]
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ProcessID derives a stable Jaeger process id from the service name.
func ProcessID(service string) string {
	sum := sha256.Sum256([]byte(service))
	return "p-" + hex.EncodeToString(sum[:])[:8]
}
