// Package otlp provides helpers for walking OTLP-JSON shaped payloads.
// Payloads are handled as map[string]any trees because the wire shape is
// JSON; binary protobuf decoding is out of scope.
package otlp

import (
	"strconv"
)

// Top-level signal container keys and their nested scope/record keys.
const (
	KeyResourceSpans   = "resourceSpans"
	KeyResourceMetrics = "resourceMetrics"
	KeyResourceLogs    = "resourceLogs"

	KeyScopeSpans   = "scopeSpans"
	KeyScopeMetrics = "scopeMetrics"
	KeyScopeLogs    = "scopeLogs"

	KeySpans      = "spans"
	KeyMetrics    = "metrics"
	KeyLogRecords = "logRecords"
)

// ScopeKey returns the scope container key for a top-level signal key.
func ScopeKey(resourceKey string) string {
	switch resourceKey {
	case KeyResourceSpans:
		return KeyScopeSpans
	case KeyResourceMetrics:
		return KeyScopeMetrics
	case KeyResourceLogs:
		return KeyScopeLogs
	}
	return ""
}

// RecordKey returns the record array key for a top-level signal key.
func RecordKey(resourceKey string) string {
	switch resourceKey {
	case KeyResourceSpans:
		return KeySpans
	case KeyResourceMetrics:
		return KeyMetrics
	case KeyResourceLogs:
		return KeyLogRecords
	}
	return ""
}

// EmptyResourceContainer builds a valid-but-empty resource entry for the
// given top-level key, used when ingestion repairs a missing container.
func EmptyResourceContainer(resourceKey string) []any {
	return []any{map[string]any{
		"resource":             map[string]any{},
		ScopeKey(resourceKey): []any{},
	}}
}

// AsMap returns v as a map[string]any, or nil.
func AsMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// AsSlice returns v as a []any, or nil.
func AsSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// AsString returns v as a string, or "".
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsUint64 coerces OTLP JSON numeric fields to uint64. OTLP encodes nanos
// as JSON strings; decoded numbers arrive as float64.
func AsUint64(v any) uint64 {
	switch n := v.(type) {
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0
		}
		return u
	case float64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case int:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case int64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case uint64:
		return n
	}
	return 0
}

// AsInt coerces OTLP JSON numeric fields to int.
func AsInt(v any) int {
	switch n := v.(type) {
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// AsFloat64 coerces OTLP JSON numeric fields to float64.
func AsFloat64(v any) float64 {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// AnyValue decodes an OTLP AnyValue wrapper ({stringValue: ...} etc.)
// into a plain Go value. Unknown wrappers are returned as-is.
func AnyValue(v any) any {
	m := AsMap(v)
	if m == nil {
		return v
	}
	if s, ok := m["stringValue"]; ok {
		return AsString(s)
	}
	if n, ok := m["intValue"]; ok {
		return int64(AsInt(n))
	}
	if n, ok := m["doubleValue"]; ok {
		return AsFloat64(n)
	}
	if b, ok := m["boolValue"]; ok {
		bv, _ := b.(bool)
		return bv
	}
	if b, ok := m["bytesValue"]; ok {
		return AsString(b)
	}
	if a, ok := m["arrayValue"]; ok {
		var out []any
		for _, item := range AsSlice(AsMap(a)["values"]) {
			out = append(out, AnyValue(item))
		}
		return out
	}
	if kv, ok := m["kvlistValue"]; ok {
		return Attributes(AsSlice(AsMap(kv)["values"]))
	}
	return v
}

// Attributes decodes an OTLP attribute list ([{key, value}, ...]) into a
// plain map. Entries without a key are skipped.
func Attributes(list []any) map[string]any {
	if len(list) == 0 {
		return nil
	}
	out := make(map[string]any, len(list))
	for _, item := range list {
		m := AsMap(item)
		if m == nil {
			continue
		}
		key := AsString(m["key"])
		if key == "" {
			continue
		}
		out[key] = AnyValue(m["value"])
	}
	return out
}

// ResourceAttributes decodes the attribute map of a resource entry.
func ResourceAttributes(resourceEntry map[string]any) map[string]any {
	res := AsMap(resourceEntry["resource"])
	if res == nil {
		return nil
	}
	return Attributes(AsSlice(res["attributes"]))
}

// ServiceName extracts service.name from decoded resource attributes,
// or "unknown" when absent.
func ServiceName(attrs map[string]any) string {
	if name := AsString(attrs["service.name"]); name != "" {
		return name
	}
	return "unknown"
}
