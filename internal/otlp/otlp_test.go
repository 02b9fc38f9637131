package otlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsUint64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want uint64
	}{
		{"string nanos", "1700000000000000000", 1700000000000000000},
		{"float64", float64(42), 42},
		{"int", 42, 42},
		{"negative float", float64(-1), 0},
		{"garbage string", "not-a-number", 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AsUint64(tt.in))
		})
	}
}

func TestAnyValue(t *testing.T) {
	t.Run("string value", func(t *testing.T) {
		assert.Equal(t, "hello", AnyValue(map[string]any{"stringValue": "hello"}))
	})

	t.Run("int value as string", func(t *testing.T) {
		assert.Equal(t, int64(7), AnyValue(map[string]any{"intValue": "7"}))
	})

	t.Run("double value", func(t *testing.T) {
		assert.Equal(t, 1.5, AnyValue(map[string]any{"doubleValue": 1.5}))
	})

	t.Run("bool value", func(t *testing.T) {
		assert.Equal(t, true, AnyValue(map[string]any{"boolValue": true}))
	})

	t.Run("array value", func(t *testing.T) {
		got := AnyValue(map[string]any{
			"arrayValue": map[string]any{
				"values": []any{
					map[string]any{"stringValue": "a"},
					map[string]any{"intValue": "2"},
				},
			},
		})
		assert.Equal(t, []any{"a", int64(2)}, got)
	})

	t.Run("kvlist value", func(t *testing.T) {
		got := AnyValue(map[string]any{
			"kvlistValue": map[string]any{
				"values": []any{
					map[string]any{"key": "k", "value": map[string]any{"stringValue": "v"}},
				},
			},
		})
		assert.Equal(t, map[string]any{"k": "v"}, got)
	})

	t.Run("non-wrapper passes through", func(t *testing.T) {
		assert.Equal(t, "plain", AnyValue("plain"))
	})
}

func TestAttributes(t *testing.T) {
	attrs := Attributes([]any{
		map[string]any{"key": "http.method", "value": map[string]any{"stringValue": "GET"}},
		map[string]any{"key": "", "value": map[string]any{"stringValue": "skipped"}},
		"not-a-map",
	})
	assert.Equal(t, map[string]any{"http.method": "GET"}, attrs)

	assert.Nil(t, Attributes(nil))
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "checkout", ServiceName(map[string]any{"service.name": "checkout"}))
	assert.Equal(t, "unknown", ServiceName(nil))
	assert.Equal(t, "unknown", ServiceName(map[string]any{}))
}

func TestEmptyResourceContainer(t *testing.T) {
	entry := EmptyResourceContainer(KeyResourceSpans)
	assert.Len(t, entry, 1)

	m := AsMap(entry[0])
	assert.NotNil(t, m["resource"])
	assert.NotNil(t, m[KeyScopeSpans])
	assert.Empty(t, AsSlice(m[KeyScopeSpans]))
}
