package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/otelflow/internal/otlp"
)

func spanPayload() map[string]any {
	return map[string]any{
		"resourceSpans": []any{
			map[string]any{
				"resource": map[string]any{
					"attributes": []any{
						map[string]any{"key": "service.name", "value": map[string]any{"stringValue": "checkout"}},
					},
				},
				"scopeSpans": []any{
					map[string]any{
						"spans": []any{
							map[string]any{"traceId": "abc", "spanId": "001", "name": "GET /cart"},
							map[string]any{"traceId": "abc", "spanId": "002", "name": "SELECT"},
						},
					},
				},
			},
		},
	}
}

func TestRunNormalizesByType(t *testing.T) {
	stage := New(Config{})
	ctx := context.Background()

	t.Run("map passes through", func(t *testing.T) {
		env, err := stage.Run(ctx, spanPayload())
		require.NoError(t, err)
		assert.Equal(t, "map", env.Metadata.Format)
		assert.Equal(t, 2, env.Stats.Records)
	})

	t.Run("json bytes decode", func(t *testing.T) {
		raw, err := json.Marshal(spanPayload())
		require.NoError(t, err)

		env, err := stage.Run(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "json", env.Metadata.Format)
		assert.Equal(t, 2, env.Stats.Records)
		assert.Equal(t, len(raw), env.Stats.SizeBytes)
	})

	t.Run("json string decodes", func(t *testing.T) {
		env, err := stage.Run(ctx, `{"resourceSpans": []}`)
		require.NoError(t, err)
		assert.Equal(t, "json", env.Metadata.Format)
	})

	t.Run("undecodable bytes degrade to empty skeleton", func(t *testing.T) {
		env, err := stage.Run(ctx, []byte{0xff, 0xfe, 0x00})
		require.NoError(t, err)
		assert.Equal(t, "binary_fallback", env.Metadata.Format)
		assert.Zero(t, env.Stats.Records)
		assert.Contains(t, env.Data, otlp.KeyResourceSpans)
	})

	t.Run("list wraps as batch", func(t *testing.T) {
		env, err := stage.Run(ctx, []any{map[string]any{"a": 1}})
		require.NoError(t, err)
		assert.Equal(t, "list", env.Metadata.Format)
		assert.Len(t, otlp.AsSlice(env.Data["batch"]), 1)
	})

	t.Run("scalar wraps as single-item batch", func(t *testing.T) {
		env, err := stage.Run(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "single", env.Metadata.Format)
		assert.Len(t, otlp.AsSlice(env.Data["batch"]), 1)
	})

	t.Run("nil input yields empty envelope", func(t *testing.T) {
		env, err := stage.Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "empty", env.Metadata.Format)
		assert.Zero(t, env.Stats.Records)
	})
}

func TestRunRepairsMissingContainers(t *testing.T) {
	stage := New(Config{RequiredFields: []string{otlp.KeyResourceSpans, otlp.KeyResourceMetrics}})

	env, err := stage.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Contains(t, env.Data, otlp.KeyResourceSpans)
	assert.Contains(t, env.Data, otlp.KeyResourceMetrics)
	assert.Zero(t, env.Stats.Records, "repaired containers contribute no records")
}

func TestRunRepairIsIdempotent(t *testing.T) {
	stage := New(Config{})

	first, err := stage.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	second, err := stage.Run(context.Background(), first.Data)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data, "re-ingesting a repaired payload must be a fixed point")
	assert.Equal(t, first.Stats.Records, second.Stats.Records)
}

func TestCorrelationIDStability(t *testing.T) {
	stage := New(Config{})
	ctx := context.Background()

	t.Run("existing trace_id is reused", func(t *testing.T) {
		env, err := stage.Run(ctx, map[string]any{"trace_id": "fixed-id"})
		require.NoError(t, err)
		assert.Equal(t, "fixed-id", env.TraceID)
	})

	t.Run("generated otherwise", func(t *testing.T) {
		env, err := stage.Run(ctx, map[string]any{})
		require.NoError(t, err)
		assert.NotEmpty(t, env.TraceID)
	})
}

func TestRunCancelledContext(t *testing.T) {
	stage := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stage.Run(ctx, map[string]any{})
	assert.Error(t, err)
}

func TestCountRecordsAcrossSignals(t *testing.T) {
	data := spanPayload()
	data["resourceLogs"] = []any{
		map[string]any{
			"scopeLogs": []any{
				map[string]any{"logRecords": []any{map[string]any{}, map[string]any{}, map[string]any{}}},
			},
		},
	}

	env, err := New(Config{}).Run(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 5, env.Stats.Records)
}
