package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

func sampledSet() *model.SampledSet {
	return &model.SampledSet{
		Traces: []*model.Trace{
			{
				TraceID: "0af7651916cd43dd8448eb211c80319c",
				Spans: []*model.Span{
					{
						TraceID:   "0af7651916cd43dd8448eb211c80319c",
						SpanID:    "b7ad6b7169203331",
						Name:      "HTTP GET /checkout",
						Kind:      2,
						StartTime: 1_000_000,
						Duration:  200_000,
						Service:   "checkout",
						Attributes: map[string]any{
							"http.method": "GET",
							"retries":     int64(2),
						},
					},
					{
						TraceID:      "0af7651916cd43dd8448eb211c80319c",
						SpanID:       "00f067aa0ba902b7",
						ParentSpanID: "b7ad6b7169203331",
						Name:         "SELECT orders",
						Kind:         3,
						StatusCode:   model.StatusCodeError,
						Service:      "orders-db",
					},
				},
			},
		},
		Metrics: map[string][]*model.MetricSeries{
			"http_requests_total": {
				{
					Name:    "http_requests_total",
					Type:    "sum",
					Unit:    "1",
					Service: "checkout",
					Points: []model.MetricPoint{
						{Value: 120, TimeUnixNano: 1_000_000_000, Attributes: map[string]any{"code": "200"}},
					},
				},
			},
		},
		Logs: []*model.LogRecord{
			{Timestamp: 9_000, SeverityText: "ERROR", Body: "payment declined", Service: "payments"},
		},
	}
}

func TestNormalizeTraceID(t *testing.T) {
	t.Run("32 hex chars unchanged", func(t *testing.T) {
		id := "0af7651916cd43dd8448eb211c80319c"
		assert.Equal(t, id, NormalizeTraceID(id))
	})

	t.Run("16 hex chars left-padded", func(t *testing.T) {
		assert.Equal(t, "0000000000000000b7ad6b7169203331", NormalizeTraceID("b7ad6b7169203331"))
	})

	t.Run("non-hex hashed deterministically", func(t *testing.T) {
		first := NormalizeTraceID("not-hex-at-all")
		second := NormalizeTraceID("not-hex-at-all")
		assert.Equal(t, first, second)
		assert.Len(t, first, 32)
		assert.NotEqual(t, NormalizeTraceID("different"), first)
	})
}

func TestNormalizeSpanID(t *testing.T) {
	assert.Equal(t, "b7ad6b7169203331", NormalizeSpanID("b7ad6b7169203331"))
	assert.Equal(t, "0000000012345678", NormalizeSpanID("12345678"))
	assert.Len(t, NormalizeSpanID("weird id"), 16)
}

func TestJaeger(t *testing.T) {
	batch, err := Jaeger(context.Background(), sampledSet())
	require.NoError(t, err)

	require.Equal(t, 1, batch.Total)
	trace := batch.Data[0]
	require.Len(t, trace.Spans, 2)

	root := trace.Spans[0]
	assert.Equal(t, "HTTP GET /checkout", root.OperationName)
	assert.Equal(t, uint64(1_000), root.StartTime, "nanos converted to micros")
	assert.Equal(t, uint64(200), root.Duration)
	assert.Empty(t, root.ParentSpanID)

	child := trace.Spans[1]
	assert.Equal(t, root.SpanID, child.ParentSpanID)

	t.Run("process table", func(t *testing.T) {
		require.Len(t, trace.Processes, 2)
		assert.Equal(t, "checkout", trace.Processes[root.ProcessID].ServiceName)
		assert.Equal(t, "orders-db", trace.Processes[child.ProcessID].ServiceName)
		assert.Equal(t, ProcessID("checkout"), root.ProcessID)
	})

	t.Run("kind and status tags", func(t *testing.T) {
		assert.Contains(t, root.Tags, model.JaegerTag{Key: "span.kind", Type: "string", Value: "server"})
		assert.Contains(t, child.Tags, model.JaegerTag{Key: "span.kind", Type: "string", Value: "client"})
		assert.Contains(t, child.Tags, model.JaegerTag{Key: "otel.status_code", Type: "string", Value: "ERROR"})
	})

	t.Run("error tag only on error spans", func(t *testing.T) {
		assert.Contains(t, child.Tags, model.JaegerTag{Key: "error", Type: "bool", Value: true})
		assert.NotContains(t, root.Tags, model.JaegerTag{Key: "error", Type: "bool", Value: true})
	})

	t.Run("typed attribute tags", func(t *testing.T) {
		assert.Contains(t, root.Tags, model.JaegerTag{Key: "http.method", Type: "string", Value: "GET"})
		assert.Contains(t, root.Tags, model.JaegerTag{Key: "retries", Type: "int64", Value: int64(2)})
	})
}

func TestJaegerEventLogs(t *testing.T) {
	set := sampledSet()
	set.Traces[0].Spans[0].Events = []any{
		map[string]any{
			"name":         "cache.miss",
			"timeUnixNano": "2000000",
			"attributes": []any{
				map[string]any{"key": "cache.key", "value": map[string]any{"stringValue": "cart:42"}},
			},
		},
	}

	batch, err := Jaeger(context.Background(), set)
	require.NoError(t, err)

	logs := batch.Data[0].Spans[0].Logs
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(2000), logs[0].Timestamp)
	assert.Equal(t, model.JaegerTag{Key: "event", Type: "string", Value: "cache.miss"}, logs[0].Fields[0])
	assert.Contains(t, logs[0].Fields, model.JaegerTag{Key: "cache.key", Type: "string", Value: "cart:42"})
}

func TestPrometheus(t *testing.T) {
	batch, err := Prometheus(context.Background(), sampledSet())
	require.NoError(t, err)

	require.Len(t, batch.Metrics, 1)
	sample := batch.Metrics[0]

	assert.Equal(t, "http_requests_total", sample.Name)
	assert.Equal(t, float64(120), sample.Value)
	assert.Equal(t, int64(1000), sample.TimestampMS, "nanos converted to millis")
	assert.Equal(t, "checkout", sample.Labels["service"])
	assert.Equal(t, "200", sample.Labels["code"])
	assert.NotZero(t, batch.Timestamp)
}

func TestElasticsearch(t *testing.T) {
	batch, err := Elasticsearch(context.Background(), sampledSet())
	require.NoError(t, err)

	// one trace doc, one metric doc, one log doc
	require.Len(t, batch.Documents, 3)

	types := map[string]int{}
	for _, doc := range batch.Documents {
		types[doc["type"].(string)]++
		assert.NotEmpty(t, doc["_id"], "every document carries a deterministic id")
	}
	assert.Equal(t, map[string]int{"trace": 1, "metric": 1, "log": 1}, types)
}

func TestTransformsAreCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Jaeger(ctx, sampledSet())
	assert.Error(t, err)
	_, err = Prometheus(ctx, sampledSet())
	assert.Error(t, err)
	_, err = Elasticsearch(ctx, sampledSet())
	assert.Error(t, err)
}
