package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/telhawk-systems/otelflow/internal/config"
	"github.com/telhawk-systems/otelflow/internal/events"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
	"github.com/telhawk-systems/otelflow/internal/pipeline/sampler"
	"github.com/telhawk-systems/otelflow/internal/pipeline/sink"
)

func otlpPayload() map[string]any {
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
							map[string]any{
								"traceId":           "0af7651916cd43dd8448eb211c80319c",
								"spanId":            "b7ad6b7169203331",
								"name":              "HTTP GET /checkout",
								"kind":              float64(2),
								"startTimeUnixNano": "1000",
								"endTimeUnixNano":   "1200",
								"status":            map[string]any{"code": float64(2), "message": "boom"},
							},
						},
					},
				},
			},
		},
		"resourceLogs": []any{
			map[string]any{
				"resource": map[string]any{
					"attributes": []any{
						map[string]any{"key": "service.name", "value": map[string]any{"stringValue": "checkout"}},
					},
				},
				"scopeLogs": []any{
					map[string]any{
						"logRecords": []any{
							map[string]any{
								"timeUnixNano": "9000",
								"severityText": "ERROR",
								"body":         map[string]any{"stringValue": "payment declined"},
							},
						},
					},
				},
			},
		},
	}
}

// okTransport records sent batches and always succeeds.
type okTransport struct {
	mu      sync.Mutex
	batches []*model.DeliveryBatch
}

func (t *okTransport) Send(_ context.Context, batch *model.DeliveryBatch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches = append(t.batches, batch)
	return nil
}

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, map[model.Backend]*okTransport) {
	t.Helper()
	cfg := config.Default()
	// keep sampling decisions independent of specific trace id hashes
	cfg.Sampling.TraceStrategy = sampler.TraceErrorBiased
	cfg.Sampling.TraceErrorRate = 1.0

	transports := map[model.Backend]*okTransport{}
	defaults := make([]Option, 0, len(model.Backends()))
	for _, backend := range model.Backends() {
		transport := &okTransport{}
		transports[backend] = transport
		defaults = append(defaults, WithTransport(backend, transport))
	}
	return New(cfg, append(defaults, opts...)...), transports
}

func TestExecuteEndToEnd(t *testing.T) {
	p, transports := newTestPipeline(t)

	report, err := p.Execute(context.Background(), "exec-1", otlpPayload())
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, report.Status)
	assert.Equal(t, "exec-1", report.ExecutionID)
	assert.Equal(t, 2, report.Summary.RecordsIngested)
	// error trace and ERROR log both survive default sampling
	assert.Equal(t, 2, report.Summary.RecordsProcessed)
	assert.Equal(t, 1.0, report.Summary.SuccessRate)
	assert.Len(t, report.Backends, 3)

	for backend, transport := range transports {
		assert.NotNil(t, report.Backends[backend], "backend %s missing from report", backend)
		if backend == model.BackendElasticsearch {
			assert.NotEmpty(t, transport.batches, "elasticsearch receives trace and log documents")
		}
	}
}

func TestExecuteEmitsPairedStageEvents(t *testing.T) {
	bus := events.NewInProc()

	var mu sync.Mutex
	starts := map[string]int{}
	terminals := map[string]int{}
	bus.Subscribe(func(ev *events.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case events.TypeStart:
			starts[ev.Stage]++
		case events.TypeSuccess, events.TypeError:
			terminals[ev.Stage]++
		}
	})

	p, _ := newTestPipeline(t, WithEvents(bus))

	_, err := p.Execute(context.Background(), "exec-events", otlpPayload())
	require.NoError(t, err)

	expected := []string{
		"ingestion", "parser",
		"enrichment.service", "enrichment.resource", "enrichment.environment",
		"sampler",
		"transform.jaeger", "transform.prometheus", "transform.elasticsearch",
		"batcher",
		"sink.jaeger", "sink.prometheus", "sink.elasticsearch",
		"result_collector",
	}
	for _, stage := range expected {
		assert.Equal(t, 1, starts[stage], "stage %s start events", stage)
		assert.Equal(t, 1, terminals[stage], "stage %s terminal events", stage)
	}
	assert.Len(t, starts, len(expected))
	assert.Len(t, terminals, len(expected))
}

func TestExecuteBackendFailureIsPartialSuccess(t *testing.T) {
	failing := sink.TransportFunc(func(context.Context, *model.DeliveryBatch) error {
		return assert.AnError
	})

	p, _ := newTestPipeline(t, WithTransport(model.BackendElasticsearch, failing))

	report, err := p.Execute(context.Background(), "exec-partial", otlpPayload())
	require.NoError(t, err, "a delivery failure never fails the execution")

	assert.Equal(t, model.StatusPartialSuccess, report.Status)
	assert.Equal(t, 1, report.Errors.TotalErrors)
	assert.Equal(t, 1, report.Errors.ByStage["sink.elasticsearch"])
	assert.Nil(t, report.Backends[model.BackendElasticsearch])
	assert.NotNil(t, report.Backends[model.BackendJaeger])
}

func TestExecuteMalformedInputStillSucceeds(t *testing.T) {
	p, _ := newTestPipeline(t)

	report, err := p.Execute(context.Background(), "exec-repair", []byte{0x00, 0x01})
	require.NoError(t, err, "undecodable input degrades to an empty skeleton")

	assert.Equal(t, model.StatusSuccess, report.Status)
	assert.Zero(t, report.Summary.RecordsIngested)
	assert.Zero(t, report.Summary.RecordsDelivered)
}

func TestExecuteCancelledContext(t *testing.T) {
	p, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, "exec-cancelled", otlpPayload())
	require.Error(t, err)

	var stageErr *model.StageError
	assert.ErrorAs(t, err, &stageErr)
}

func TestExecuteRecordsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	p, _ := newTestPipeline(t, WithTracerProvider(provider))

	_, err := p.Execute(context.Background(), "exec-traced", otlpPayload())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 14, "one span per stage, sub-stages included")

	names := map[string]bool{}
	for _, span := range spans {
		names[span.Name()] = true
	}
	assert.True(t, names["ingestion"])
	assert.True(t, names["enrichment.service"])
	assert.True(t, names["sink.elasticsearch"])
	assert.True(t, names["result_collector"])
}

func TestExecuteCorrelationIDThreadsThrough(t *testing.T) {
	p, _ := newTestPipeline(t)

	payload := otlpPayload()
	payload["trace_id"] = "corr-fixed"

	report, err := p.Execute(context.Background(), "exec-corr", payload)
	require.NoError(t, err)
	assert.Equal(t, "corr-fixed", report.TraceID)
}
