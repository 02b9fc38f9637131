package gen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/otelflow/internal/otlp"
	"github.com/telhawk-systems/otelflow/internal/pipeline/ingest"
	"github.com/telhawk-systems/otelflow/internal/pipeline/parser"
)

func TestPayloadShape(t *testing.T) {
	payload := Payload(Options{
		Traces:        4,
		SpansPerTrace: 2,
		Metrics:       3,
		Logs:          5,
		Services:      []string{"checkout"},
		Seed:          1,
	})

	assert.Len(t, otlp.AsSlice(payload["resourceSpans"]), 4)
	assert.Len(t, otlp.AsSlice(payload["resourceMetrics"]), 3)
	assert.Len(t, otlp.AsSlice(payload["resourceLogs"]), 1)
}

func TestPayloadIsDeterministic(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, Payload(opts), Payload(opts), "the same seed always produces the same payload")
}

func TestPayloadSeedChangesOutput(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	b.Seed = 2
	assert.NotEqual(t, Payload(a), Payload(b))
}

func TestPayloadParsesCleanly(t *testing.T) {
	payload := Payload(DefaultOptions())

	env, err := ingest.New(ingest.Config{}).Run(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 10*3+5+20, env.Stats.Records)

	set, err := parser.New().Run(context.Background(), env)
	require.NoError(t, err)

	assert.Len(t, set.Traces, 10)
	assert.Len(t, set.Logs, 20)
	assert.True(t, set.Validation.Traces.Valid)
	assert.True(t, set.Validation.Logs.Valid)

	for _, trace := range set.Traces {
		assert.NotNil(t, trace.Root, "generated traces have a parentless root span")
		assert.Positive(t, trace.Duration)
	}
}

func TestErrorRateZeroProducesNoErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.ErrorRate = 0

	payload := Payload(opts)
	env, err := ingest.New(ingest.Config{}).Run(context.Background(), payload)
	require.NoError(t, err)

	set, err := parser.New().Run(context.Background(), env)
	require.NoError(t, err)

	for _, trace := range set.Traces {
		assert.False(t, trace.HasError())
	}
}
