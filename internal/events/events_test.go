package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcPublish(t *testing.T) {
	bus := NewInProc()

	var received []*Event
	bus.Subscribe(func(ev *Event) { received = append(received, ev) })

	ev := &Event{
		ExecutionID: "exec-1",
		Stage:       "parser",
		Type:        TypeStart,
		Timestamp:   time.Now(),
	}
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Len(t, received, 1)
	assert.Equal(t, "parser", received[0].Stage)
	assert.Equal(t, TypeStart, received[0].Type)
}

func TestInProcMultipleHandlers(t *testing.T) {
	bus := NewInProc()

	count := 0
	bus.Subscribe(func(*Event) { count++ })
	bus.Subscribe(func(*Event) { count++ })

	require.NoError(t, bus.Publish(context.Background(), &Event{Stage: "sampler", Type: TypeSuccess}))
	assert.Equal(t, 2, count)
}

func TestInProcClose(t *testing.T) {
	bus := NewInProc()

	count := 0
	bus.Subscribe(func(*Event) { count++ })
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(context.Background(), &Event{Stage: "sink.jaeger", Type: TypeError}))
	assert.Zero(t, count, "events after Close must be dropped")
}

func TestDiscard(t *testing.T) {
	var bus Discard
	assert.NoError(t, bus.Publish(context.Background(), &Event{}))
	assert.NoError(t, bus.Close())
}
