// Package events defines the stage telemetry bus for the pipeline.
// It allows external observers to receive per-stage lifecycle events
// without being coupled to a specific transport.
package events

import (
	"context"
	"sync"
	"time"
)

// Type identifies the lifecycle phase of a stage event.
type Type string

const (
	TypeStart   Type = "start"
	TypeSuccess Type = "success"
	TypeError   Type = "error"
)

// Event is one stage lifecycle notification. Every stage emits exactly one
// start event and exactly one success-or-error event per execution.
type Event struct {
	ExecutionID string        `json:"execution_id"`
	Stage       string        `json:"stage"`
	Type        Type          `json:"type"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	Records     int           `json:"records,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Publisher publishes stage events to interested observers.
type Publisher interface {
	// Publish sends a stage event. Implementations must not block the
	// pipeline; slow observers should buffer or drop.
	Publish(ctx context.Context, ev *Event) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Handler processes a received stage event.
type Handler func(ev *Event)

// InProc is an in-process Publisher that fans events out to registered
// handlers. It is the default bus for tests and CLI runs.
type InProc struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewInProc creates an in-process event bus.
func NewInProc() *InProc {
	return &InProc{}
}

// Subscribe registers a handler for all subsequent events.
func (p *InProc) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Publish delivers the event to every registered handler synchronously.
func (p *InProc) Publish(_ context.Context, ev *Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	for _, h := range p.handlers {
		h(ev)
	}
	return nil
}

// Close stops delivery; subsequent events are dropped.
func (p *InProc) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.handlers = nil
	return nil
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, *Event) error { return nil }
func (Discard) Close() error                          { return nil }
