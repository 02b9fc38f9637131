// Package manager bounds concurrent pipeline executions, tracks rolling
// statistics, and exposes cancellation and introspection. Statistics are
// owned by a single completion loop so concurrent completions never lose
// updates.
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/otelflow/internal/logging"
	"github.com/telhawk-systems/otelflow/internal/metrics"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
	"github.com/telhawk-systems/otelflow/internal/ratelimit"
)

// Sentinel errors returned to submitters.
var (
	ErrCapacityExceeded = errors.New("pipeline_capacity_exceeded")
	ErrNotFound         = errors.New("pipeline_not_found")
	ErrCancelled        = errors.New("pipeline_cancelled")
	ErrRateLimited      = errors.New("pipeline_rate_limited")
	ErrStopped          = errors.New("pipeline_manager_stopped")
)

// Runner executes one pipeline pass. It is an interface so tests can
// substitute the real pipeline.
type Runner interface {
	Execute(ctx context.Context, executionID string, raw any) (*model.ExecutionReport, error)
}

// Result is delivered to the submitter exactly once per execution.
type Result struct {
	Report *model.ExecutionReport
	Err    error
}

// Stats is the manager's rolling view over completed executions.
type Stats struct {
	Total                int64         `json:"total"`
	Succeeded            int64         `json:"succeeded"`
	Failed               int64         `json:"failed"`
	Cancelled            int64         `json:"cancelled"`
	AverageExecutionTime time.Duration `json:"average_execution_time_ms"`
	TotalBytes           int64         `json:"total_bytes"`
}

// ExecutionInfo describes one in-flight execution.
type ExecutionInfo struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Running   time.Duration `json:"running"`
}

// SubmitOptions tune one submission.
type SubmitOptions struct {
	// Source identifies the submitter for rate limiting. Empty skips
	// the limiter.
	Source string
}

// Config holds manager settings.
type Config struct {
	// MaxConcurrent bounds in-flight executions; excess submissions are
	// rejected synchronously, never queued.
	MaxConcurrent int

	// ExecutionTimeout bounds one whole execution.
	ExecutionTimeout time.Duration
}

// DefaultConfig returns the documented manager defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    5,
		ExecutionTimeout: 60 * time.Second,
	}
}

type execution struct {
	id        string
	startedAt time.Time
	cancel    context.CancelCauseFunc
	result    chan Result
}

type completion struct {
	duration time.Duration
	bytes    int64
	status   string
}

// Manager schedules pipeline executions.
type Manager struct {
	runner  Runner
	cfg     Config
	log     *logging.Logger
	limiter ratelimit.Limiter

	mu          sync.Mutex // guards active map and stats reads
	active      map[string]*execution
	completions chan completion

	stats         Stats
	totalDuration time.Duration

	done    chan struct{}
	stopped chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithRateLimiter installs a submission rate limiter.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// New creates a manager and starts its completion loop.
func New(runner Runner, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = def.ExecutionTimeout
	}

	m := &Manager{
		runner:      runner,
		cfg:         cfg,
		log:         logging.Default(),
		active:      map[string]*execution{},
		completions: make(chan completion, cfg.MaxConcurrent),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.completionLoop()
	return m
}

func (m *Manager) lock()   { m.mu.Lock() }
func (m *Manager) unlock() { m.mu.Unlock() }

// Submit accepts a payload for asynchronous execution. It returns the
// execution id and a buffered result channel that receives exactly one
// Result; a caller that stops waiting never corrupts manager state.
func (m *Manager) Submit(ctx context.Context, raw any, opts SubmitOptions) (string, <-chan Result, error) {
	select {
	case <-m.done:
		return "", nil, ErrStopped
	default:
	}

	if m.limiter != nil && opts.Source != "" {
		allowed, err := m.limiter.Allow(ctx, opts.Source)
		if err != nil {
			return "", nil, err
		}
		if !allowed {
			return "", nil, ErrRateLimited
		}
	}

	m.lock()
	if len(m.active) >= m.cfg.MaxConcurrent {
		m.unlock()
		metrics.ExecutionsRejected.Inc()
		return "", nil, ErrCapacityExceeded
	}

	execCtx, cancel := context.WithCancelCause(context.Background())
	e := &execution{
		id:        uuid.New().String(),
		startedAt: time.Now(),
		cancel:    cancel,
		result:    make(chan Result, 1),
	}
	m.active[e.id] = e
	m.unlock()

	metrics.ExecutionsActive.Inc()
	go m.run(execCtx, e, raw)
	return e.id, e.result, nil
}

// Run submits and waits for completion. A caller-side context timeout
// abandons only the wait; the execution itself keeps running under the
// manager's own timeout and its completion is still accounted.
func (m *Manager) Run(ctx context.Context, raw any, opts SubmitOptions) (*model.ExecutionReport, error) {
	_, resultCh, err := m.Submit(ctx, raw, opts)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.Report, res.Err
	}
}

func (m *Manager) run(execCtx context.Context, e *execution, raw any) {
	runCtx, cancelTimeout := context.WithTimeout(execCtx, m.cfg.ExecutionTimeout)
	defer cancelTimeout()

	report, err := m.runner.Execute(runCtx, e.id, raw)

	// Cancellation wins over whatever error the interrupted stage
	// surfaced, so the caller sees pipeline_cancelled.
	if cause := context.Cause(execCtx); errors.Is(cause, ErrCancelled) {
		err = ErrCancelled
		report = nil
	}

	status := "success"
	var bytes int64
	switch {
	case errors.Is(err, ErrCancelled):
		status = "cancelled"
	case err != nil:
		status = "failed"
	default:
		bytes = int64(report.Performance.BytesProcessed)
	}

	m.lock()
	delete(m.active, e.id)
	m.unlock()
	metrics.ExecutionsActive.Dec()
	metrics.ExecutionsTotal.WithLabelValues(status).Inc()

	if err != nil {
		m.log.Warn("pipeline execution did not complete",
			logging.FieldExecutionID, e.id,
			logging.FieldStatus, status,
			logging.FieldError, err.Error(),
		)
	}

	e.result <- Result{Report: report, Err: err}

	select {
	case m.completions <- completion{
		duration: time.Since(e.startedAt),
		bytes:    bytes,
		status:   status,
	}:
	case <-m.stopped:
	}
}

// completionLoop is the single owner of the rolling statistics.
func (m *Manager) completionLoop() {
	for {
		select {
		case c := <-m.completions:
			m.lock()
			m.stats.Total++
			switch c.status {
			case "success":
				m.stats.Succeeded++
			case "cancelled":
				m.stats.Cancelled++
			default:
				m.stats.Failed++
			}
			m.totalDuration += c.duration
			m.stats.AverageExecutionTime = m.totalDuration / time.Duration(m.stats.Total)
			m.stats.TotalBytes += c.bytes
			m.unlock()
		case <-m.done:
			close(m.stopped)
			return
		}
	}
}

// Cancel force-terminates a running execution. The original submitter
// still receives a reply carrying ErrCancelled.
func (m *Manager) Cancel(id string) error {
	m.lock()
	e, ok := m.active[id]
	m.unlock()
	if !ok {
		return ErrNotFound
	}
	e.cancel(ErrCancelled)
	return nil
}

// Status reports whether an execution is currently running.
func (m *Manager) Status(id string) (ExecutionInfo, error) {
	m.lock()
	defer m.unlock()
	e, ok := m.active[id]
	if !ok {
		return ExecutionInfo{}, ErrNotFound
	}
	return ExecutionInfo{ID: e.id, StartedAt: e.startedAt, Running: time.Since(e.startedAt)}, nil
}

// Stats returns a copy of the rolling statistics.
func (m *Manager) Stats() Stats {
	m.lock()
	defer m.unlock()
	return m.stats
}

// ActiveExecutions lists in-flight executions with their running time.
func (m *Manager) ActiveExecutions() []ExecutionInfo {
	m.lock()
	defer m.unlock()
	out := make([]ExecutionInfo, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, ExecutionInfo{ID: e.id, StartedAt: e.startedAt, Running: time.Since(e.startedAt)})
	}
	return out
}

// Stop shuts the manager down: new submissions are rejected, in-flight
// executions are cancelled, and the completion loop exits.
func (m *Manager) Stop() {
	select {
	case <-m.done:
		return
	default:
	}

	m.lock()
	for _, e := range m.active {
		e.cancel(ErrCancelled)
	}
	m.unlock()

	close(m.done)
	if m.limiter != nil {
		_ = m.limiter.Close()
	}
}
