// Package pipeline composes the processing stages into one execution:
// ingestion, parsing, enrichment fan-out, sampling, per-backend
// transform fan-out, batching, per-backend delivery fan-out, and result
// collection. Fan-out branches run concurrently over immutable inputs
// and are joined before the next stage.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/otelflow/internal/config"
	"github.com/telhawk-systems/otelflow/internal/events"
	"github.com/telhawk-systems/otelflow/internal/logging"
	"github.com/telhawk-systems/otelflow/internal/metrics"
	"github.com/telhawk-systems/otelflow/internal/pipeline/batcher"
	"github.com/telhawk-systems/otelflow/internal/pipeline/collector"
	"github.com/telhawk-systems/otelflow/internal/pipeline/enrich"
	"github.com/telhawk-systems/otelflow/internal/pipeline/ingest"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
	"github.com/telhawk-systems/otelflow/internal/pipeline/parser"
	"github.com/telhawk-systems/otelflow/internal/pipeline/sampler"
	"github.com/telhawk-systems/otelflow/internal/pipeline/sink"
	"github.com/telhawk-systems/otelflow/internal/pipeline/transform"
)

// Pipeline runs the full stage chain for one payload at a time. It is
// safe for concurrent use; every execution owns its intermediate state.
type Pipeline struct {
	ingest    *ingest.Stage
	parser    *parser.Stage
	enrich    *enrich.Stage
	sampler   *sampler.Stage
	batcher   *batcher.Stage
	collector *collector.Stage

	transports map[model.Backend]sink.Transport
	bus        events.Publisher
	log        *logging.Logger
	tracer     trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvents sets the stage telemetry bus. Defaults to a discard bus.
func WithEvents(bus events.Publisher) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithTransport sets the delivery transport for one backend.
func WithTransport(backend model.Backend, t sink.Transport) Option {
	return func(p *Pipeline) { p.transports[backend] = t }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *logging.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithTracerProvider enables a span per stage on the given provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer("otelflow/pipeline") }
}

// New builds a pipeline from configuration. Backends without an explicit
// transport use HTTP delivery to their configured endpoints.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}

	httpTransport := sink.NewHTTPTransport(nil)
	p := &Pipeline{
		ingest: ingest.New(ingest.Config{
			RequiredFields: cfg.Pipeline.RequiredFields,
			Source:         cfg.Pipeline.Source,
		}),
		parser: parser.New(),
		enrich: enrich.New(enrich.Config{
			ServiceRegistry: cfg.Enrichment.ServiceRegistry,
			DeploymentInfo:  cfg.Enrichment.DeploymentInfo,
			SLATiers:        cfg.Enrichment.SLATiers,
			TeamOwnership:   cfg.Enrichment.TeamOwnership,
		}),
		sampler: sampler.New(sampler.Config{
			TraceStrategy:    cfg.Sampling.TraceStrategy,
			MetricStrategy:   cfg.Sampling.MetricStrategy,
			LogStrategy:      cfg.Sampling.LogStrategy,
			TraceRate:        cfg.Sampling.TraceRate,
			TraceErrorRate:   cfg.Sampling.TraceErrorRate,
			TraceSuccessRate: cfg.Sampling.TraceSuccessRate,
			TraceRateLimit:   cfg.Sampling.TraceRateLimit,
			LatencyThreshold: cfg.Sampling.LatencyThreshold,
			ServiceRates:     cfg.Sampling.ServiceRates,
			MetricRate:       cfg.Sampling.MetricRate,
			MetricTimeBucket: cfg.Sampling.MetricTimeBucket,
			MetricThresholds: cfg.Sampling.MetricThresholds,
			LogRate:          cfg.Sampling.LogRate,
			SeverityRates:    cfg.Sampling.SeverityRates,
			BurstThreshold:   cfg.Sampling.BurstThreshold,
			BurstRate:        cfg.Sampling.BurstRate,
			BurstNormalRate:  cfg.Sampling.BurstNormalRate,
		}),
		batcher: batcher.New(batcher.Config{
			Jaeger:        backendConfig(cfg.Backends.Jaeger),
			Prometheus:    backendConfig(cfg.Backends.Prometheus),
			Elasticsearch: backendConfig(cfg.Backends.Elasticsearch),
		}),
		collector: collector.New(),
		transports: map[model.Backend]sink.Transport{
			model.BackendJaeger:        httpTransport,
			model.BackendPrometheus:    httpTransport,
			model.BackendElasticsearch: httpTransport,
		},
		bus: events.Discard{},
		log: logging.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func backendConfig(cfg config.BackendConfig) batcher.BackendConfig {
	return batcher.BackendConfig{
		Endpoint:      cfg.Endpoint,
		BatchSize:     cfg.BatchSize,
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		AuthType:      cfg.AuthType,
		AuthToken:     cfg.AuthToken,
		Index:         cfg.Index,
	}
}

// Execute runs the full chain against one payload. Callers receive
// either a complete execution report or a *model.StageError identifying
// the failing stage, never a raw fault.
func (p *Pipeline) Execute(ctx context.Context, executionID string, raw any) (*model.ExecutionReport, error) {
	ctx = logging.WithExecutionID(ctx, executionID)
	started := time.Now()
	durations := map[string]time.Duration{}
	var durationsMu sync.Mutex

	record := func(stage string, d time.Duration) {
		durationsMu.Lock()
		durations[stage] = d
		durationsMu.Unlock()
	}

	// Ingestion
	var env *model.Envelope
	err := p.runStage(ctx, executionID, ingest.StageName, record, func(ctx context.Context) (int, error) {
		var serr error
		env, serr = p.ingest.Run(ctx, raw)
		if serr != nil {
			return 0, serr
		}
		return env.Stats.Records, nil
	})
	if err != nil {
		return nil, err
	}

	// Parser
	var signals *model.SignalSet
	err = p.runStage(ctx, executionID, parser.StageName, record, func(ctx context.Context) (int, error) {
		var serr error
		signals, serr = p.parser.Run(ctx, env)
		if serr != nil {
			return 0, serr
		}
		return signals.RecordCount(), nil
	})
	if err != nil {
		return nil, err
	}

	// Enrichment fan-out
	var (
		serviceCtx map[string]map[string]any
		resource   map[string]any
		deployment map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.runStage(gctx, executionID, enrich.StageNameService, record, func(ctx context.Context) (int, error) {
			out, serr := p.enrich.Services(ctx, signals)
			if serr != nil {
				return 0, serr
			}
			serviceCtx = out
			return len(out), nil
		})
	})
	g.Go(func() error {
		return p.runStage(gctx, executionID, enrich.StageNameResource, record, func(ctx context.Context) (int, error) {
			out, serr := p.enrich.Resource(ctx, signals)
			if serr != nil {
				return 0, serr
			}
			resource = out
			return len(out), nil
		})
	})
	g.Go(func() error {
		return p.runStage(gctx, executionID, enrich.StageNameEnv, record, func(ctx context.Context) (int, error) {
			out, serr := p.enrich.Environment(ctx, signals)
			if serr != nil {
				return 0, serr
			}
			deployment = out
			return len(out), nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	enriched := &model.EnrichedSet{
		Signals:    signals,
		Enrichment: enrich.Merge(serviceCtx, resource, deployment),
	}

	// Sampler
	var sampled *model.SampledSet
	err = p.runStage(ctx, executionID, sampler.StageName, record, func(ctx context.Context) (int, error) {
		var serr error
		sampled, serr = p.sampler.Run(ctx, enriched)
		if serr != nil {
			return 0, serr
		}
		return sampled.RecordCount(), nil
	})
	if err != nil {
		return nil, err
	}

	// Transform fan-out
	encoded := &model.Encoded{SampledCount: sampled.RecordCount()}
	tg, tctx := errgroup.WithContext(ctx)
	tg.Go(func() error {
		return p.runStage(tctx, executionID, transform.StageNameJaeger, record, func(ctx context.Context) (int, error) {
			out, serr := transform.Jaeger(ctx, sampled)
			if serr != nil {
				return 0, serr
			}
			encoded.Jaeger = out
			return out.Total, nil
		})
	})
	tg.Go(func() error {
		return p.runStage(tctx, executionID, transform.StageNamePrometheus, record, func(ctx context.Context) (int, error) {
			out, serr := transform.Prometheus(ctx, sampled)
			if serr != nil {
				return 0, serr
			}
			encoded.Prometheus = out
			return len(out.Metrics), nil
		})
	})
	tg.Go(func() error {
		return p.runStage(tctx, executionID, transform.StageNameElasticsearch, record, func(ctx context.Context) (int, error) {
			out, serr := transform.Elasticsearch(ctx, sampled)
			if serr != nil {
				return 0, serr
			}
			encoded.Elasticsearch = out
			return len(out.Documents), nil
		})
	})
	if err := tg.Wait(); err != nil {
		return nil, err
	}

	// Batcher
	var batches map[model.Backend][]*model.DeliveryBatch
	err = p.runStage(ctx, executionID, batcher.StageName, record, func(ctx context.Context) (int, error) {
		var serr error
		batches, serr = p.batcher.Run(ctx, encoded)
		if serr != nil {
			return 0, serr
		}
		n := 0
		for _, b := range batches {
			n += len(b)
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	// Sink fan-out. Delivery failures never halt sibling backends; each
	// outcome carries its own result or error.
	outcomes := make([]*model.BackendOutcome, 0, 3)
	var outcomesMu sync.Mutex
	var wg sync.WaitGroup
	for _, backend := range model.Backends() {
		wg.Add(1)
		go func(backend model.Backend) {
			defer wg.Done()
			var outcome *model.BackendOutcome
			// Stage error is already captured inside the outcome; the
			// runStage error return is intentionally ignored here.
			_ = p.runStage(ctx, executionID, sink.StageNameFor(backend), record, func(ctx context.Context) (int, error) {
				outcome = sink.Deliver(ctx, backend, batches[backend], p.transports[backend])
				if outcome.Err != nil {
					return 0, outcome.Err
				}
				return outcome.Result.RecordsSent, nil
			})
			outcomesMu.Lock()
			outcomes = append(outcomes, outcome)
			outcomesMu.Unlock()
		}(backend)
	}
	wg.Wait()

	// Result collector
	var report *model.ExecutionReport
	err = p.runStage(ctx, executionID, collector.StageName, record, func(ctx context.Context) (int, error) {
		durationsMu.Lock()
		stageDurations := make(map[string]time.Duration, len(durations))
		for k, v := range durations {
			stageDurations[k] = v
		}
		durationsMu.Unlock()

		var serr error
		report, serr = p.collector.Run(ctx, collector.Input{
			ExecutionID:    executionID,
			Envelope:       env,
			Signals:        signals,
			Sampled:        sampled,
			Outcomes:       outcomes,
			StageDurations: stageDurations,
			TotalDuration:  time.Since(started),
		})
		if serr != nil {
			return 0, serr
		}
		return report.Summary.RecordsDelivered, nil
	})
	if err != nil {
		return nil, err
	}

	p.log.InfoContext(ctx, "pipeline execution finished",
		logging.FieldStatus, string(report.Status),
		logging.FieldRecords, report.Summary.RecordsDelivered,
		logging.FieldDuration, time.Since(started).Milliseconds(),
	)
	return report, nil
}

// runStage wraps one stage with telemetry: exactly one start event and
// exactly one success-or-error event, a duration histogram observation,
// and an optional tracing span. Non-StageError faults are wrapped so no
// stage ever leaks a raw error.
func (p *Pipeline) runStage(ctx context.Context, executionID, stage string, record func(string, time.Duration), fn func(context.Context) (int, error)) error {
	started := time.Now()
	_ = p.bus.Publish(ctx, &events.Event{
		ExecutionID: executionID,
		Stage:       stage,
		Type:        events.TypeStart,
		Timestamp:   started,
	})

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, stage, trace.WithAttributes(
			attribute.String("otelflow.execution_id", executionID),
		))
	}

	records, err := fn(ctx)
	elapsed := time.Since(started)
	record(stage, elapsed)
	metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())

	if span != nil {
		span.SetAttributes(attribute.Int("otelflow.records", records))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}

	ev := &events.Event{
		ExecutionID: executionID,
		Stage:       stage,
		Type:        events.TypeSuccess,
		Timestamp:   time.Now(),
		Duration:    elapsed,
		Records:     records,
	}
	if err != nil {
		ev.Type = events.TypeError
		ev.Error = err.Error()
	}
	_ = p.bus.Publish(ctx, ev)

	if err == nil {
		return nil
	}

	metrics.StageErrors.WithLabelValues(stage).Inc()
	var stageErr *model.StageError
	if !errors.As(err, &stageErr) {
		stageErr = model.NewStageError(stage, kindFor(stage), err)
	}
	stageErr.WithProcessingTime(elapsed)
	p.log.ErrorContext(ctx, "pipeline stage failed",
		logging.FieldStage, stage,
		logging.FieldError, stageErr.Error(),
	)
	return stageErr
}

// kindFor maps a stage name to the error kind used when a stage leaks a
// raw error instead of a StageError.
func kindFor(stage string) string {
	switch {
	case stage == ingest.StageName:
		return model.KindIngestionMalformed
	case stage == parser.StageName:
		return model.KindParsingStructural
	case strings.HasPrefix(stage, enrich.StageName):
		return model.KindEnrichmentFailure
	case stage == sampler.StageName:
		return model.KindSamplingFailure
	case strings.HasPrefix(stage, transform.StageName), stage == batcher.StageName:
		return model.KindTransformFailure
	case strings.HasPrefix(stage, sink.StageName):
		return model.KindBackendDeliveryError
	default:
		return model.KindResultCollectionFailure
	}
}
