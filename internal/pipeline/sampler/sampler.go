// Package sampler reduces the working set with one configured strategy
// per signal type. Every decision is a deterministic function of the item
// identity and the config, never of wall-clock randomness, so repeated
// runs over the same input select the same subset.
package sampler

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/telhawk-systems/otelflow/internal/metrics"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage name used in errors and telemetry events.
const StageName = "sampler"

// Trace sampling strategies.
const (
	TraceProbabilistic = "probabilistic"
	TraceTailBased     = "tail_based"
	TraceErrorBiased   = "error_biased"
	TraceServiceAware  = "service_aware"
	TraceRateLimited   = "rate_limited"
)

// Metric sampling strategies.
const (
	MetricTimeBased   = "time_based"
	MetricValueBased  = "value_based"
	MetricStatistical = "statistical"
)

// Log sampling strategies.
const (
	LogSeverityBased  = "severity_based"
	LogProbabilistic  = "probabilistic"
	LogBurstDetection = "burst_detection"
)

// Config selects and parameterizes the per-signal strategies.
type Config struct {
	TraceStrategy  string
	MetricStrategy string
	LogStrategy    string

	TraceRate        float64
	TraceErrorRate   float64
	TraceSuccessRate float64
	TraceRateLimit   int
	LatencyThreshold time.Duration
	ServiceRates     map[string]float64

	MetricRate       float64
	MetricTimeBucket time.Duration
	MetricThresholds map[string]float64

	LogRate         float64
	SeverityRates   map[string]float64
	BurstThreshold  int
	BurstRate       float64
	BurstNormalRate float64
}

// DefaultConfig returns the documented sampling defaults.
func DefaultConfig() Config {
	return Config{
		TraceStrategy:    TraceProbabilistic,
		MetricStrategy:   MetricTimeBased,
		LogStrategy:      LogSeverityBased,
		TraceRate:        0.1,
		TraceErrorRate:   1.0,
		TraceSuccessRate: 0.05,
		TraceRateLimit:   100,
		LatencyThreshold: 500 * time.Millisecond,
		MetricRate:       0.5,
		MetricTimeBucket: time.Minute,
		LogRate:          0.1,
		BurstThreshold:   1000,
		BurstRate:        0.05,
		BurstNormalRate:  1.0,
	}
}

type traceSampler func(*model.Trace) bool
type metricSampler func(*model.MetricSeries) bool
type logSampler func(*model.LogRecord) bool

// Stage applies the configured strategies.
type Stage struct {
	cfg Config
}

// New creates a sampler stage with defaults filled in for zero fields.
func New(cfg Config) *Stage {
	def := DefaultConfig()
	if cfg.TraceStrategy == "" {
		cfg.TraceStrategy = def.TraceStrategy
	}
	if cfg.MetricStrategy == "" {
		cfg.MetricStrategy = def.MetricStrategy
	}
	if cfg.LogStrategy == "" {
		cfg.LogStrategy = def.LogStrategy
	}
	if cfg.TraceRate == 0 {
		cfg.TraceRate = def.TraceRate
	}
	if cfg.TraceErrorRate == 0 {
		cfg.TraceErrorRate = def.TraceErrorRate
	}
	if cfg.TraceSuccessRate == 0 {
		cfg.TraceSuccessRate = def.TraceSuccessRate
	}
	if cfg.TraceRateLimit == 0 {
		cfg.TraceRateLimit = def.TraceRateLimit
	}
	if cfg.LatencyThreshold == 0 {
		cfg.LatencyThreshold = def.LatencyThreshold
	}
	if cfg.MetricRate == 0 {
		cfg.MetricRate = def.MetricRate
	}
	if cfg.MetricTimeBucket == 0 {
		cfg.MetricTimeBucket = def.MetricTimeBucket
	}
	if cfg.LogRate == 0 {
		cfg.LogRate = def.LogRate
	}
	if cfg.BurstThreshold == 0 {
		cfg.BurstThreshold = def.BurstThreshold
	}
	if cfg.BurstRate == 0 {
		cfg.BurstRate = def.BurstRate
	}
	if cfg.BurstNormalRate == 0 {
		cfg.BurstNormalRate = def.BurstNormalRate
	}
	return &Stage{cfg: cfg}
}

// Run reduces the enriched set and computes sampling statistics. The
// strategy for each signal is resolved once per execution from a closed
// table; an unknown strategy name is a sampling failure.
func (s *Stage) Run(ctx context.Context, in *model.EnrichedSet) (*model.SampledSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageName, model.KindSamplingFailure, err)
	}

	sampleTrace, err := s.resolveTraceSampler()
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindSamplingFailure, err)
	}
	sampleMetric, err := s.resolveMetricSampler()
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindSamplingFailure, err)
	}
	sampleLog, err := s.resolveLogSampler(len(in.Signals.Logs))
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindSamplingFailure, err)
	}

	out := &model.SampledSet{
		Metrics:    map[string][]*model.MetricSeries{},
		Enrichment: in.Enrichment,
	}
	stats := &out.Stats

	stats.TracesBefore = len(in.Signals.Traces)
	kept := 0
	for _, trace := range in.Signals.Traces {
		if s.cfg.TraceStrategy == TraceRateLimited && kept >= s.cfg.TraceRateLimit {
			break
		}
		if sampleTrace(trace) {
			out.Traces = append(out.Traces, trace)
			kept++
		}
	}
	stats.TracesAfter = len(out.Traces)

	for name, series := range in.Signals.Metrics {
		for _, ms := range series {
			stats.MetricsBefore++
			if sampleMetric(ms) {
				out.Metrics[name] = append(out.Metrics[name], ms)
				stats.MetricsAfter++
			}
		}
	}

	stats.LogsBefore = len(in.Signals.Logs)
	for _, record := range in.Signals.Logs {
		if sampleLog(record) {
			out.Logs = append(out.Logs, record)
		}
	}
	stats.LogsAfter = len(out.Logs)

	stats.TraceRate = rate(stats.TracesAfter, stats.TracesBefore)
	stats.MetricRate = rate(stats.MetricsAfter, stats.MetricsBefore)
	stats.LogRate = rate(stats.LogsAfter, stats.LogsBefore)
	before := stats.TracesBefore + stats.MetricsBefore + stats.LogsBefore
	after := stats.TracesAfter + stats.MetricsAfter + stats.LogsAfter
	if before > 0 {
		stats.DataReductionPct = 100 * float64(before-after) / float64(before)
	}

	metrics.SamplingKept.WithLabelValues("traces").Add(float64(stats.TracesAfter))
	metrics.SamplingDropped.WithLabelValues("traces").Add(float64(stats.TracesBefore - stats.TracesAfter))
	metrics.SamplingKept.WithLabelValues("metrics").Add(float64(stats.MetricsAfter))
	metrics.SamplingDropped.WithLabelValues("metrics").Add(float64(stats.MetricsBefore - stats.MetricsAfter))
	metrics.SamplingKept.WithLabelValues("logs").Add(float64(stats.LogsAfter))
	metrics.SamplingDropped.WithLabelValues("logs").Add(float64(stats.LogsBefore - stats.LogsAfter))

	return out, nil
}

func rate(after, before int) float64 {
	if before == 0 {
		return 1
	}
	return float64(after) / float64(before)
}

func (s *Stage) resolveTraceSampler() (traceSampler, error) {
	switch s.cfg.TraceStrategy {
	case TraceProbabilistic:
		return func(t *model.Trace) bool {
			return keep(t.TraceID, s.cfg.TraceRate)
		}, nil
	case TraceTailBased:
		return func(t *model.Trace) bool {
			switch {
			case t.HasError():
				return keep(t.TraceID, s.cfg.TraceErrorRate)
			case time.Duration(t.Duration) > s.cfg.LatencyThreshold:
				return keep(t.TraceID, clampRate(2*s.cfg.TraceRate))
			default:
				return keep(t.TraceID, s.cfg.TraceRate)
			}
		}, nil
	case TraceErrorBiased:
		return func(t *model.Trace) bool {
			if t.HasError() {
				return keep(t.TraceID, s.cfg.TraceErrorRate)
			}
			return keep(t.TraceID, s.cfg.TraceSuccessRate)
		}, nil
	case TraceServiceAware:
		return func(t *model.Trace) bool {
			r, ok := s.cfg.ServiceRates[t.RootService()]
			if !ok {
				r = s.cfg.TraceRate
			}
			return keep(t.TraceID, r)
		}, nil
	case TraceRateLimited:
		// Hard cap on count, no randomness; the cap itself is enforced
		// by Run.
		return func(*model.Trace) bool { return true }, nil
	default:
		return nil, fmt.Errorf("unknown trace sampling strategy %q", s.cfg.TraceStrategy)
	}
}

func (s *Stage) resolveMetricSampler() (metricSampler, error) {
	switch s.cfg.MetricStrategy {
	case MetricTimeBased:
		bucket := uint64(s.cfg.MetricTimeBucket.Nanoseconds())
		return func(ms *model.MetricSeries) bool {
			var t uint64
			if len(ms.Points) > 0 {
				t = ms.Points[0].TimeUnixNano
			}
			key := fmt.Sprintf("%s:%d", ms.Name, t/bucket)
			return keep(key, s.cfg.MetricRate)
		}, nil
	case MetricValueBased:
		return func(ms *model.MetricSeries) bool {
			threshold := s.cfg.MetricThresholds[ms.Name]
			for _, p := range ms.Points {
				if p.Value > threshold {
					return true
				}
			}
			return false
		}, nil
	case MetricStatistical:
		return func(ms *model.MetricSeries) bool {
			return keep(ms.Name, s.cfg.MetricRate)
		}, nil
	default:
		return nil, fmt.Errorf("unknown metric sampling strategy %q", s.cfg.MetricStrategy)
	}
}

// defaultSeverityRates apply when the config table has no entry. ERROR
// and FATAL always pass.
var defaultSeverityRates = map[string]float64{
	"TRACE": 0.01,
	"DEBUG": 0.01,
	"INFO":  0.1,
	"WARN":  0.5,
	"ERROR": 1.0,
	"FATAL": 1.0,
}

func (s *Stage) resolveLogSampler(volume int) (logSampler, error) {
	switch s.cfg.LogStrategy {
	case LogSeverityBased:
		return func(r *model.LogRecord) bool {
			sampleRate, ok := s.cfg.SeverityRates[r.SeverityText]
			if !ok {
				if sampleRate, ok = defaultSeverityRates[r.SeverityText]; !ok {
					sampleRate = s.cfg.LogRate
				}
			}
			return keep(logIdentity(r), sampleRate)
		}, nil
	case LogProbabilistic:
		return func(r *model.LogRecord) bool {
			return keep(logIdentity(r), s.cfg.LogRate)
		}, nil
	case LogBurstDetection:
		sampleRate := s.cfg.BurstNormalRate
		if volume > s.cfg.BurstThreshold {
			sampleRate = s.cfg.BurstRate
		}
		return func(r *model.LogRecord) bool {
			return keep(logIdentity(r), sampleRate)
		}, nil
	default:
		return nil, fmt.Errorf("unknown log sampling strategy %q", s.cfg.LogStrategy)
	}
}

func logIdentity(r *model.LogRecord) string {
	return fmt.Sprintf("%d:%s:%v", r.Timestamp, r.Service, r.Body)
}

// keep decides deterministically: hash(id) mod 1000 < rate*1000.
func keep(id string, rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()%1000 < uint64(rate*1000)
}

func clampRate(r float64) float64 {
	if r > 1 {
		return 1
	}
	return r
}
