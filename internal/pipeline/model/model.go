// Package model holds the data structures passed between pipeline stages.
// Every value is created by one stage and consumed read-only by the next;
// fan-out stages each receive the same immutable input and return distinct
// outputs merged by the following stage.
package model

// Envelope is the output of ingestion: a normalized OTLP-shaped payload
// plus metadata and counts. TraceID is the execution correlation key and
// threads through every later stage.
type Envelope struct {
	Data     map[string]any   `json:"data"`
	Metadata EnvelopeMetadata `json:"metadata"`
	Stats    EnvelopeStats    `json:"stats"`
	TraceID  string           `json:"trace_id"`
}

type EnvelopeMetadata struct {
	Source        string `json:"source"`
	Format        string `json:"format"`
	SchemaVersion string `json:"schema_version"`
}

type EnvelopeStats struct {
	Records   int `json:"records_count"`
	SizeBytes int `json:"size_bytes"`
}

// Span is one timed operation extracted from the OTLP payload, with the
// resource and scope context it was found under.
type Span struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	Name          string         `json:"name"`
	Kind          int            `json:"kind"`
	StartTime     uint64         `json:"start_time_unix_nano"`
	EndTime       uint64         `json:"end_time_unix_nano"`
	Duration      uint64         `json:"duration_ns"`
	StatusCode    int            `json:"status_code"`
	StatusMessage string         `json:"status_message,omitempty"`
	Service       string         `json:"service"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Events        []any          `json:"events,omitempty"`
	Resource      map[string]any `json:"resource,omitempty"`
	Scope         map[string]any `json:"scope,omitempty"`
}

// IsRoot reports whether the span has no parent.
func (s *Span) IsRoot() bool { return s.ParentSpanID == "" }

// HasError reports whether the span carries OTLP status code ERROR.
func (s *Span) HasError() bool { return s.StatusCode == StatusCodeError }

// OTLP span status codes.
const (
	StatusCodeUnset = 0
	StatusCodeOK    = 1
	StatusCodeError = 2
)

// Trace is a group of spans sharing a trace id, ordered by start time.
// Duration is max(end_time)-min(start_time) over member spans, or 0 when
// either bound is absent.
type Trace struct {
	TraceID   string   `json:"trace_id"`
	Spans     []*Span  `json:"spans"`
	Root      *Span    `json:"root_span,omitempty"`
	SpanCount int      `json:"span_count"`
	StartTime uint64   `json:"start_time_unix_nano"`
	EndTime   uint64   `json:"end_time_unix_nano"`
	Duration  uint64   `json:"duration_ns"`
	Services  []string `json:"services"`
}

// HasError reports whether any member span carries status ERROR.
func (t *Trace) HasError() bool {
	for _, s := range t.Spans {
		if s.HasError() {
			return true
		}
	}
	return false
}

// RootService returns the root span's service, falling back to the first
// span's service when no root exists.
func (t *Trace) RootService() string {
	if t.Root != nil {
		return t.Root.Service
	}
	if len(t.Spans) > 0 {
		return t.Spans[0].Service
	}
	return "unknown"
}

// MetricPoint is one data point of a metric series.
type MetricPoint struct {
	Value        float64        `json:"value"`
	TimeUnixNano uint64         `json:"time_unix_nano"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// MetricSeries is one metric stream under a resource/scope.
type MetricSeries struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"` // gauge, sum, histogram, summary
	Unit       string         `json:"unit,omitempty"`
	Service    string         `json:"service"`
	Points     []MetricPoint  `json:"points"`
	Resource   map[string]any `json:"resource,omitempty"`
}

// LogRecord is one log entry with its resource context.
type LogRecord struct {
	Timestamp      uint64         `json:"time_unix_nano"`
	SeverityText   string         `json:"severity_text,omitempty"`
	SeverityNumber int            `json:"severity_number,omitempty"`
	Body           any            `json:"body"`
	Service        string         `json:"service"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	Resource       map[string]any `json:"resource,omitempty"`
}

// SignalValidation records structural validity for one signal type.
type SignalValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validation is the parser's per-signal structural report. Invalid items
// are counted and described; they never abort parsing.
type Validation struct {
	Traces  SignalValidation `json:"traces"`
	Metrics SignalValidation `json:"metrics"`
	Logs    SignalValidation `json:"logs"`
}

// SignalSet is the parser output: extracted traces, metrics grouped by
// name, logs, and the validation report.
type SignalSet struct {
	Traces     []*Trace                   `json:"traces"`
	Metrics    map[string][]*MetricSeries `json:"metrics"`
	Logs       []*LogRecord               `json:"logs"`
	Validation Validation                 `json:"validation"`
}

// RecordCount returns the total number of extracted records.
func (s *SignalSet) RecordCount() int {
	n := len(s.Traces) + len(s.Logs)
	for _, series := range s.Metrics {
		n += len(series)
	}
	return n
}

// EnrichmentContext is the merged output of the three enrichers. Merge
// order is service, then resource, then environment, last writer wins on
// a colliding key.
type EnrichmentContext struct {
	Service     map[string]map[string]any `json:"service"`
	Resource    map[string]any            `json:"resource"`
	Environment map[string]any            `json:"environment"`
}

// EnrichedSet carries the parsed signals forward untouched alongside the
// merged enrichment context.
type EnrichedSet struct {
	Signals    *SignalSet        `json:"signals"`
	Enrichment EnrichmentContext `json:"enrichment"`
}

// SamplingStats records counts before and after sampling per signal plus
// the overall data reduction.
type SamplingStats struct {
	TracesBefore     int     `json:"traces_before"`
	TracesAfter      int     `json:"traces_after"`
	MetricsBefore    int     `json:"metrics_before"`
	MetricsAfter     int     `json:"metrics_after"`
	LogsBefore       int     `json:"logs_before"`
	LogsAfter        int     `json:"logs_after"`
	TraceRate        float64 `json:"trace_rate"`
	MetricRate       float64 `json:"metric_rate"`
	LogRate          float64 `json:"log_rate"`
	DataReductionPct float64 `json:"data_reduction_pct"`
}

// SampledSet is the reduced working set produced by the sampler.
type SampledSet struct {
	Traces     []*Trace                   `json:"traces"`
	Metrics    map[string][]*MetricSeries `json:"metrics"`
	Logs       []*LogRecord               `json:"logs"`
	Stats      SamplingStats              `json:"sampling_stats"`
	Enrichment EnrichmentContext          `json:"enrichment"`
}

// RecordCount returns the total number of sampled records.
func (s *SampledSet) RecordCount() int {
	n := len(s.Traces) + len(s.Logs)
	for _, series := range s.Metrics {
		n += len(series)
	}
	return n
}
