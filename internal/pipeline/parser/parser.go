// Package parser walks the resource -> scope -> record hierarchy of an
// ingested envelope, groups spans into traces, and validates structural
// invariants. Parsing is best-effort: invalid items are counted and
// described in the validation report, never fatal.
package parser

import (
	"context"
	"fmt"
	"sort"

	"github.com/telhawk-systems/otelflow/internal/otlp"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage name used in errors and telemetry events.
const StageName = "parser"

// Stage extracts typed signals from an envelope.
type Stage struct{}

// New creates a parser stage.
func New() *Stage {
	return &Stage{}
}

// Run extracts traces, metrics, and logs. Only an unexpected internal
// fault returns an error; structural problems land in the validation
// report.
func (s *Stage) Run(ctx context.Context, env *model.Envelope) (*model.SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageName, model.KindParsingStructural, err)
	}
	if env == nil || env.Data == nil {
		return nil, model.NewStageError(StageName, model.KindParsingStructural,
			fmt.Errorf("nil envelope"))
	}

	set := &model.SignalSet{
		Metrics: map[string][]*model.MetricSeries{},
	}

	var traceErrs, metricErrs, logErrs []string

	spans, traceErrs := extractSpans(env.Data)
	set.Traces = groupTraces(spans, &traceErrs)
	set.Metrics, metricErrs = extractMetrics(env.Data)
	set.Logs, logErrs = extractLogs(env.Data)

	set.Validation = model.Validation{
		Traces:  model.SignalValidation{Valid: len(traceErrs) == 0, Errors: traceErrs},
		Metrics: model.SignalValidation{Valid: len(metricErrs) == 0, Errors: metricErrs},
		Logs:    model.SignalValidation{Valid: len(logErrs) == 0, Errors: logErrs},
	}
	return set, nil
}

// extractSpans flattens every span with its resource and scope context.
func extractSpans(data map[string]any) ([]*model.Span, []string) {
	var spans []*model.Span
	var errs []string

	for _, resourceEntry := range otlp.AsSlice(data[otlp.KeyResourceSpans]) {
		rm := otlp.AsMap(resourceEntry)
		if rm == nil {
			errs = append(errs, "resourceSpans entry is not an object")
			continue
		}
		resAttrs := otlp.ResourceAttributes(rm)
		service := otlp.ServiceName(resAttrs)

		for _, scopeEntry := range otlp.AsSlice(rm[otlp.KeyScopeSpans]) {
			sm := otlp.AsMap(scopeEntry)
			if sm == nil {
				errs = append(errs, "scopeSpans entry is not an object")
				continue
			}
			scope := otlp.AsMap(sm["scope"])

			for _, rawSpan := range otlp.AsSlice(sm[otlp.KeySpans]) {
				spanMap := otlp.AsMap(rawSpan)
				if spanMap == nil {
					errs = append(errs, "span entry is not an object")
					continue
				}
				spans = append(spans, parseSpan(spanMap, service, resAttrs, scope))
			}
		}
	}
	return spans, errs
}

func parseSpan(m map[string]any, service string, resource, scope map[string]any) *model.Span {
	start := otlp.AsUint64(m["startTimeUnixNano"])
	end := otlp.AsUint64(m["endTimeUnixNano"])

	span := &model.Span{
		TraceID:      otlp.AsString(m["traceId"]),
		SpanID:       otlp.AsString(m["spanId"]),
		ParentSpanID: otlp.AsString(m["parentSpanId"]),
		Name:         otlp.AsString(m["name"]),
		Kind:         otlp.AsInt(m["kind"]),
		StartTime:    start,
		EndTime:      end,
		Service:      service,
		Attributes:   otlp.Attributes(otlp.AsSlice(m["attributes"])),
		Events:       otlp.AsSlice(m["events"]),
		Resource:     resource,
		Scope:        scope,
	}
	if end > start && start > 0 {
		span.Duration = end - start
	}
	if status := otlp.AsMap(m["status"]); status != nil {
		span.StatusCode = otlp.AsInt(status["code"])
		span.StatusMessage = otlp.AsString(status["message"])
	}
	return span
}

// groupTraces folds spans into traces keyed by trace id, sorted by start
// time. The root is the span with no parent; trace duration is
// max(end)-min(start) over the group, or 0 when a bound is absent.
func groupTraces(spans []*model.Span, errs *[]string) []*model.Trace {
	groups := map[string][]*model.Span{}
	var order []string
	for _, span := range spans {
		if span.TraceID == "" {
			*errs = append(*errs, fmt.Sprintf("span %q has no trace_id", span.SpanID))
			continue
		}
		if _, seen := groups[span.TraceID]; !seen {
			order = append(order, span.TraceID)
		}
		groups[span.TraceID] = append(groups[span.TraceID], span)
	}

	traces := make([]*model.Trace, 0, len(groups))
	for _, traceID := range order {
		group := groups[traceID]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].StartTime < group[j].StartTime
		})

		trace := &model.Trace{
			TraceID:   traceID,
			Spans:     group,
			SpanCount: len(group),
		}

		var minStart, maxEnd uint64
		services := map[string]bool{}
		for _, span := range group {
			if trace.Root == nil && span.IsRoot() {
				trace.Root = span
			}
			if span.StartTime > 0 && (minStart == 0 || span.StartTime < minStart) {
				minStart = span.StartTime
			}
			if span.EndTime > maxEnd {
				maxEnd = span.EndTime
			}
			if !services[span.Service] {
				services[span.Service] = true
				trace.Services = append(trace.Services, span.Service)
			}
		}
		trace.StartTime = minStart
		trace.EndTime = maxEnd
		if minStart > 0 && maxEnd > minStart {
			trace.Duration = maxEnd - minStart
		}
		traces = append(traces, trace)
	}
	return traces
}

// extractMetrics flattens every metric series grouped by metric name.
func extractMetrics(data map[string]any) (map[string][]*model.MetricSeries, []string) {
	out := map[string][]*model.MetricSeries{}
	var errs []string

	for _, resourceEntry := range otlp.AsSlice(data[otlp.KeyResourceMetrics]) {
		rm := otlp.AsMap(resourceEntry)
		if rm == nil {
			errs = append(errs, "resourceMetrics entry is not an object")
			continue
		}
		resAttrs := otlp.ResourceAttributes(rm)
		service := otlp.ServiceName(resAttrs)

		for _, scopeEntry := range otlp.AsSlice(rm[otlp.KeyScopeMetrics]) {
			sm := otlp.AsMap(scopeEntry)
			if sm == nil {
				errs = append(errs, "scopeMetrics entry is not an object")
				continue
			}
			for _, rawMetric := range otlp.AsSlice(sm[otlp.KeyMetrics]) {
				metricMap := otlp.AsMap(rawMetric)
				if metricMap == nil {
					errs = append(errs, "metric entry is not an object")
					continue
				}
				series := parseMetric(metricMap, service, resAttrs)
				if series.Name == "" {
					errs = append(errs, "metric entry has no name")
					continue
				}
				out[series.Name] = append(out[series.Name], series)
			}
		}
	}
	return out, errs
}

func parseMetric(m map[string]any, service string, resource map[string]any) *model.MetricSeries {
	series := &model.MetricSeries{
		Name:     otlp.AsString(m["name"]),
		Unit:     otlp.AsString(m["unit"]),
		Service:  service,
		Resource: resource,
	}
	for _, metricType := range []string{"gauge", "sum", "histogram", "summary"} {
		body := otlp.AsMap(m[metricType])
		if body == nil {
			continue
		}
		series.Type = metricType
		for _, rawPoint := range otlp.AsSlice(body["dataPoints"]) {
			pm := otlp.AsMap(rawPoint)
			if pm == nil {
				continue
			}
			point := model.MetricPoint{
				TimeUnixNano: otlp.AsUint64(pm["timeUnixNano"]),
				Attributes:   otlp.Attributes(otlp.AsSlice(pm["attributes"])),
			}
			if v, ok := pm["asDouble"]; ok {
				point.Value = otlp.AsFloat64(v)
			} else if v, ok := pm["asInt"]; ok {
				point.Value = otlp.AsFloat64(v)
			} else if v, ok := pm["sum"]; ok {
				// histogram/summary points report their sum
				point.Value = otlp.AsFloat64(v)
			}
			series.Points = append(series.Points, point)
		}
		break
	}
	return series
}

// extractLogs flattens every log record. A record without a timestamp or
// body is described in the validation errors but still returned.
func extractLogs(data map[string]any) ([]*model.LogRecord, []string) {
	var logs []*model.LogRecord
	var errs []string

	for _, resourceEntry := range otlp.AsSlice(data[otlp.KeyResourceLogs]) {
		rm := otlp.AsMap(resourceEntry)
		if rm == nil {
			errs = append(errs, "resourceLogs entry is not an object")
			continue
		}
		resAttrs := otlp.ResourceAttributes(rm)
		service := otlp.ServiceName(resAttrs)

		for _, scopeEntry := range otlp.AsSlice(rm[otlp.KeyScopeLogs]) {
			sm := otlp.AsMap(scopeEntry)
			if sm == nil {
				errs = append(errs, "scopeLogs entry is not an object")
				continue
			}
			for _, rawLog := range otlp.AsSlice(sm[otlp.KeyLogRecords]) {
				lm := otlp.AsMap(rawLog)
				if lm == nil {
					errs = append(errs, "logRecord entry is not an object")
					continue
				}
				record := &model.LogRecord{
					Timestamp:      otlp.AsUint64(lm["timeUnixNano"]),
					SeverityText:   otlp.AsString(lm["severityText"]),
					SeverityNumber: otlp.AsInt(lm["severityNumber"]),
					Body:           otlp.AnyValue(lm["body"]),
					Service:        service,
					Attributes:     otlp.Attributes(otlp.AsSlice(lm["attributes"])),
					Resource:       resAttrs,
				}
				if record.Timestamp == 0 {
					errs = append(errs, "log record has no timestamp")
				}
				if record.Body == nil {
					errs = append(errs, "log record has no body")
				}
				logs = append(logs, record)
			}
		}
	}
	return logs, errs
}
