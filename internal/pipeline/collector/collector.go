// Package collector aggregates delivery outcomes into the execution
// report: status, lineage, quality, performance, and recommendations.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage name used in errors and telemetry events.
const StageName = "result_collector"

// criticalPatterns classify a delivery error as critical rather than
// recoverable.
var criticalPatterns = []string{
	"connection failed",
	"connection refused",
	"authentication failed",
	"timeout",
	"deadline exceeded",
}

// Input bundles everything the collector aggregates.
type Input struct {
	ExecutionID    string
	Envelope       *model.Envelope
	Signals        *model.SignalSet
	Sampled        *model.SampledSet
	Outcomes       []*model.BackendOutcome
	StageDurations map[string]time.Duration
	TotalDuration  time.Duration
}

// Stage builds execution reports.
type Stage struct{}

// New creates a result collector stage.
func New() *Stage {
	return &Stage{}
}

// Run produces the terminal execution report. It fails only on an
// internal fault; missing inputs from failed upstream stages are treated
// as zero flow.
func (s *Stage) Run(ctx context.Context, in Input) (*model.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageName, model.KindResultCollectionFailure, err)
	}
	if in.Envelope == nil {
		return nil, model.NewStageError(StageName, model.KindResultCollectionFailure,
			fmt.Errorf("missing ingestion envelope"))
	}

	report := &model.ExecutionReport{
		ExecutionID: in.ExecutionID,
		TraceID:     in.Envelope.TraceID,
		Backends:    map[model.Backend]*model.DeliveryResult{},
		Lineage:     map[model.Backend]model.LineageRecord{},
		GeneratedAt: time.Now().UTC(),
	}

	processed := 0
	if in.Sampled != nil {
		processed = in.Sampled.RecordCount()
	}

	delivered := 0
	succeeded := 0
	critical := 0
	byStage := map[string]int{}
	for _, outcome := range in.Outcomes {
		if outcome.Result != nil {
			succeeded++
			delivered += outcome.Result.RecordsSent
			report.Backends[outcome.Backend] = outcome.Result
			report.Summary.BackendsUsed = append(report.Summary.BackendsUsed, outcome.Backend)
			report.Lineage[outcome.Backend] = lineage(processed, outcome.Result.RecordsSent)
			continue
		}
		if outcome.Err != nil {
			byStage[outcome.Err.Stage]++
			if isCritical(outcome.Err.Message) {
				critical++
			}
			report.Lineage[outcome.Backend] = lineage(processed, 0)
		}
	}
	sort.Slice(report.Summary.BackendsUsed, func(i, j int) bool {
		return report.Summary.BackendsUsed[i] < report.Summary.BackendsUsed[j]
	})

	totalErrors := len(in.Outcomes) - succeeded
	report.Errors = model.ErrorSummary{
		TotalErrors: totalErrors,
		ByStage:     byStage,
		Critical:    critical,
		Recoverable: totalErrors - critical,
	}

	report.Status = status(len(in.Outcomes), succeeded, critical)

	report.Summary.RecordsIngested = in.Envelope.Stats.Records
	report.Summary.RecordsProcessed = processed
	report.Summary.RecordsDelivered = delivered
	if len(in.Outcomes) > 0 {
		report.Summary.SuccessRate = float64(succeeded) / float64(len(in.Outcomes))
	}

	report.Performance = performance(in, delivered)
	report.Quality = quality(in, report)
	report.Recommendations = recommendations(report)
	return report, nil
}

// status is success when every backend succeeded, partial_success when at
// least one did, failed otherwise or when any critical error occurred.
func status(total, succeeded, critical int) model.Status {
	switch {
	case critical > 0:
		return model.StatusFailed
	case total > 0 && succeeded == total:
		return model.StatusSuccess
	case succeeded > 0:
		return model.StatusPartialSuccess
	default:
		return model.StatusFailed
	}
}

func isCritical(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range criticalPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func lineage(in, out int) model.LineageRecord {
	rec := model.LineageRecord{
		RecordsIn:   in,
		RecordsOut:  out,
		RecordsLost: in - out,
	}
	if in > 0 {
		rec.Efficiency = float64(out) / float64(in)
	}
	return rec
}

func performance(in Input, delivered int) model.PerformanceMetrics {
	perf := model.PerformanceMetrics{
		TotalDuration:  in.TotalDuration,
		StageDurations: in.StageDurations,
		BytesProcessed: in.Envelope.Stats.SizeBytes,
	}
	if in.TotalDuration > 0 {
		perf.ThroughputPerSec = float64(delivered) / in.TotalDuration.Seconds()
	}
	return perf
}

// quality scores completeness (delivered vs processed), accuracy
// (structurally valid signals), consistency (trace invariants held), and
// timeliness (execution latency), each in [0,1].
func quality(in Input, report *model.ExecutionReport) model.QualityReport {
	q := model.QualityReport{Completeness: 1, Accuracy: 1, Consistency: 1, Timeliness: 1}

	backends := len(in.Outcomes)
	if backends > 0 {
		q.Completeness = report.Summary.SuccessRate
	}

	if in.Signals != nil {
		valid := 0
		for _, ok := range []bool{
			in.Signals.Validation.Traces.Valid,
			in.Signals.Validation.Metrics.Valid,
			in.Signals.Validation.Logs.Valid,
		} {
			if ok {
				valid++
			}
		}
		q.Accuracy = float64(valid) / 3

		for _, trace := range in.Signals.Traces {
			if trace.StartTime > 0 && trace.EndTime > trace.StartTime &&
				trace.Duration != trace.EndTime-trace.StartTime {
				q.Consistency = 0
				break
			}
		}
	}

	switch {
	case in.TotalDuration > 10*time.Second:
		q.Timeliness = 0.5
	case in.TotalDuration > 5*time.Second:
		q.Timeliness = 0.8
	}

	q.Score = (q.Completeness + q.Accuracy + q.Consistency + q.Timeliness) / 4
	return q
}

// recommendations derives free-text optimization hints from threshold
// checks over the finished report.
func recommendations(report *model.ExecutionReport) []string {
	var recs []string
	if report.Performance.ThroughputPerSec > 0 && report.Performance.ThroughputPerSec < 1000 {
		recs = append(recs, fmt.Sprintf(
			"throughput %.0f records/s is below 1000; consider larger batch sizes or more concurrent pipelines",
			report.Performance.ThroughputPerSec))
	}
	if report.Performance.TotalDuration > 5*time.Second {
		recs = append(recs, fmt.Sprintf(
			"execution took %s; consider reducing payload size or raising sampling aggressiveness",
			report.Performance.TotalDuration.Round(time.Millisecond)))
	}
	if report.Quality.Completeness < 0.95 {
		recs = append(recs, fmt.Sprintf(
			"completeness %.2f is below 0.95; investigate failing backends",
			report.Quality.Completeness))
	}
	if report.Errors.Critical > 0 {
		recs = append(recs, "critical delivery errors occurred; verify backend connectivity and credentials")
	}
	return recs
}
