package model

import "time"

// Status is the overall outcome of one pipeline execution.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
)

// PipelineSummary aggregates record flow across the whole execution.
type PipelineSummary struct {
	RecordsIngested  int       `json:"records_ingested"`
	RecordsProcessed int       `json:"records_processed"`
	RecordsDelivered int       `json:"records_delivered"`
	SuccessRate      float64   `json:"success_rate"`
	BackendsUsed     []Backend `json:"backends_used"`
}

// ErrorSummary classifies delivery and stage errors.
type ErrorSummary struct {
	TotalErrors int            `json:"total_errors"`
	ByStage     map[string]int `json:"by_stage,omitempty"`
	Critical    int            `json:"critical"`
	Recoverable int            `json:"recoverable"`
}

// LineageRecord tracks data loss through one backend.
type LineageRecord struct {
	RecordsIn   int     `json:"records_in"`
	RecordsOut  int     `json:"records_out"`
	RecordsLost int     `json:"records_lost"`
	Efficiency  float64 `json:"efficiency"`
}

// PerformanceMetrics summarizes throughput and latency.
type PerformanceMetrics struct {
	TotalDuration    time.Duration            `json:"total_duration_ms"`
	StageDurations   map[string]time.Duration `json:"stage_durations_ms,omitempty"`
	ThroughputPerSec float64                  `json:"throughput_per_sec"`
	BytesProcessed   int                      `json:"bytes_processed"`
}

// QualityReport scores the execution's data quality in [0,1].
type QualityReport struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Timeliness   float64 `json:"timeliness"`
	Score        float64 `json:"score"`
}

// ExecutionReport is the pipeline's terminal aggregate and its only
// externally durable artifact. Immutable once built.
type ExecutionReport struct {
	ExecutionID     string                      `json:"execution_id"`
	TraceID         string                      `json:"trace_id"`
	Status          Status                      `json:"status"`
	Summary         PipelineSummary             `json:"summary"`
	Backends        map[Backend]*DeliveryResult `json:"backends"`
	Errors          ErrorSummary                `json:"error_summary"`
	Lineage         map[Backend]LineageRecord   `json:"lineage"`
	Performance     PerformanceMetrics          `json:"performance"`
	Quality         QualityReport               `json:"quality"`
	Recommendations []string                    `json:"recommendations,omitempty"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}
