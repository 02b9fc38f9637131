package model

import "time"

// Backend identifies a delivery target with its own wire format.
type Backend string

const (
	BackendJaeger        Backend = "jaeger"
	BackendPrometheus    Backend = "prometheus"
	BackendElasticsearch Backend = "elasticsearch"
)

// Backends lists all delivery targets in a stable order.
func Backends() []Backend {
	return []Backend{BackendJaeger, BackendPrometheus, BackendElasticsearch}
}

// JaegerTag is a typed key/value pair on a span or process.
type JaegerTag struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // string, int64, float64, bool, binary
	Value any    `json:"value"`
}

// JaegerLog is a timestamped set of fields converted from an OTLP span event.
type JaegerLog struct {
	Timestamp uint64      `json:"timestamp"` // microseconds
	Fields    []JaegerTag `json:"fields"`
}

// JaegerSpan is one span in Jaeger wire shape. Times are microseconds.
type JaegerSpan struct {
	TraceID       string      `json:"traceID"`
	SpanID        string      `json:"spanID"`
	ParentSpanID  string      `json:"parentSpanID,omitempty"`
	OperationName string      `json:"operationName"`
	StartTime     uint64      `json:"startTime"`
	Duration      uint64      `json:"duration"`
	Tags          []JaegerTag `json:"tags,omitempty"`
	Logs          []JaegerLog `json:"logs,omitempty"`
	ProcessID     string      `json:"processID"`
}

// JaegerProcess identifies the service a group of spans belongs to.
type JaegerProcess struct {
	ServiceName string      `json:"serviceName"`
	Tags        []JaegerTag `json:"tags,omitempty"`
}

// JaegerTrace is one trace with its process table.
type JaegerTrace struct {
	TraceID   string                   `json:"traceID"`
	Spans     []JaegerSpan             `json:"spans"`
	Processes map[string]JaegerProcess `json:"processes"`
}

// JaegerBatch is the Jaeger transformer output.
type JaegerBatch struct {
	Data  []JaegerTrace `json:"data"`
	Total int           `json:"total"`
}

// PrometheusSample is one flattened metric sample.
type PrometheusSample struct {
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	TimestampMS int64             `json:"timestamp_ms"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// PrometheusBatch is the Prometheus transformer output. The structure is
// intentionally minimal; it is the format adapter point for remote write.
type PrometheusBatch struct {
	Metrics   []PrometheusSample `json:"metrics"`
	Timestamp int64              `json:"timestamp"`
}

// ElasticDocument is one flattened document for bulk indexing.
type ElasticDocument map[string]any

// ElasticsearchBatch is the Elasticsearch transformer output.
type ElasticsearchBatch struct {
	Documents []ElasticDocument `json:"documents"`
}

// Encoded bundles the three independent backend encodings of one
// SampledSet.
type Encoded struct {
	Jaeger        *JaegerBatch
	Prometheus    *PrometheusBatch
	Elasticsearch *ElasticsearchBatch
	SampledCount  int
}

// DeliveryConfig describes how batches for one backend are delivered.
type DeliveryConfig struct {
	Endpoint      string            `json:"endpoint"`
	Headers       map[string]string `json:"headers,omitempty"`
	Timeout       time.Duration     `json:"timeout_ms"`
	RetryAttempts int               `json:"retry_attempts"`
}

// BatchMetadata carries accounting for one delivery batch.
type BatchMetadata struct {
	Count     int       `json:"count"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryBatch is one size-bounded chunk of encoded data, created by the
// batcher and consumed exactly once by the matching sink.
type DeliveryBatch struct {
	BatchID  string         `json:"batch_id"`
	Backend  Backend        `json:"backend"`
	Data     any            `json:"data"`
	Body     []byte         `json:"-"` // serialized wire body
	Metadata BatchMetadata  `json:"metadata"`
	Delivery DeliveryConfig `json:"delivery_config"`
}

// DeliveryResult is the sink's success report for one backend.
type DeliveryResult struct {
	Backend      Backend       `json:"backend"`
	RecordsSent  int           `json:"records_sent"`
	BatchesSent  int           `json:"batches_sent"`
	BytesSent    int           `json:"bytes_sent"`
	DeliveryTime time.Duration `json:"delivery_time_ms"`
	RetryCount   int           `json:"retry_count"`
	Endpoint     string        `json:"endpoint"`
}

// BackendOutcome is either a successful delivery result or a stage error
// for one backend. Sink failures never halt sibling backends.
type BackendOutcome struct {
	Backend Backend         `json:"backend"`
	Result  *DeliveryResult `json:"result,omitempty"`
	Err     *StageError     `json:"error,omitempty"`
}
