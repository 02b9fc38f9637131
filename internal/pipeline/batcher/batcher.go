// Package batcher chunks encoded backend data into size-bounded delivery
// batches with backend-specific headers and delivery configuration.
package batcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage name used in errors and telemetry events.
const StageName = "batcher"

// BackendConfig describes one backend's batching and delivery settings.
type BackendConfig struct {
	Endpoint      string
	BatchSize     int
	Timeout       time.Duration
	RetryAttempts int
	AuthType      string // "", "bearer", "basic", "api_key"
	AuthToken     string
	Index         string // elasticsearch only
}

// Config holds per-backend settings; zero fields fall back to the
// documented defaults.
type Config struct {
	Jaeger        BackendConfig
	Prometheus    BackendConfig
	Elasticsearch BackendConfig
}

// DefaultConfig returns the documented batching defaults.
func DefaultConfig() Config {
	return Config{
		Jaeger: BackendConfig{
			Endpoint:      "http://localhost:14268/api/traces",
			BatchSize:     1000,
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
		},
		Prometheus: BackendConfig{
			Endpoint:      "http://localhost:9090/api/v1/write",
			BatchSize:     1000,
			Timeout:       5 * time.Second,
			RetryAttempts: 2,
		},
		Elasticsearch: BackendConfig{
			Endpoint:      "http://localhost:9200/_bulk",
			BatchSize:     500,
			Timeout:       15 * time.Second,
			RetryAttempts: 3,
			Index:         "otelflow",
		},
	}
}

// Stage builds delivery batches.
type Stage struct {
	cfg Config
}

// New creates a batcher stage, filling in defaults for zero fields.
func New(cfg Config) *Stage {
	def := DefaultConfig()
	cfg.Jaeger = mergeBackend(cfg.Jaeger, def.Jaeger)
	cfg.Prometheus = mergeBackend(cfg.Prometheus, def.Prometheus)
	cfg.Elasticsearch = mergeBackend(cfg.Elasticsearch, def.Elasticsearch)
	return &Stage{cfg: cfg}
}

func mergeBackend(cfg, def BackendConfig) BackendConfig {
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.Index == "" {
		cfg.Index = def.Index
	}
	return cfg
}

// Run chunks each backend's encoded data. The sum of batch counts per
// backend always equals the number of items routed to that backend.
func (s *Stage) Run(ctx context.Context, enc *model.Encoded) (map[model.Backend][]*model.DeliveryBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageName, model.KindTransformFailure, err)
	}

	out := map[model.Backend][]*model.DeliveryBatch{}

	jaeger, err := s.jaegerBatches(enc.Jaeger)
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindTransformFailure, err)
	}
	out[model.BackendJaeger] = jaeger

	prom, err := s.prometheusBatches(enc.Prometheus)
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindTransformFailure, err)
	}
	out[model.BackendPrometheus] = prom

	elastic, err := s.elasticBatches(enc.Elasticsearch)
	if err != nil {
		return nil, model.NewStageError(StageName, model.KindTransformFailure, err)
	}
	out[model.BackendElasticsearch] = elastic

	return out, nil
}

func (s *Stage) jaegerBatches(batch *model.JaegerBatch) ([]*model.DeliveryBatch, error) {
	if batch == nil {
		return nil, nil
	}
	var out []*model.DeliveryBatch
	for start := 0; start < len(batch.Data); start += s.cfg.Jaeger.BatchSize {
		end := min(start+s.cfg.Jaeger.BatchSize, len(batch.Data))
		chunk := batch.Data[start:end]
		body, err := json.Marshal(map[string]any{"data": chunk, "total": len(chunk)})
		if err != nil {
			return nil, fmt.Errorf("failed to serialize jaeger batch: %w", err)
		}
		out = append(out, s.newBatch(model.BackendJaeger, s.cfg.Jaeger, chunk, body, len(chunk), "application/json"))
	}
	return out, nil
}

func (s *Stage) prometheusBatches(batch *model.PrometheusBatch) ([]*model.DeliveryBatch, error) {
	if batch == nil {
		return nil, nil
	}
	var out []*model.DeliveryBatch
	for start := 0; start < len(batch.Metrics); start += s.cfg.Prometheus.BatchSize {
		end := min(start+s.cfg.Prometheus.BatchSize, len(batch.Metrics))
		chunk := batch.Metrics[start:end]
		body, err := json.Marshal(map[string]any{"metrics": chunk, "timestamp": batch.Timestamp})
		if err != nil {
			return nil, fmt.Errorf("failed to serialize prometheus batch: %w", err)
		}
		out = append(out, s.newBatch(model.BackendPrometheus, s.cfg.Prometheus, chunk, body, len(chunk), "application/json"))
	}
	return out, nil
}

// elasticBatches serializes each chunk as newline-delimited JSON with one
// index action line per document and a trailing newline.
func (s *Stage) elasticBatches(batch *model.ElasticsearchBatch) ([]*model.DeliveryBatch, error) {
	if batch == nil {
		return nil, nil
	}
	var out []*model.DeliveryBatch
	for start := 0; start < len(batch.Documents); start += s.cfg.Elasticsearch.BatchSize {
		end := min(start+s.cfg.Elasticsearch.BatchSize, len(batch.Documents))
		chunk := batch.Documents[start:end]
		body, err := bulkBody(chunk, s.cfg.Elasticsearch.Index)
		if err != nil {
			return nil, err
		}
		out = append(out, s.newBatch(model.BackendElasticsearch, s.cfg.Elasticsearch, chunk, body, len(chunk), "application/x-ndjson"))
	}
	return out, nil
}

func bulkBody(docs []model.ElasticDocument, index string) ([]byte, error) {
	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{"_index": index}}
		if id, ok := doc["_id"]; ok {
			action["index"].(map[string]any)["_id"] = id
		}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize bulk action: %w", err)
		}
		source := make(model.ElasticDocument, len(doc))
		for k, v := range doc {
			if k != "_id" {
				source[k] = v
			}
		}
		docLine, err := json.Marshal(source)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize bulk document: %w", err)
		}
		buf.Write(actionLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (s *Stage) newBatch(backend model.Backend, cfg BackendConfig, data any, body []byte, count int, contentType string) *model.DeliveryBatch {
	headers := map[string]string{"Content-Type": contentType}
	switch cfg.AuthType {
	case "bearer":
		headers["Authorization"] = "Bearer " + cfg.AuthToken
	case "basic":
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.AuthToken))
	case "api_key":
		headers["Authorization"] = "ApiKey " + cfg.AuthToken
	}

	return &model.DeliveryBatch{
		BatchID: uuid.New().String(),
		Backend: backend,
		Data:    data,
		Body:    body,
		Metadata: model.BatchMetadata{
			Count:     count,
			SizeBytes: len(body),
			CreatedAt: time.Now().UTC(),
		},
		Delivery: model.DeliveryConfig{
			Endpoint:      cfg.Endpoint,
			Headers:       headers,
			Timeout:       cfg.Timeout,
			RetryAttempts: cfg.RetryAttempts,
		},
	}
}
