package transform

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Elasticsearch flattens the sampled set into a document list. The
// structure is intentionally minimal; documents carry enough identity
// for the bulk action lines.
func Elasticsearch(ctx context.Context, set *model.SampledSet) (*model.ElasticsearchBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageNameElasticsearch, model.KindTransformFailure, err)
	}

	batch := &model.ElasticsearchBatch{}
	for _, trace := range set.Traces {
		batch.Documents = append(batch.Documents, model.ElasticDocument{
			"_id":         "trace-" + NormalizeTraceID(trace.TraceID),
			"type":        "trace",
			"trace_id":    trace.TraceID,
			"span_count":  trace.SpanCount,
			"duration_ns": trace.Duration,
			"services":    trace.Services,
			"timestamp":   trace.StartTime,
			"has_error":   trace.HasError(),
		})
	}
	for name, series := range set.Metrics {
		for i, ms := range series {
			var last float64
			if len(ms.Points) > 0 {
				last = ms.Points[len(ms.Points)-1].Value
			}
			batch.Documents = append(batch.Documents, model.ElasticDocument{
				"_id":         fmt.Sprintf("metric-%s-%s-%d", name, ms.Service, i),
				"type":        "metric",
				"name":        name,
				"metric_type": ms.Type,
				"service":     ms.Service,
				"points":      len(ms.Points),
				"last_value":  last,
			})
		}
	}
	for i, record := range set.Logs {
		batch.Documents = append(batch.Documents, model.ElasticDocument{
			"_id":       fmt.Sprintf("log-%d-%d", record.Timestamp, i),
			"type":      "log",
			"timestamp": record.Timestamp,
			"severity":  record.SeverityText,
			"service":   record.Service,
			"body":      record.Body,
		})
	}
	return batch, nil
}
