package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Prometheus flattens sampled metric series with a batch timestamp. The
// structure is intentionally minimal; it is the adapter point for a
// remote-write encoder.
func Prometheus(ctx context.Context, set *model.SampledSet) (*model.PrometheusBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageNamePrometheus, model.KindTransformFailure, err)
	}

	batch := &model.PrometheusBatch{Timestamp: time.Now().UnixMilli()}
	for name, series := range set.Metrics {
		for _, ms := range series {
			for _, point := range ms.Points {
				sample := model.PrometheusSample{
					Name:        name,
					Value:       point.Value,
					TimestampMS: int64(point.TimeUnixNano / 1e6),
					Labels:      sampleLabels(ms, point),
				}
				batch.Metrics = append(batch.Metrics, sample)
			}
		}
	}
	return batch, nil
}

func sampleLabels(ms *model.MetricSeries, point model.MetricPoint) map[string]string {
	labels := map[string]string{"service": ms.Service}
	if ms.Unit != "" {
		labels["unit"] = ms.Unit
	}
	for k, v := range point.Attributes {
		labels[k] = fmt.Sprintf("%v", v)
	}
	return labels
}
