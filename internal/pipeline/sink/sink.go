// Package sink delivers batches to their backends over an abstract
// Transport collaborator. Failures are returned as structured results,
// never thrown past the sink boundary, so the result collector can still
// produce a partial report.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/telhawk-systems/otelflow/internal/metrics"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage names used in errors and telemetry events.
const (
	StageName              = "sink"
	StageNameJaeger        = "sink.jaeger"
	StageNamePrometheus    = "sink.prometheus"
	StageNameElasticsearch = "sink.elasticsearch"
)

// Transport sends one batch to its backend. Implementations own
// connection handling; the sink owns retries and accounting.
type Transport interface {
	Send(ctx context.Context, batch *model.DeliveryBatch) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, batch *model.DeliveryBatch) error

func (f TransportFunc) Send(ctx context.Context, batch *model.DeliveryBatch) error {
	return f(ctx, batch)
}

// StageNameFor returns the per-backend sink stage name.
func StageNameFor(backend model.Backend) string {
	switch backend {
	case model.BackendJaeger:
		return StageNameJaeger
	case model.BackendPrometheus:
		return StageNamePrometheus
	case model.BackendElasticsearch:
		return StageNameElasticsearch
	}
	return StageName
}

// Deliver sends every batch for one backend, retrying per the batch
// delivery config. It returns a BackendOutcome carrying either the
// delivery result or a structured stage error.
func Deliver(ctx context.Context, backend model.Backend, batches []*model.DeliveryBatch, transport Transport) *model.BackendOutcome {
	stage := StageNameFor(backend)
	started := time.Now()

	result := &model.DeliveryResult{Backend: backend}
	if len(batches) > 0 {
		result.Endpoint = batches[0].Delivery.Endpoint
	}

	for _, batch := range batches {
		retries, err := sendWithRetry(ctx, batch, transport)
		result.RetryCount += retries
		if err != nil {
			metrics.DeliveriesTotal.WithLabelValues(string(backend), "error").Inc()
			stageErr := model.NewStageError(stage, model.KindBackendDeliveryError, err).
				WithProcessingTime(time.Since(started))
			return &model.BackendOutcome{Backend: backend, Err: stageErr}
		}
		result.BatchesSent++
		result.RecordsSent += batch.Metadata.Count
		result.BytesSent += batch.Metadata.SizeBytes
	}
	result.DeliveryTime = time.Since(started)

	metrics.DeliveriesTotal.WithLabelValues(string(backend), "success").Inc()
	metrics.DeliveredBytes.WithLabelValues(string(backend)).Add(float64(result.BytesSent))
	metrics.DeliveryRetries.WithLabelValues(string(backend)).Add(float64(result.RetryCount))

	return &model.BackendOutcome{Backend: backend, Result: result}
}

// sendWithRetry attempts delivery up to 1 + RetryAttempts times with a
// short linear backoff, honoring context cancellation between attempts.
func sendWithRetry(ctx context.Context, batch *model.DeliveryBatch, transport Transport) (int, error) {
	attempts := batch.Delivery.RetryAttempts + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		sendCtx := ctx
		var cancel context.CancelFunc
		if batch.Delivery.Timeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, batch.Delivery.Timeout)
		}
		lastErr = transport.Send(sendCtx, batch)
		if cancel != nil {
			cancel()
		}
		if lastErr == nil {
			return attempt, nil
		}
	}
	return attempts - 1, fmt.Errorf("batch %s exhausted %d attempts: %w", batch.BatchID, attempts, lastErr)
}
