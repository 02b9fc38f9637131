package sink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

func testBatch(records int) *model.DeliveryBatch {
	return &model.DeliveryBatch{
		BatchID: "batch-1",
		Backend: model.BackendJaeger,
		Body:    []byte(`{"data":[]}`),
		Metadata: model.BatchMetadata{
			Count:     records,
			SizeBytes: 11,
		},
		Delivery: model.DeliveryConfig{
			Endpoint:      "http://localhost:14268/api/traces",
			RetryAttempts: 2,
			Timeout:       time.Second,
		},
	}
}

func TestDeliverSuccess(t *testing.T) {
	sent := 0
	transport := TransportFunc(func(ctx context.Context, batch *model.DeliveryBatch) error {
		sent++
		return nil
	})

	outcome := Deliver(context.Background(), model.BackendJaeger, []*model.DeliveryBatch{testBatch(10), testBatch(5)}, transport)

	require.Nil(t, outcome.Err)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, outcome.Result.BatchesSent)
	assert.Equal(t, 15, outcome.Result.RecordsSent)
	assert.Equal(t, 22, outcome.Result.BytesSent)
	assert.Zero(t, outcome.Result.RetryCount)
	assert.Equal(t, "http://localhost:14268/api/traces", outcome.Result.Endpoint)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	transport := TransportFunc(func(ctx context.Context, batch *model.DeliveryBatch) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	outcome := Deliver(context.Background(), model.BackendJaeger, []*model.DeliveryBatch{testBatch(10)}, transport)

	require.Nil(t, outcome.Err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, outcome.Result.RetryCount)
	assert.Equal(t, 10, outcome.Result.RecordsSent)
}

func TestDeliverExhaustsRetries(t *testing.T) {
	attempts := 0
	transport := TransportFunc(func(ctx context.Context, batch *model.DeliveryBatch) error {
		attempts++
		return errors.New("connection failed: backend down")
	})

	outcome := Deliver(context.Background(), model.BackendJaeger, []*model.DeliveryBatch{testBatch(10)}, transport)

	assert.Equal(t, 3, attempts, "1 initial attempt plus 2 retries")
	require.NotNil(t, outcome.Err)
	assert.Nil(t, outcome.Result)
	assert.Equal(t, StageNameJaeger, outcome.Err.Stage)
	assert.Equal(t, model.KindBackendDeliveryError, outcome.Err.Kind)
	assert.Contains(t, outcome.Err.Message, "connection failed")
	assert.Positive(t, outcome.Err.ProcessingTime)
}

func TestDeliverEmptyBatchList(t *testing.T) {
	transport := TransportFunc(func(ctx context.Context, batch *model.DeliveryBatch) error {
		t.Fatal("transport must not be called for an empty batch list")
		return nil
	})

	outcome := Deliver(context.Background(), model.BackendPrometheus, nil, transport)

	require.Nil(t, outcome.Err)
	assert.Zero(t, outcome.Result.RecordsSent)
	assert.Zero(t, outcome.Result.BatchesSent)
}

func TestStageNameFor(t *testing.T) {
	assert.Equal(t, StageNameJaeger, StageNameFor(model.BackendJaeger))
	assert.Equal(t, StageNamePrometheus, StageNameFor(model.BackendPrometheus))
	assert.Equal(t, StageNameElasticsearch, StageNameFor(model.BackendElasticsearch))
	assert.Equal(t, StageName, StageNameFor(model.Backend("other")))
}

func TestHTTPTransport(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotContentType string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotContentType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		batch := testBatch(1)
		batch.Delivery.Endpoint = srv.URL
		batch.Delivery.Headers = map[string]string{"Content-Type": "application/json"}

		err := NewHTTPTransport(nil).Send(context.Background(), batch)
		require.NoError(t, err)
		assert.Equal(t, "application/json", gotContentType)
	})

	t.Run("auth failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		batch := testBatch(1)
		batch.Delivery.Endpoint = srv.URL

		err := NewHTTPTransport(nil).Send(context.Background(), batch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		batch := testBatch(1)
		batch.Delivery.Endpoint = srv.URL

		err := NewHTTPTransport(nil).Send(context.Background(), batch)
		assert.Error(t, err)
	})

	t.Run("connection refused", func(t *testing.T) {
		batch := testBatch(1)
		batch.Delivery.Endpoint = "http://127.0.0.1:1/nothing"

		err := NewHTTPTransport(nil).Send(context.Background(), batch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection failed")
	})
}
