package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// HTTPTransport posts batch bodies to the batch's configured endpoint.
// It is the default transport for the Jaeger and Prometheus sinks.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport. A nil client uses
// http.DefaultClient; per-batch timeouts come from the delivery config.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client}
}

// Send posts the serialized batch body with the configured headers.
func (t *HTTPTransport) Send(ctx context.Context, batch *model.DeliveryBatch) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, batch.Delivery.Endpoint, bytes.NewReader(batch.Body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range batch.Delivery.Headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("authentication failed: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %s: %s", resp.Status, body)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return nil
}
