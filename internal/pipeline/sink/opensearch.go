package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// OpenSearchConfig holds connection settings for the Elasticsearch sink
// transport.
type OpenSearchConfig struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
}

// DefaultOpenSearchConfig returns sensible defaults.
func DefaultOpenSearchConfig() OpenSearchConfig {
	return OpenSearchConfig{
		URL: "http://localhost:9200",
	}
}

// OpenSearchTransport delivers Elasticsearch batches through the
// OpenSearch bulk API. Batch bodies are already NDJSON with action lines,
// so they are handed to the bulk endpoint verbatim.
type OpenSearchTransport struct {
	client *opensearch.Client
}

// NewOpenSearchTransport creates a bulk transport for the Elasticsearch
// sink.
func NewOpenSearchTransport(cfg OpenSearchConfig) (*OpenSearchTransport, error) {
	httpTransport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // operator opt-in for self-signed clusters
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpTransport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &OpenSearchTransport{client: client}, nil
}

// Send submits the batch's NDJSON body to the bulk API.
func (t *OpenSearchTransport) Send(ctx context.Context, batch *model.DeliveryBatch) error {
	resp, err := t.client.Bulk(
		bytes.NewReader(batch.Body),
		t.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("authentication failed: %s", resp.Status())
	}
	if resp.IsError() {
		return fmt.Errorf("bulk request failed: %s", resp.Status())
	}
	return nil
}
