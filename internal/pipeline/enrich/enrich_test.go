package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

func signalSet() *model.SignalSet {
	return &model.SignalSet{
		Traces: []*model.Trace{
			{TraceID: "t1", Services: []string{"checkout", "payments"}},
		},
		Metrics: map[string][]*model.MetricSeries{
			"http_requests_total": {{Name: "http_requests_total", Service: "inventory"}},
		},
		Logs: []*model.LogRecord{
			{Service: "checkout"},
			{Service: ""},
		},
	}
}

func TestServicesDiscovery(t *testing.T) {
	stage := New(Config{})

	out, err := stage.Services(context.Background(), signalSet())
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "payments")
	assert.Contains(t, out, "inventory")
}

func TestServicesSyntheticMetadata(t *testing.T) {
	stage := New(Config{})

	out, err := stage.Services(context.Background(), signalSet())
	require.NoError(t, err)

	svc := out["checkout"]
	assert.Equal(t, "checkout", svc["name"])
	assert.Equal(t, []string{"http://checkout:8080"}, svc["endpoints"])
	assert.NotNil(t, svc["load_balancer"])
	assert.NotNil(t, svc["deployment"])
	assert.NotNil(t, svc["operational"])
}

func TestServicesRegistryOverridesSynthetic(t *testing.T) {
	stage := New(Config{
		ServiceRegistry: map[string]map[string]any{
			"checkout": {"endpoints": []string{"https://checkout.prod:443"}},
		},
		SLATiers:      map[string]string{"checkout": "gold"},
		TeamOwnership: map[string]string{"checkout": "payments-team"},
	})

	out, err := stage.Services(context.Background(), signalSet())
	require.NoError(t, err)

	svc := out["checkout"]
	assert.Equal(t, []string{"https://checkout.prod:443"}, svc["endpoints"])
	assert.Nil(t, svc["load_balancer"], "registry entries do not get synthetic defaults")

	operational := svc["operational"].(map[string]any)
	assert.Equal(t, "gold", operational["sla_tier"])
	assert.Equal(t, "payments-team", operational["owner"])
}

func TestResource(t *testing.T) {
	stage := New(Config{DeploymentInfo: map[string]string{
		"cloud_provider": "gcp",
		"region":         "europe-west1",
	}})

	out, err := stage.Resource(context.Background(), signalSet())
	require.NoError(t, err)

	cloud := out["cloud"].(map[string]any)
	assert.Equal(t, "gcp", cloud["provider"])
	assert.Equal(t, "europe-west1", cloud["region"])

	platform := out["platform"].(map[string]any)
	assert.NotEmpty(t, platform["os"])
	assert.NotEmpty(t, platform["runtime"])
}

func TestEnvironment(t *testing.T) {
	stage := New(Config{DeploymentInfo: map[string]string{
		"environment": "staging",
		"version":     "2.4.1",
	}})

	out, err := stage.Environment(context.Background(), signalSet())
	require.NoError(t, err)

	assert.Equal(t, "staging", out["environment"])
	assert.Equal(t, "2.4.1", out["version"])
	assert.Equal(t, "unknown", out["commit"])
}

func TestMerge(t *testing.T) {
	service := map[string]map[string]any{"checkout": {"name": "checkout"}}
	resource := map[string]any{"cloud": map[string]any{"provider": "aws"}}
	environment := map[string]any{"environment": "production"}

	merged := Merge(service, resource, environment)

	assert.Equal(t, service, merged.Service)
	assert.Equal(t, resource, merged.Resource)
	assert.Equal(t, environment, merged.Environment)
}

func TestCancelledContext(t *testing.T) {
	stage := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stage.Services(ctx, signalSet())
	assert.Error(t, err)

	_, err = stage.Resource(ctx, signalSet())
	assert.Error(t, err)

	_, err = stage.Environment(ctx, signalSet())
	assert.Error(t, err)
}
