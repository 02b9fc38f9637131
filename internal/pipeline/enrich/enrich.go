// Package enrich attaches service, infrastructure, and deployment context
// to a parsed signal set. The three enrichers are independent,
// side-effect-free functions over the same input; Merge joins their
// outputs.
package enrich

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
)

// Stage names used in errors and telemetry events.
const (
	StageName         = "enrichment"
	StageNameService  = "enrichment.service"
	StageNameResource = "enrichment.resource"
	StageNameEnv      = "enrichment.environment"
)

// Config supplies the lookup tables the enrichers consult.
type Config struct {
	// ServiceRegistry maps a service name to operator-supplied metadata
	// (endpoints, load balancer settings, anything else).
	ServiceRegistry map[string]map[string]any

	// DeploymentInfo describes the deployment: environment, region,
	// cluster, namespace, version, commit, replicas.
	DeploymentInfo map[string]string

	// SLATiers maps a service name to its SLA tier.
	SLATiers map[string]string

	// TeamOwnership maps a service name to its owning team.
	TeamOwnership map[string]string
}

// Stage runs the three enrichers.
type Stage struct {
	cfg Config
}

// New creates an enrichment stage.
func New(cfg Config) *Stage {
	return &Stage{cfg: cfg}
}

// Services discovers service names across traces, metric resources, and
// log resources, and builds per-service registry, deployment, and
// operational metadata.
func (s *Stage) Services(ctx context.Context, set *model.SignalSet) (map[string]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageNameService, model.KindEnrichmentFailure, err)
	}

	names := discoverServices(set)
	out := make(map[string]map[string]any, len(names))
	for _, name := range names {
		out[name] = s.describeService(name)
	}
	return out, nil
}

func discoverServices(set *model.SignalSet) []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, trace := range set.Traces {
		for _, svc := range trace.Services {
			add(svc)
		}
	}
	for _, series := range set.Metrics {
		for _, ms := range series {
			add(ms.Service)
		}
	}
	for _, record := range set.Logs {
		add(record.Service)
	}
	sort.Strings(names)
	return names
}

func (s *Stage) describeService(name string) map[string]any {
	svc := map[string]any{
		"name":   name,
		"health": "healthy", // synthetic until a health collaborator exists
	}

	if registry, ok := s.cfg.ServiceRegistry[name]; ok {
		for k, v := range registry {
			svc[k] = v
		}
	} else {
		svc["endpoints"] = []string{fmt.Sprintf("http://%s:8080", name)}
		svc["load_balancer"] = map[string]any{
			"algorithm":    "round_robin",
			"health_check": "/healthz",
		}
	}

	svc["deployment"] = map[string]any{
		"environment": valueOr(s.cfg.DeploymentInfo, "environment", "production"),
		"region":      valueOr(s.cfg.DeploymentInfo, "region", "us-east-1"),
		"cluster":     valueOr(s.cfg.DeploymentInfo, "cluster", "primary"),
		"namespace":   valueOr(s.cfg.DeploymentInfo, "namespace", "default"),
		"version":     valueOr(s.cfg.DeploymentInfo, "version", "unknown"),
		"replicas":    valueOr(s.cfg.DeploymentInfo, "replicas", "1"),
	}

	svc["operational"] = map[string]any{
		"sla_tier":    valueOr(s.cfg.SLATiers, name, "standard"),
		"owner":       valueOr(s.cfg.TeamOwnership, name, "unassigned"),
		"cost_center": valueOr(s.cfg.TeamOwnership, name+".cost_center", "shared"),
		"monitoring": map[string]any{
			"dashboard": fmt.Sprintf("https://grafana.internal/d/%s", name),
			"runbook":   fmt.Sprintf("https://runbooks.internal/%s", name),
		},
		"compliance": map[string]any{
			"pii":       false,
			"audited":   true,
			"retention": "30d",
		},
	}
	return svc
}

// Resource attaches static infrastructure and platform descriptors.
func (s *Stage) Resource(ctx context.Context, _ *model.SignalSet) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageNameResource, model.KindEnrichmentFailure, err)
	}
	return map[string]any{
		"cloud": map[string]any{
			"provider":          valueOr(s.cfg.DeploymentInfo, "cloud_provider", "aws"),
			"region":            valueOr(s.cfg.DeploymentInfo, "region", "us-east-1"),
			"availability_zone": valueOr(s.cfg.DeploymentInfo, "availability_zone", "us-east-1a"),
		},
		"platform": map[string]any{
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
			"runtime": runtime.Version(),
		},
	}, nil
}

// Environment attaches deployment descriptors.
func (s *Stage) Environment(ctx context.Context, _ *model.SignalSet) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStageError(StageNameEnv, model.KindEnrichmentFailure, err)
	}
	return map[string]any{
		"environment": valueOr(s.cfg.DeploymentInfo, "environment", "production"),
		"version":     valueOr(s.cfg.DeploymentInfo, "version", "unknown"),
		"commit":      valueOr(s.cfg.DeploymentInfo, "commit", "unknown"),
	}, nil
}

// Merge unions the three enricher outputs. Precedence is service, then
// resource, then environment: each writes under its own top-level key, so
// a collision can only occur if a future enricher reuses a key, in which
// case the last writer wins.
func Merge(service map[string]map[string]any, resource, environment map[string]any) model.EnrichmentContext {
	return model.EnrichmentContext{
		Service:     service,
		Resource:    resource,
		Environment: environment,
	}
}

func valueOr(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return fallback
}
