// Package config loads pipeline configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Sampling   SamplingConfig   `mapstructure:"sampling"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Events     EventsConfig     `mapstructure:"events"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type PipelineConfig struct {
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	RequiredFields   []string      `mapstructure:"required_fields"`
	Source           string        `mapstructure:"source"`
}

type SamplingConfig struct {
	TraceStrategy  string `mapstructure:"trace_strategy"`
	MetricStrategy string `mapstructure:"metric_strategy"`
	LogStrategy    string `mapstructure:"log_strategy"`

	TraceRate        float64 `mapstructure:"trace_rate"`
	TraceErrorRate   float64 `mapstructure:"trace_error_rate"`
	TraceSuccessRate float64 `mapstructure:"trace_success_rate"`
	TraceRateLimit   int     `mapstructure:"trace_rate_limit"`

	// LatencyThreshold marks traces above it as "slow" for tail_based sampling.
	LatencyThreshold time.Duration      `mapstructure:"latency_threshold"`
	ServiceRates     map[string]float64 `mapstructure:"service_rates"`

	MetricRate       float64            `mapstructure:"metric_rate"`
	MetricTimeBucket time.Duration      `mapstructure:"metric_time_bucket"`
	MetricThresholds map[string]float64 `mapstructure:"metric_thresholds"`

	LogRate          float64            `mapstructure:"log_rate"`
	SeverityRates    map[string]float64 `mapstructure:"severity_rates"`
	BurstThreshold   int                `mapstructure:"burst_threshold"`
	BurstRate        float64            `mapstructure:"burst_rate"`
	BurstNormalRate  float64            `mapstructure:"burst_normal_rate"`
}

type EnrichmentConfig struct {
	ServiceRegistry map[string]map[string]any `mapstructure:"service_registry"`
	DeploymentInfo  map[string]string         `mapstructure:"deployment_info"`
	SLATiers        map[string]string         `mapstructure:"sla_tiers"`
	TeamOwnership   map[string]string         `mapstructure:"team_ownership"`
}

type BackendsConfig struct {
	Jaeger        BackendConfig `mapstructure:"jaeger"`
	Prometheus    BackendConfig `mapstructure:"prometheus"`
	Elasticsearch BackendConfig `mapstructure:"elasticsearch"`
}

type BackendConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	BatchSize     int           `mapstructure:"batch_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	AuthType      string        `mapstructure:"auth_type"` // "", "bearer", "basic", "api_key"
	AuthToken     string        `mapstructure:"auth_token"`
	Index         string        `mapstructure:"index"` // elasticsearch only
}

type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/otelflow")
	}

	// Environment variables override
	v.SetEnvPrefix("OTELFLOW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration with every default applied and no
// file or environment lookup.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults failed to unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.max_concurrent", 5)
	v.SetDefault("pipeline.execution_timeout", "60s")
	v.SetDefault("pipeline.required_fields", []string{"resourceSpans"})
	v.SetDefault("pipeline.source", "otlp")

	v.SetDefault("sampling.trace_strategy", "probabilistic")
	v.SetDefault("sampling.metric_strategy", "time_based")
	v.SetDefault("sampling.log_strategy", "severity_based")
	v.SetDefault("sampling.trace_rate", 0.1)
	v.SetDefault("sampling.trace_error_rate", 1.0)
	v.SetDefault("sampling.trace_success_rate", 0.05)
	v.SetDefault("sampling.trace_rate_limit", 100)
	v.SetDefault("sampling.latency_threshold", "500ms")
	v.SetDefault("sampling.metric_rate", 0.5)
	v.SetDefault("sampling.metric_time_bucket", "60s")
	v.SetDefault("sampling.log_rate", 0.1)
	v.SetDefault("sampling.burst_threshold", 1000)
	v.SetDefault("sampling.burst_rate", 0.05)
	v.SetDefault("sampling.burst_normal_rate", 1.0)

	v.SetDefault("backends.jaeger.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("backends.jaeger.batch_size", 1000)
	v.SetDefault("backends.jaeger.timeout", "10s")
	v.SetDefault("backends.jaeger.retry_attempts", 3)
	v.SetDefault("backends.prometheus.endpoint", "http://localhost:9090/api/v1/write")
	v.SetDefault("backends.prometheus.batch_size", 1000)
	v.SetDefault("backends.prometheus.timeout", "5s")
	v.SetDefault("backends.prometheus.retry_attempts", 2)
	v.SetDefault("backends.elasticsearch.endpoint", "http://localhost:9200/_bulk")
	v.SetDefault("backends.elasticsearch.batch_size", 500)
	v.SetDefault("backends.elasticsearch.timeout", "15s")
	v.SetDefault("backends.elasticsearch.retry_attempts", 3)
	v.SetDefault("backends.elasticsearch.index", "otelflow")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.nats_url", "nats://localhost:4222")
	v.SetDefault("events.subject_prefix", "otelflow.pipeline")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
