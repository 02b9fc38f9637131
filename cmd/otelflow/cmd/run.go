package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/otelflow/internal/events"
	"github.com/telhawk-systems/otelflow/internal/logging"
	"github.com/telhawk-systems/otelflow/internal/manager"
	"github.com/telhawk-systems/otelflow/internal/pipeline"
	"github.com/telhawk-systems/otelflow/internal/pipeline/model"
	"github.com/telhawk-systems/otelflow/internal/pipeline/sink"
	"github.com/telhawk-systems/otelflow/internal/ratelimit"
)

var (
	runInput      string
	runOpenSearch bool
	runSource     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline against one payload",
	Long: `Run reads an OTLP-JSON payload from a file (or stdin with "-"),
executes the full pipeline, and prints the execution report as JSON.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInput, "input", "i", "-", "payload file, or - for stdin")
	runCmd.Flags().BoolVar(&runOpenSearch, "opensearch", false, "deliver elasticsearch batches through the OpenSearch bulk API client")
	runCmd.Flags().StringVar(&runSource, "source", "", "submission source for rate limiting")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	raw, err := readPayload(runInput)
	if err != nil {
		return err
	}

	log := logging.Default()

	opts := []pipeline.Option{pipeline.WithLogger(log)}

	if cfg.Events.Enabled {
		bus, err := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.Events.NATSURL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
			Name:          "otelflow-cli",
		})
		if err != nil {
			return fmt.Errorf("event bus unavailable: %w", err)
		}
		defer bus.Close()
		opts = append(opts, pipeline.WithEvents(bus))
	}

	if runOpenSearch {
		transport, err := sink.NewOpenSearchTransport(sink.OpenSearchConfig{
			URL: cfg.Backends.Elasticsearch.Endpoint,
		})
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithTransport(model.BackendElasticsearch, transport))
	}

	var mgrOpts []manager.Option
	mgrOpts = append(mgrOpts, manager.WithLogger(log))
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisLimiter(cfg.RateLimit.RedisURL, cfg.RateLimit.Requests, cfg.RateLimit.Window, false)
		if err != nil {
			return fmt.Errorf("rate limiter unavailable: %w", err)
		}
		mgrOpts = append(mgrOpts, manager.WithRateLimiter(limiter))
	}

	mgr := manager.New(pipeline.New(cfg, opts...), manager.Config{
		MaxConcurrent:    cfg.Pipeline.MaxConcurrent,
		ExecutionTimeout: cfg.Pipeline.ExecutionTimeout,
	}, mgrOpts...)
	defer mgr.Stop()

	report, err := mgr.Run(context.Background(), raw, manager.SubmitOptions{Source: runSource})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}
