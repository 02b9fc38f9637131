package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/otelflow/internal/gen"
)

var genOpts = gen.DefaultOptions()

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a synthetic OTLP-JSON payload",
	Long: `Gen prints a synthetic OTLP-JSON payload to stdout. The same seed
always produces the same payload, so generated fixtures are reproducible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := gen.Payload(genOpts)
		out, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genCmd)

	genCmd.Flags().IntVar(&genOpts.Traces, "traces", genOpts.Traces, "number of traces")
	genCmd.Flags().IntVar(&genOpts.SpansPerTrace, "spans", genOpts.SpansPerTrace, "spans per trace")
	genCmd.Flags().IntVar(&genOpts.Metrics, "metrics", genOpts.Metrics, "number of metric series")
	genCmd.Flags().IntVar(&genOpts.Logs, "logs", genOpts.Logs, "number of log records")
	genCmd.Flags().Float64Var(&genOpts.ErrorRate, "error-rate", genOpts.ErrorRate, "fraction of traces with an error span")
	genCmd.Flags().Int64Var(&genOpts.Seed, "seed", genOpts.Seed, "random seed")
	genCmd.Flags().StringSliceVar(&genOpts.Services, "services", genOpts.Services, "service names to spread signals across")
}
