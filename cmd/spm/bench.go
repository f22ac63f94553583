package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-spm/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		text   string
		runs   int
		format string
		minTPS float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark encode latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			tok, _, err := openTokenizer(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tok.Close() }()

			results, err := bench.Run(cmd.Context(), tok, text, runs)
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				bench.FormatJSON(results, stats, out)
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckThroughputThreshold(bench.MeanTokensPerSec(results), minTPS)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to encode for each run (required)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of encode runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minTPS, "min-tps", 0, "Exit non-zero if mean tokens/s falls below this value (0 = disabled)")

	return cmd
}
