// Package bench provides benchmarking primitives for the spm bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and token count for a single encode run.
type RunResult struct {
	Index        int
	Cold         bool // true for the first run (cold-start)
	Duration     time.Duration
	Tokens       int
	TokensPerSec float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the run durations.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}
	return out
}

// ---------------------------------------------------------------------------
// Throughput helpers
// ---------------------------------------------------------------------------

// CalcTokensPerSec returns tokens / elapsed seconds.
// Returns 0 if elapsed is zero to avoid division by zero.
func CalcTokensPerSec(tokens int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}

// MeanTokensPerSec averages TokensPerSec over the warm runs, falling back to
// all runs when only the cold run exists.
func MeanTokensPerSec(runs []RunResult) float64 {
	var sum float64
	n := 0
	for _, r := range runs {
		if r.Cold && len(runs) > 1 {
			continue
		}
		sum += r.TokensPerSec
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CheckThroughputThreshold returns an error if meanTPS < threshold.
// A threshold of 0 disables the gate.
func CheckThroughputThreshold(meanTPS, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanTPS < threshold {
		return fmt.Errorf("mean throughput %.1f tokens/s below threshold %.1f", meanTPS, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Encoder is the tokenizer surface a bench run needs.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]int32, error)
}

// Run encodes text runs times and records each call. The first run is
// marked cold.
func Run(ctx context.Context, enc Encoder, text string, runs int) ([]RunResult, error) {
	if runs < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d", runs)
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		start := time.Now()
		ids, err := enc.Encode(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		dur := time.Since(start)

		results = append(results, RunResult{
			Index:        i,
			Cold:         i == 0,
			Duration:     dur,
			Tokens:       len(ids),
			TokensPerSec: CalcTokensPerSec(len(ids), dur),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func micros(d time.Duration) float64 { return float64(d.Nanoseconds()) / 1e3 }

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %12s  %8s  %12s\n", "Run", "Cold", "µs", "Tokens", "Tokens/s")
	fmt.Fprintln(sb, strings.Repeat("-", 52))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %12.1f  %8d  %12.1f\n",
			r.Index+1,
			cold,
			micros(r.Duration),
			r.Tokens,
			r.TokensPerSec,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 52))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.1f  (min)\n", "", "", micros(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.1f  (mean)\n", "", "", micros(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %12.1f  (max)\n", "", "", micros(stats.Max))

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	DurationUS   float64 `json:"duration_us"`
	Tokens       int     `json:"tokens"`
	TokensPerSec float64 `json:"tokens_per_sec"`
}

type jsonStats struct {
	MinUS            float64 `json:"min_us"`
	MeanUS           float64 `json:"mean_us"`
	MaxUS            float64 `json:"max_us"`
	MeanTokensPerSec float64 `json:"mean_tokens_per_sec"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinUS:            micros(stats.Min),
			MeanUS:           micros(stats.Mean),
			MaxUS:            micros(stats.Max),
			MeanTokensPerSec: MeanTokensPerSec(runs),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			DurationUS:   micros(r.Duration),
			Tokens:       r.Tokens,
			TokensPerSec: r.TokensPerSec,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
