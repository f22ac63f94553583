// Package doctor provides environment preflight checks for spm.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/example/go-spm/internal/spm"
	"github.com/example/go-spm/internal/tokenizer"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// DefaultProbeText is encoded and decoded by the round-trip check.
const DefaultProbeText = "hello world"

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// OpenFunc opens the tokenizer under test.
type OpenFunc func(ctx context.Context) (tokenizer.Tokenizer, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Library describes the native engine library, e.g. "path (version)".
	Library VersionFunc
	// SkipLibrary skips the library check (go backend).
	SkipLibrary bool
	// ModelFiles is the list of model file paths to verify on disk.
	ModelFiles []string
	// Open loads the model. A nil Open skips the load and round-trip checks.
	Open OpenFunc
	// ProbeText defaults to DefaultProbeText.
	ProbeText string
	// Timeout bounds the load and round-trip checks. Zero means 30s.
	Timeout time.Duration
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

// Err combines all failures into one error, nil when every check passed.
func (r *Result) Err() error {
	var err error
	for _, f := range r.failures {
		err = multierr.Append(err, errors.New(f))
	}

	return err
}

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) (res Result) {
	// ---- engine library ---------------------------------------------------
	if cfg.SkipLibrary {
		fmt.Fprintf(w, "%s engine library: skipped\n", PassMark)
	} else if cfg.Library != nil {
		desc, err := cfg.Library()
		if err != nil {
			res.fail(fmt.Sprintf("engine library: %v", err))
			fmt.Fprintf(w, "%s engine library: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s engine library: %s\n", PassMark, desc)
		}
	}

	// ---- model files ------------------------------------------------------
	for _, path := range cfg.ModelFiles {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("model file %q: %v", path, err))
			fmt.Fprintf(w, "%s model file %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s model file: %s\n", PassMark, path)
		}
	}

	if cfg.Open == nil || res.Failed() {
		return res
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// ---- model load -------------------------------------------------------
	tok, err := cfg.Open(ctx)
	if err != nil {
		res.fail(fmt.Sprintf("model load: %v", err))
		fmt.Fprintf(w, "%s model load: %v\n", FailMark, err)

		return res
	}
	defer func() {
		if err := tok.Close(); err != nil {
			res.fail(fmt.Sprintf("close: %v", err))
			fmt.Fprintf(w, "%s close: %v\n", FailMark, err)
		}
	}()

	fmt.Fprintf(w, "%s model load: ok\n", PassMark)

	// ---- introspection ----------------------------------------------------
	vocab, bos, eos := tok.VocabSize(), tok.BOSID(), tok.EOSID()
	if vocab == spm.NoID || vocab <= 0 {
		res.fail(fmt.Sprintf("introspection: vocab size %d", vocab))
		fmt.Fprintf(w, "%s introspection: vocab size %d\n", FailMark, vocab)
	} else {
		fmt.Fprintf(w, "%s introspection: vocab=%d bos=%d eos=%d\n", PassMark, vocab, bos, eos)
	}

	// ---- round trip -------------------------------------------------------
	probe := cfg.ProbeText
	if probe == "" {
		probe = DefaultProbeText
	}

	decoded, err := roundTrip(ctx, tok, probe)
	if err != nil {
		res.fail(fmt.Sprintf("round trip: %v", err))
		fmt.Fprintf(w, "%s round trip: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s round trip: %q -> %q\n", PassMark, probe, decoded)
	}

	return res
}

// roundTrip encodes text twice and decodes the result. Models may normalize
// text, so the decoded string is returned for display and not compared.
func roundTrip(ctx context.Context, tok tokenizer.Tokenizer, text string) (string, error) {
	ids, err := tok.Encode(ctx, text)
	if err != nil {
		return "", err
	}

	if len(ids) == 0 {
		return "", fmt.Errorf("encode %q returned no ids", text)
	}

	again, err := tok.Encode(ctx, text)
	if err != nil {
		return "", err
	}

	if !slices.Equal(ids, again) {
		return "", fmt.Errorf("encode %q is not deterministic: %v then %v", text, ids, again)
	}

	return tok.Decode(ctx, ids)
}
