package doctor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/go-spm/internal/doctor"
	"github.com/example/go-spm/internal/spm/spmtest"
	"github.com/example/go-spm/internal/tokenizer"
)

var errLibraryNotFound = errors.New("library not found")

func hasFailureContaining(failures []string, substr string) bool {
	for _, f := range failures {
		if strings.Contains(f, substr) {
			return true
		}
	}

	return false
}

func openStub(eng *spmtest.Engine) doctor.OpenFunc {
	return func(context.Context) (tokenizer.Tokenizer, error) {
		return tokenizer.NewSentencePieceTokenizer(eng, "tokenizer.model")
	}
}

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	eng := spmtest.New()

	cfg := doctor.Config{
		Library:    func() (string, error) { return "/usr/lib/libspm_c_api.so (0.2.0)", nil },
		ModelFiles: []string{"doctor_test.go"},
		Open:       openStub(eng),
		ProbeText:  "hello",
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	if result.Err() != nil {
		t.Errorf("Err() = %v; want nil", result.Err())
	}

	body := out.String()
	for _, want := range []string{"engine library", "model file", "model load", "vocab=8000", "round trip"} {
		if !strings.Contains(body, want) {
			t.Errorf("output missing %q:\n%s", want, body)
		}
	}

	if eng.LiveHandles() != 0 {
		t.Errorf("tokenizer not closed: %d live handles", eng.LiveHandles())
	}

	eng.Verify(t)
}

// ---------------------------------------------------------------------------
// failures
// ---------------------------------------------------------------------------

func TestRun_LibraryMissingFails(t *testing.T) {
	cfg := doctor.Config{
		Library: func() (string, error) { return "", errLibraryNotFound },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure when library is not found")
	}

	if !hasFailureContaining(result.Failures(), "engine library") {
		t.Errorf("expected failure mentioning engine library, got: %v", result.Failures())
	}
}

func TestRun_MissingModelFileSkipsLoad(t *testing.T) {
	opened := false

	cfg := doctor.Config{
		SkipLibrary: true,
		ModelFiles:  []string{"/nonexistent/tokenizer.model"},
		Open: func(context.Context) (tokenizer.Tokenizer, error) {
			opened = true
			return nil, errors.New("unreachable")
		},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "model file") {
		t.Errorf("expected failure mentioning model file, got: %v", result.Failures())
	}

	if opened {
		t.Error("Open must not run when a model file is missing")
	}
}

func TestRun_LoadFailure(t *testing.T) {
	eng := spmtest.New()
	eng.LoadStatus = 5

	cfg := doctor.Config{SkipLibrary: true, Open: openStub(eng)}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "model load") {
		t.Errorf("expected failure mentioning model load, got: %v", result.Failures())
	}
}

func TestRun_RoundTripNormalizedTextPasses(t *testing.T) {
	eng := spmtest.New()
	eng.DecodeBytes = []byte("something else")

	cfg := doctor.Config{SkipLibrary: true, Open: openStub(eng), ProbeText: "hello"}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Fatalf("decoded text differing from the input must not fail; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), `"hello" -> "something else"`) {
		t.Errorf("output missing decoded text:\n%s", out.String())
	}
}

// driftingTokenizer returns a different id on every Encode call.
type driftingTokenizer struct {
	calls int32
}

func (d *driftingTokenizer) Encode(context.Context, string) ([]int32, error) {
	d.calls++
	return []int32{d.calls}, nil
}

func (d *driftingTokenizer) Decode(context.Context, []int32) (string, error) { return "x", nil }
func (d *driftingTokenizer) EOSID() int32                                    { return 2 }
func (d *driftingTokenizer) BOSID() int32                                    { return 1 }
func (d *driftingTokenizer) VocabSize() int32                                { return 10 }
func (d *driftingTokenizer) Close() error                                    { return nil }

func TestRun_NondeterministicEncodeFails(t *testing.T) {
	cfg := doctor.Config{
		SkipLibrary: true,
		Open: func(context.Context) (tokenizer.Tokenizer, error) {
			return &driftingTokenizer{}, nil
		},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "not deterministic") {
		t.Errorf("expected failure mentioning determinism, got: %v", result.Failures())
	}

	if result.Err() == nil {
		t.Error("Err() = nil; want combined error")
	}
}

func TestRun_DecodeFailureFails(t *testing.T) {
	eng := spmtest.New()
	eng.DecodeStatus = 4

	cfg := doctor.Config{SkipLibrary: true, Open: openStub(eng), ProbeText: "hello"}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "round trip") {
		t.Errorf("expected failure mentioning round trip, got: %v", result.Failures())
	}
}

func TestRun_SentinelVocabFails(t *testing.T) {
	eng := spmtest.New()
	eng.Vocab = -1

	cfg := doctor.Config{SkipLibrary: true, Open: openStub(eng), ProbeText: "hello"}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "introspection") {
		t.Errorf("expected failure mentioning introspection, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// output
// ---------------------------------------------------------------------------

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	cfg := doctor.Config{
		Library:    func() (string, error) { return "", errLibraryNotFound },
		ModelFiles: []string{"doctor_test.go"},
	}

	var out strings.Builder
	doctor.Run(cfg, &out)

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) {
		t.Errorf("output missing pass marker %q:\n%s", doctor.PassMark, body)
	}

	if !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output missing fail marker %q:\n%s", doctor.FailMark, body)
	}
}

func TestRun_SkipLibrary(t *testing.T) {
	var out strings.Builder

	result := doctor.Run(doctor.Config{SkipLibrary: true}, &out)
	if result.Failed() {
		t.Fatalf("expected no failures, got: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "engine library: skipped") {
		t.Fatalf("expected skipped output, got:\n%s", out.String())
	}
}

func TestResult_AddFailure(t *testing.T) {
	var r doctor.Result
	r.AddFailure("serve: port in use")

	if !r.Failed() || len(r.Failures()) != 1 {
		t.Fatalf("unexpected result: %v", r.Failures())
	}
}
