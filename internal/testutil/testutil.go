// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skipf with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    lib := testutil.RequireLibrary(t)
//	    model := testutil.RequireModel(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// LibraryCandidates lists system locations probed when no env var names the
// engine library.
var LibraryCandidates = []string{
	"/usr/lib/libspm_c_api.so",
	"/usr/local/lib/libspm_c_api.so",
	"/usr/lib/x86_64-linux-gnu/libspm_c_api.so",
	"/opt/homebrew/lib/libspm_c_api.dylib",
}

// RequireLibrary skips the test if no SentencePiece C API shared library can
// be located and returns its path otherwise. It checks (in order): the
// SPM_LIBRARY_PATH env var, then GO_SPM_LIBRARY, then LibraryCandidates.
func RequireLibrary(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"SPM_LIBRARY_PATH", "GO_SPM_LIBRARY"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			_, err := os.Stat(p)
			if err == nil {
				return p
			}

			tb.Skipf("spm library not found at %s=%q", env, p)

			return ""
		}
	}

	for _, p := range LibraryCandidates {
		_, err := os.Stat(p)
		if err == nil {
			return p
		}
	}

	tb.Skipf("spm shared library not found; set SPM_LIBRARY_PATH or GO_SPM_LIBRARY")

	return ""
}

// RequireModel skips the test if no SentencePiece model is available. The
// SPM_TEST_MODEL env var wins; otherwise models/tokenizer.model is searched
// from the working directory up to the repository root.
func RequireModel(tb testing.TB) string {
	tb.Helper()

	if p := os.Getenv("SPM_TEST_MODEL"); p != "" {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("model not found at SPM_TEST_MODEL=%q", p)
			return ""
		}

		return p
	}

	dir, err := os.Getwd()
	if err != nil {
		tb.Skipf("getwd: %v", err)
		return ""
	}

	for {
		p := filepath.Join(dir, "models", "tokenizer.model")
		if _, err := os.Stat(p); err == nil {
			return p
		}

		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	tb.Skipf("tokenizer model not available (models/tokenizer.model); set SPM_TEST_MODEL to override")

	return ""
}
