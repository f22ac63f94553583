package bundle

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/example/go-spm/internal/spm"
)

func memBundle(t *testing.T, files map[string]string, dirs ...string) *Bundle {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for p, content := range files {
		if err := afero.WriteFile(fsys, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	return &Bundle{FS: fsys, Dirs: dirs}
}

func TestResolveFirstMatchWins(t *testing.T) {
	b := memBundle(t, map[string]string{
		filepath.Join("b", "tokenizer.model"): "second",
		filepath.Join("c", "tokenizer.model"): "third",
	}, "a", "b", "c")

	got, err := b.Resolve(DefaultName, DefaultExt)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := filepath.Join("b", "tokenizer.model"); got != want {
		t.Fatalf("Resolve = %q; want %q", got, want)
	}
}

func TestResolveExtWithDot(t *testing.T) {
	b := memBundle(t, map[string]string{filepath.Join("m", "x.model"): "x"}, "m")

	got, err := b.Resolve("x", ".model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := filepath.Join("m", "x.model"); got != want {
		t.Fatalf("Resolve = %q; want %q", got, want)
	}
}

func TestResolveSkipsDirectories(t *testing.T) {
	b := memBundle(t, map[string]string{filepath.Join("b", "tokenizer.model"): "file"}, "a", "b")
	if err := b.FS.MkdirAll(filepath.Join("a", "tokenizer.model"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := b.Resolve(DefaultName, DefaultExt)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := filepath.Join("b", "tokenizer.model"); got != want {
		t.Fatalf("Resolve = %q; want %q", got, want)
	}
}

func TestResolveNotFound(t *testing.T) {
	b := memBundle(t, nil, "a", "b")

	_, err := b.Resolve("missing", "model")
	if !errors.Is(err, spm.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}

	var nf *ResourceNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *ResourceNotFoundError, got %T", err)
	}

	if nf.Name != "missing.model" || len(nf.Searched) != 2 {
		t.Fatalf("unexpected error detail: %+v", nf)
	}
}

func TestReadFile(t *testing.T) {
	b := memBundle(t, map[string]string{filepath.Join("m", "tokenizer.model"): "payload"}, "m")

	data, err := b.ReadFile(DefaultName, DefaultExt)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(data) != "payload" {
		t.Fatalf("ReadFile = %q", data)
	}
}
