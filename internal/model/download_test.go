package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

const helloSHA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// hub serves body for every GET under /owner/spm/resolve/ and counts them.
type hub struct {
	body   []byte
	etag   atomic.Value
	status atomic.Int32
	gets   atomic.Int32
	auth   atomic.Value
}

func newHub(t *testing.T, body []byte) (*hub, *httptest.Server) {
	t.Helper()

	h := &hub{body: body}
	h.etag.Store("")
	h.status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.auth.Store(r.Header.Get("Authorization"))
		if status := int(h.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if r.URL.Path != "/owner/spm/resolve/main/tokenizer.model" {
			http.NotFound(w, r)
			return
		}
		if etag := h.etag.Load().(string); etag != "" {
			w.Header().Set("X-Linked-Etag", `"`+etag+`"`)
		}
		if r.Method == http.MethodHead {
			return
		}
		h.gets.Add(1)
		_, _ = w.Write(h.body)
	}))
	t.Cleanup(srv.Close)

	return h, srv
}

func sum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func TestTokenizerManifest(t *testing.T) {
	m, err := TokenizerManifest(" owner/spm/ ", "", "", "")
	if err != nil {
		t.Fatalf("manifest error: %v", err)
	}
	if m.Repo != "owner/spm" {
		t.Errorf("repo = %q", m.Repo)
	}
	if len(m.Files) != 1 || m.Files[0].Filename != DefaultFilename || m.Files[0].Revision != "main" {
		t.Fatalf("files = %+v", m.Files)
	}

	for _, bad := range [][2]string{{"", ""}, {"noslash", ""}, {"owner/spm", "xyz"}} {
		if _, err := TokenizerManifest(bad[0], "", "", bad[1]); err == nil {
			t.Errorf("TokenizerManifest(%q, sha=%q): expected error", bad[0], bad[1])
		}
	}
}

func TestNormalizeETag(t *testing.T) {
	got := normalizeETag(`W/"58aa704a88faad35f22c34ea1cb55c4c5629de8b8e035c6e4936e2673dc07617"`)
	want := "58aa704a88faad35f22c34ea1cb55c4c5629de8b8e035c6e4936e2673dc07617"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if !isSHA256Hex(got) {
		t.Fatalf("expected valid sha256")
	}
}

func TestExistingMatches(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "x.bin")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ok, err := existingMatches(p, helloSHA)
	if err != nil {
		t.Fatalf("existingMatches error: %v", err)
	}
	if !ok {
		t.Fatal("expected checksum match")
	}

	ok, err = existingMatches(filepath.Join(tmp, "missing"), helloSHA)
	if err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}

	if _, err := existingMatches(tmp, helloSHA); err == nil {
		t.Fatal("expected error for directory")
	}
}

func TestDownload_PinnedChecksum(t *testing.T) {
	body := []byte("model bytes")
	h, srv := newHub(t, body)

	m, err := TokenizerManifest("owner/spm", "", "", sum(body))
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	opts := DownloadOptions{Manifest: m, OutDir: out, BaseURL: srv.URL, HFToken: "secret"}

	paths, err := Download(context.Background(), opts)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(out, DefaultFilename) {
		t.Fatalf("paths = %v", paths)
	}

	got, err := os.ReadFile(paths[0])
	if err != nil || string(got) != string(body) {
		t.Fatalf("file content = %q, err = %v", got, err)
	}
	if auth, _ := h.auth.Load().(string); auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}

	locked, ok := LockedChecksum(out, DefaultFilename)
	if !ok || locked != sum(body) {
		t.Errorf("lock checksum = %q, %v", locked, ok)
	}

	// A second run finds the file in place and does not fetch it again.
	if _, err := Download(context.Background(), opts); err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if n := h.gets.Load(); n != 1 {
		t.Errorf("GET count = %d, want 1", n)
	}
}

func TestDownload_ChecksumFromMetadataThenLock(t *testing.T) {
	body := []byte("gated model")
	h, srv := newHub(t, body)
	h.etag.Store(sum(body))

	m, _ := TokenizerManifest("owner/spm", "", "", "")
	out := t.TempDir()

	if _, err := Download(context.Background(), DownloadOptions{Manifest: m, OutDir: out, BaseURL: srv.URL}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	// Without metadata the checksum now comes from the lock file.
	h.etag.Store("")
	if _, err := Download(context.Background(), DownloadOptions{Manifest: m, OutDir: out, BaseURL: srv.URL}); err != nil {
		t.Fatalf("Download from lock: %v", err)
	}
}

func TestDownload_ChecksumMismatchRemovesFile(t *testing.T) {
	_, srv := newHub(t, []byte("tampered"))

	m, _ := TokenizerManifest("owner/spm", "", "", helloSHA)
	out := t.TempDir()

	_, err := Download(context.Background(), DownloadOptions{Manifest: m, OutDir: out, BaseURL: srv.URL})

	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want ChecksumMismatchError", err)
	}
	if mismatch.Expected != helloSHA || mismatch.Actual != sum([]byte("tampered")) {
		t.Errorf("mismatch = %+v", mismatch)
	}
	if _, err := os.Stat(filepath.Join(out, DefaultFilename)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("mismatched file kept: %v", err)
	}
}

func TestDownload_AccessDenied(t *testing.T) {
	h, srv := newHub(t, nil)
	h.status.Store(http.StatusUnauthorized)

	m, _ := TokenizerManifest("owner/spm", "", "", "")

	_, err := Download(context.Background(), DownloadOptions{Manifest: m, OutDir: t.TempDir(), BaseURL: srv.URL})

	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want AccessDeniedError", err)
	}
	if denied.Repo != "owner/spm" {
		t.Errorf("repo = %q", denied.Repo)
	}
}

func TestDownload_NoChecksumAvailable(t *testing.T) {
	_, srv := newHub(t, []byte("x"))

	m, _ := TokenizerManifest("owner/spm", "", "", "")

	if _, err := Download(context.Background(), DownloadOptions{Manifest: m, OutDir: t.TempDir(), BaseURL: srv.URL}); err == nil {
		t.Fatal("expected error when no checksum can be resolved")
	}
}

func TestDownload_Validation(t *testing.T) {
	if _, err := Download(context.Background(), DownloadOptions{}); err == nil {
		t.Error("expected error for empty manifest")
	}
	m, _ := TokenizerManifest("owner/spm", "", "", "")
	if _, err := Download(context.Background(), DownloadOptions{Manifest: m}); err == nil {
		t.Error("expected error for empty out dir")
	}
}

func TestChecksum(t *testing.T) {
	p := filepath.Join(t.TempDir(), "hello")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Checksum(p)
	if err != nil || got != helloSHA {
		t.Fatalf("Checksum = %q, %v", got, err)
	}

	if _, ok := LockedChecksum(t.TempDir(), DefaultFilename); ok {
		t.Error("expected no lock entry in empty dir")
	}
}
