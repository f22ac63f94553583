// Package native binds the SentencePiece C API shared library
// (spm_c_api.h) at run time through purego, without cgo.
package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/example/go-spm/internal/config"
)

// LibraryInfo describes a located engine library.
type LibraryInfo struct {
	LibraryPath string
	Version     string
}

// ErrLibraryNotFound is returned by Detect when no library could be located.
var ErrLibraryNotFound = errors.New("unable to detect SentencePiece C API library path")

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

// systemCandidates lists well-known install locations, checked in order.
func systemCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/opt/homebrew/lib/libspm_c_api.dylib",
			"/usr/local/lib/libspm_c_api.dylib",
		}
	default:
		return []string{
			"/usr/lib/libspm_c_api.so",
			"/usr/local/lib/libspm_c_api.so",
			"/usr/lib/x86_64-linux-gnu/libspm_c_api.so",
			"/usr/lib/aarch64-linux-gnu/libspm_c_api.so",
		}
	}
}

// Detect locates the engine library: the configured path first, then the
// SPM_LIBRARY_PATH and GO_SPM_LIBRARY environment variables, then
// well-known system paths.
func Detect(cfg config.EngineConfig) (LibraryInfo, error) {
	path := cfg.LibraryPath
	if path == "" {
		path = os.Getenv("SPM_LIBRARY_PATH")
	}

	if path == "" {
		path = os.Getenv("GO_SPM_LIBRARY")
	}

	if path == "" {
		for _, c := range systemCandidates() {
			_, err := os.Stat(c)
			if err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return LibraryInfo{LibraryPath: "not found", Version: "unknown"}, ErrLibraryNotFound
	}

	_, err := os.Stat(path)
	if err != nil {
		return LibraryInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("spm library path check failed: %w", err)
	}

	version := cfg.LibraryVersion
	if version == "" {
		version = inferVersionFromPath(path)
	}

	if version == "" {
		version = "unknown"
	}

	return LibraryInfo{LibraryPath: path, Version: version}, nil
}

func inferVersionFromPath(path string) string {
	name := filepath.Base(path)
	if m := versionPattern.FindStringSubmatch(name); len(m) == 2 {
		return m[1]
	}

	return ""
}

// The library is opened once per process and shared by every Processor.
var (
	sharedMu   sync.Mutex
	sharedLib  *Library
	sharedInfo LibraryInfo
)

// Shared detects and opens the engine library on first use and returns the
// same Library on every later call, whatever cfg says.
func Shared(cfg config.EngineConfig) (*Library, LibraryInfo, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedLib != nil {
		return sharedLib, sharedInfo, nil
	}

	info, err := Detect(cfg)
	if err != nil {
		return nil, info, err
	}

	lib, err := Open(info.LibraryPath)
	if err != nil {
		return nil, info, err
	}

	sharedLib, sharedInfo = lib, info

	return lib, info, nil
}

// ErrHandlesLive is returned by Shutdown while engine handles created from
// the shared library are still allocated.
var ErrHandlesLive = errors.New("engine handles still live")

// Shutdown closes the shared library. While any handle created from it is
// still allocated it returns ErrHandlesLive and leaves the library loaded.
// Calling Shutdown without a prior Shared is a no-op.
func Shutdown() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedLib == nil {
		return nil
	}

	if n := sharedLib.LiveHandles(); n > 0 {
		return fmt.Errorf("unload %s: %w (%d)", sharedLib.Path(), ErrHandlesLive, n)
	}

	err := sharedLib.Close()
	sharedLib = nil
	sharedInfo = LibraryInfo{}

	return err
}
