package config

import (
	"fmt"
	"strings"

	"github.com/example/go-spm/internal/spm"
)

const (
	BackendAuto   = "auto"
	BackendNative = "native"
	BackendGo     = "go"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendAuto
	}
	switch backend {
	case BackendAuto, BackendNative, BackendGo:
		return backend, nil
	case "c", "ffi", "library":
		return BackendNative, nil
	case "pure-go", "golang":
		return BackendGo, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|%s)",
			raw,
			BackendAuto,
			BackendNative,
			BackendGo,
		)
	}
}

// NormalizeStatusConvention maps the configured string onto the engine's
// status convention.
func NormalizeStatusConvention(raw string) (spm.StatusConvention, error) {
	conv, err := spm.ParseStatusConvention(raw)
	if err != nil {
		return 0, fmt.Errorf("engine status convention: %w", err)
	}

	return conv, nil
}
