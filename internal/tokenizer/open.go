package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/example/go-spm/internal/bundle"
	"github.com/example/go-spm/internal/config"
	"github.com/example/go-spm/internal/goengine"
	"github.com/example/go-spm/internal/native"
	"github.com/example/go-spm/internal/spm"
)

// EngineInfo describes the engine a Tokenizer was opened on.
type EngineInfo struct {
	Backend     string `json:"backend" yaml:"backend" toml:"backend"`
	LibraryPath string `json:"library_path,omitempty" yaml:"library_path,omitempty" toml:"library_path,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	ModelPath   string `json:"model_path" yaml:"model_path" toml:"model_path"`
	PoolSize    int    `json:"pool_size" yaml:"pool_size" toml:"pool_size"`
}

// SelectBinding picks the engine for cfg.Backend. With "auto" the native
// library is preferred and the pure-Go engine is the fallback.
func SelectBinding(cfg config.EngineConfig, logger *slog.Logger) (spm.Binding, EngineInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return nil, EngineInfo{}, err
	}

	switch backend {
	case config.BackendGo:
		return goengine.New(), EngineInfo{Backend: config.BackendGo}, nil
	case config.BackendNative:
		lib, info, err := native.Shared(cfg)
		if err != nil {
			return nil, EngineInfo{Backend: config.BackendNative, LibraryPath: info.LibraryPath}, fmt.Errorf("open native engine: %w", err)
		}

		return lib, EngineInfo{Backend: config.BackendNative, LibraryPath: info.LibraryPath, Version: info.Version}, nil
	default:
		lib, info, err := native.Shared(cfg)
		if err != nil {
			logger.Debug("native engine unavailable, using go engine", "error", err)
			return goengine.New(), EngineInfo{Backend: config.BackendGo}, nil
		}

		return lib, EngineInfo{Backend: config.BackendNative, LibraryPath: info.LibraryPath, Version: info.Version}, nil
	}
}

// ResolveModel returns paths.model_path when it exists and otherwise looks
// for tokenizer.model in paths.bundle_dirs.
func ResolveModel(paths config.PathsConfig) (string, error) {
	if paths.ModelPath != "" {
		_, err := os.Stat(paths.ModelPath)
		if err == nil {
			return paths.ModelPath, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat model %s: %w", paths.ModelPath, err)
		}
	}

	p, err := bundle.New(paths.BundleDirs...).Resolve(bundle.DefaultName, bundle.DefaultExt)
	if err != nil {
		if paths.ModelPath != "" {
			return "", fmt.Errorf("model %s not found: %w", paths.ModelPath, err)
		}

		return "", err
	}

	return p, nil
}

// ProcessorOptions derives Processor options from cfg.
func ProcessorOptions(cfg config.Config, logger *slog.Logger) ([]spm.Option, error) {
	conv, err := config.NormalizeStatusConvention(cfg.Engine.StatusConvention)
	if err != nil {
		return nil, err
	}

	opts := []spm.Option{spm.WithStatusConvention(conv), spm.WithTempDir(cfg.Paths.TempDir)}
	if logger != nil {
		opts = append(opts, spm.WithLogger(logger))
	}

	return opts, nil
}

// Open builds a Tokenizer from cfg: it selects the engine, resolves the
// model and loads it into engine.pool_size handles.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Tokenizer, EngineInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, EngineInfo{}, err
	}

	b, info, err := SelectBinding(cfg.Engine, logger)
	if err != nil {
		return nil, info, err
	}

	modelPath, err := ResolveModel(cfg.Paths)
	if err != nil {
		return nil, info, err
	}

	info.ModelPath = modelPath
	info.PoolSize = cfg.Engine.PoolSize

	opts, err := ProcessorOptions(cfg, logger)
	if err != nil {
		return nil, info, err
	}

	logger.Debug("opening tokenizer", "backend", info.Backend, "path", modelPath, "pool_size", info.PoolSize)

	if cfg.Engine.PoolSize > 1 {
		tok, err := NewPooledTokenizer(ctx, b, spm.Path(modelPath), cfg.Engine.PoolSize, opts...)
		if err != nil {
			return nil, info, err
		}

		return tok, info, nil
	}

	tok, err := NewSentencePieceTokenizer(b, modelPath, opts...)
	if err != nil {
		return nil, info, err
	}

	return tok, info, nil
}
