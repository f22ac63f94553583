package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-spm/internal/config"
	"github.com/example/go-spm/internal/doctor"
	"github.com/example/go-spm/internal/native"
	"github.com/example/go-spm/internal/tokenizer"
)

func newDoctorCmd() *cobra.Command {
	var probeText string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local engine and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Engine.Backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backend: %s\n", backend)

			dcfg := doctorConfig(cfg, backend)
			dcfg.ProbeText = probeText

			result := doctor.Run(dcfg, out)
			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return fmt.Errorf("doctor checks failed: %w", result.Err())
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().StringVar(&probeText, "probe-text", doctor.DefaultProbeText, "Text used for the round-trip check")

	return cmd
}

// doctorConfig maps the loaded config onto doctor checks for backend.
func doctorConfig(cfg config.Config, backend string) doctor.Config {
	modelFile, err := tokenizer.ResolveModel(cfg.Paths)
	if err != nil || modelFile == "" {
		modelFile = cfg.Paths.ModelPath
	}

	return doctor.Config{
		Library:     func() (string, error) { return probeLibrary(cfg.Engine, backend) },
		SkipLibrary: backend == config.BackendGo,
		ModelFiles:  []string{modelFile},
		Open: func(ctx context.Context) (tokenizer.Tokenizer, error) {
			tok, _, err := tokenizer.Open(ctx, cfg, slog.Default())
			return tok, err
		},
	}
}

// probeLibrary opens the native library. Under the auto backend a missing
// library is not a failure since the go engine takes over.
func probeLibrary(cfg config.EngineConfig, backend string) (string, error) {
	_, info, err := native.Shared(cfg)
	if err != nil {
		if backend == config.BackendAuto && errors.Is(err, native.ErrLibraryNotFound) {
			return "not found, using go engine", nil
		}
		return "", err
	}

	if info.Version == "" {
		return info.LibraryPath, nil
	}
	return fmt.Sprintf("%s (%s)", info.LibraryPath, info.Version), nil
}
