package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-spm/internal/model"
	"github.com/example/go-spm/internal/tokenizer"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model acquisition and verification commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		hfRepo   string
		filename string
		revision string
		sha      string
		outDir   string
		hfToken  string
		baseURL  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a SentencePiece model from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			manifest, err := model.TokenizerManifest(hfRepo, filename, revision, sha)
			if err != nil {
				return err
			}

			paths, err := model.Download(cmd.Context(), model.DownloadOptions{
				Manifest: manifest,
				OutDir:   outDir,
				HFToken:  hfToken,
				BaseURL:  baseURL,
				Stdout:   cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}

			slog.Debug("model downloaded", "repo", manifest.Repo, "path", strings.Join(paths, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face repository, owner/name (required)")
	cmd.Flags().StringVar(&filename, "file", model.DefaultFilename, "Model file name inside the repository")
	cmd.Flags().StringVar(&revision, "revision", "main", "Repository revision (branch, tag or commit)")
	cmd.Flags().StringVar(&sha, "sha256", "", "Expected sha256 (default: resolved from hub metadata)")
	cmd.Flags().StringVar(&outDir, "out-dir", "models", "Directory where model files are stored")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")
	cmd.Flags().StringVar(&baseURL, "hub-url", model.DefaultBaseURL, "Hugging Face hub base URL")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	var sha string

	cmd := &cobra.Command{
		Use:   "verify [path]",
		Short: "Check a model's checksum and load it with the configured engine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			} else if path, err = tokenizer.ResolveModel(cfg.Paths); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "verifying model: %s\n", path)

			actual, err := model.Checksum(path)
			if err != nil {
				return err
			}

			expected := strings.ToLower(sha)
			if expected == "" {
				expected, _ = model.LockedChecksum(filepath.Dir(path), filepath.Base(path))
			}

			switch {
			case expected == "":
				_, _ = fmt.Fprintf(out, "sha256: %s (no expected checksum)\n", actual)
			case expected != actual:
				return &model.ChecksumMismatchError{Filename: path, Expected: expected, Actual: actual}
			default:
				_, _ = fmt.Fprintf(out, "sha256: %s (match)\n", actual)
			}

			b, info, err := tokenizer.SelectBinding(cfg.Engine, slog.Default())
			if err != nil {
				return err
			}

			opts, err := tokenizer.ProcessorOptions(cfg, slog.Default())
			if err != nil {
				return err
			}

			tok, err := tokenizer.NewSentencePieceTokenizer(b, path, opts...)
			if err != nil {
				return fmt.Errorf("load with %s engine: %w", info.Backend, err)
			}
			defer func() { _ = tok.Close() }()

			if tok.VocabSize() <= 0 {
				return errors.New("model loaded but reports no vocabulary")
			}

			_, err = fmt.Fprintf(out, "loaded with %s engine: vocab=%d bos=%d eos=%d\n",
				info.Backend, tok.VocabSize(), tok.BOSID(), tok.EOSID())
			return err
		},
	}

	cmd.Flags().StringVar(&sha, "sha256", "", "Expected sha256 (default: the lock manifest next to the model)")

	return cmd
}
