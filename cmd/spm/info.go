package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/go-spm/internal/tokenizer"
)

// infoReport is what `spm info` prints.
type infoReport struct {
	EOSID     int32                `json:"eos_id" yaml:"eos_id" toml:"eos_id"`
	BOSID     int32                `json:"bos_id" yaml:"bos_id" toml:"bos_id"`
	VocabSize int32                `json:"vocab_size" yaml:"vocab_size" toml:"vocab_size"`
	Engine    tokenizer.EngineInfo `json:"engine" yaml:"engine" toml:"engine"`
}

func newInfoCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print model and engine information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case "text", "json", "yaml", "toml":
			default:
				return fmt.Errorf("--format must be one of text|json|yaml|toml")
			}

			tok, info, err := openTokenizer(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tok.Close() }()

			report := infoReport{
				EOSID:     tok.EOSID(),
				BOSID:     tok.BOSID(),
				VocabSize: tok.VocabSize(),
				Engine:    info,
			}

			return writeInfo(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json|yaml|toml")

	return cmd
}

func writeInfo(w io.Writer, format string, r infoReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(r)
	default:
		_, err := fmt.Fprintf(w,
			"backend:    %s\nlibrary:    %s\nversion:    %s\nmodel:      %s\npool size:  %d\nvocab size: %d\nbos id:     %d\neos id:     %d\n",
			r.Engine.Backend, orNone(r.Engine.LibraryPath), orNone(r.Engine.Version), r.Engine.ModelPath,
			r.Engine.PoolSize, r.VocabSize, r.BOSID, r.EOSID)
		return err
	}
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
