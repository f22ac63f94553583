package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-spm/internal/text"
	"github.com/example/go-spm/internal/tokenizer"
)

type batchEncoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]int32, error)
}

func newEncodeCmd() *cobra.Command {
	var (
		format     string
		addBOS     bool
		addEOS     bool
		chunkBytes int
	)

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode text into token ids (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("--format must be 'text' or 'json'")
			}

			input, err := readInput(args, cmd.InOrStdin(), len(args) == 0 && stdinIsTerminal())
			if err != nil {
				return err
			}

			tok, _, err := openTokenizer(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tok.Close() }()

			wrap := func(ids []int32) []int32 {
				if addBOS {
					if bos := tok.BOSID(); bos >= 0 {
						ids = append([]int32{bos}, ids...)
					}
				}
				if addEOS {
					if eos := tok.EOSID(); eos >= 0 {
						ids = append(ids, eos)
					}
				}
				return ids
			}

			out := cmd.OutOrStdout()

			if chunkBytes <= 0 {
				ids, err := tok.Encode(cmd.Context(), input)
				if err != nil {
					return err
				}
				ids = wrap(ids)

				if format == "json" {
					return json.NewEncoder(out).Encode(map[string][]int32{"ids": ids})
				}
				_, err = fmt.Fprintln(out, formatIDs(ids))
				return err
			}

			batch, err := encodeChunks(cmd.Context(), tok, text.Chunk(input, chunkBytes))
			if err != nil {
				return err
			}
			for i := range batch {
				batch[i] = wrap(batch[i])
			}

			if format == "json" {
				return json.NewEncoder(out).Encode(map[string][][]int32{"batch": batch})
			}
			for _, ids := range batch {
				if _, err := fmt.Fprintln(out, formatIDs(ids)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")
	cmd.Flags().BoolVar(&addBOS, "bos", false, "Prepend the model's begin-of-sequence id")
	cmd.Flags().BoolVar(&addEOS, "eos", false, "Append the model's end-of-sequence id")
	cmd.Flags().IntVar(&chunkBytes, "chunk-bytes", 0, "Split input at sentence ends into chunks of at most this many bytes, one line of ids each (0 = off)")

	return cmd
}

// encodeChunks encodes chunks in order, in parallel when tok is pooled.
func encodeChunks(ctx context.Context, tok tokenizer.Tokenizer, chunks []string) ([][]int32, error) {
	if be, ok := tok.(batchEncoder); ok {
		return be.EncodeBatch(ctx, chunks)
	}

	out := make([][]int32, len(chunks))
	for i, c := range chunks {
		ids, err := tok.Encode(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out[i] = ids
	}
	return out, nil
}
