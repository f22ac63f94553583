package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [id...]",
		Short: "Decode token ids into text (reads stdin when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args, cmd.InOrStdin(), len(args) == 0 && stdinIsTerminal())
			if err != nil {
				return err
			}

			ids, err := parseIDs(raw)
			if err != nil {
				return err
			}

			tok, _, err := openTokenizer(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tok.Close() }()

			text, err := tok.Decode(cmd.Context(), ids)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	return cmd
}
