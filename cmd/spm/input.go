package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

var errNoInput = errors.New("either provide arguments or pipe input on stdin")

// stdinIsTerminal reports whether stdin is attached to a terminal. Tests
// replace it.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readInput joins args with spaces, or reads all of stdin when no args are
// given and stdin is not a terminal. A single trailing newline from stdin is
// dropped.
func readInput(args []string, stdin io.Reader, interactive bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if interactive {
		return "", errNoInput
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	s := strings.TrimSuffix(string(b), "\n")
	s = strings.TrimSuffix(s, "\r")

	return s, nil
}

// parseIDs parses whitespace or comma separated token ids.
func parseIDs(raw string) ([]int32, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, errNoInput
	}

	ids := make([]int32, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", f, err)
		}
		ids[i] = int32(n)
	}

	return ids, nil
}

func formatIDs(ids []int32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, " ")
}
