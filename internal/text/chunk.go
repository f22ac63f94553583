// Package text splits long input into pieces small enough to encode one at
// a time.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk splits text into chunks of at most maxBytes bytes. It cuts at
// sentence ends and newlines, grouping consecutive sentences while they fit.
// A sentence longer than maxBytes is cut at its last space that fits, or at
// a rune boundary when it has none. Whitespace between chunks is dropped.
// A maxBytes of 0 or less returns text as a single chunk.
func Chunk(text string, maxBytes int) []string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, s := range splitSentences(text) {
		for len(s) > maxBytes {
			flush()
			head, tail := cut(s, maxBytes)
			chunks = append(chunks, head)
			s = tail
		}
		if s == "" {
			continue
		}

		switch {
		case current.Len() == 0:
			current.WriteString(s)
		case current.Len()+1+len(s) > maxBytes:
			flush()
			current.WriteString(s)
		default:
			current.WriteByte(' ')
			current.WriteString(s)
		}
	}
	flush()

	return chunks
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}

// splitSentences splits text after each terminator, keeping the terminator
// with its sentence. Empty segments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i, r := range text {
		if !isTerminator(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// cut returns a head of at most maxBytes bytes and the trimmed remainder.
func cut(s string, maxBytes int) (string, string) {
	limit := maxBytes
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	if limit == 0 {
		// maxBytes is smaller than the first rune.
		_, size := utf8.DecodeRuneInString(s)
		limit = size
	}

	if i := strings.LastIndexFunc(s[:limit], unicode.IsSpace); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i:])
	}

	return s[:limit], strings.TrimSpace(s[limit:])
}
