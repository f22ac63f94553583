package text

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxBytes int
		want     []string
	}{
		{
			name:     "fits without split",
			text:     "Hello world.",
			maxBytes: 100,
			want:     []string{"Hello world."},
		},
		{
			name:     "zero limit disables splitting",
			text:     "Hello. World.",
			maxBytes: 0,
			want:     []string{"Hello. World."},
		},
		{
			name:     "two sentences exceeding limit",
			text:     "Hello. World.",
			maxBytes: 8,
			want:     []string{"Hello.", "World."},
		},
		{
			name:     "groups sentences while they fit",
			text:     "A. B. C. Ddddddd.",
			maxBytes: 8,
			want:     []string{"A. B. C.", "Ddddddd."},
		},
		{
			name:     "mixed terminators and newlines",
			text:     "First!\nSecond?\nThird",
			maxBytes: 10,
			want:     []string{"First!", "Second?", "Third"},
		},
		{
			name:     "cjk terminators",
			text:     "你好。世界！",
			maxBytes: 9,
			want:     []string{"你好。", "世界！"},
		},
		{
			name:     "long sentence cut at space",
			text:     "hello world again",
			maxBytes: 12,
			want:     []string{"hello world", "again"},
		},
		{
			name:     "long word cut at rune boundary",
			text:     "ééééé",
			maxBytes: 3,
			want:     []string{"é", "é", "é", "é", "é"},
		},
		{
			name:     "whitespace only",
			text:     "  \n ",
			maxBytes: 2,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text, tt.maxBytes)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Chunk(%q, %d) = %q, want %q", tt.text, tt.maxBytes, got, tt.want)
			}
		})
	}
}

func TestChunk_RespectsLimitAndKeepsRunes(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dög. ", 20)

	for _, limit := range []int{5, 16, 40, 100} {
		chunks := Chunk(text, limit)
		if len(chunks) == 0 {
			t.Fatalf("limit %d: no chunks", limit)
		}

		var words int
		for _, c := range chunks {
			if len(c) > limit {
				t.Errorf("limit %d: chunk %q is %d bytes", limit, c, len(c))
			}
			if !utf8.ValidString(c) {
				t.Errorf("limit %d: chunk %q is not valid UTF-8", limit, c)
			}
			words += len(strings.Fields(c))
		}

		if limit >= 5 && words < len(strings.Fields(text)) {
			t.Errorf("limit %d: lost words, got %d", limit, words)
		}
	}
}
