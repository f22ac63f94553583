package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestReadInput(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		stdin       string
		interactive bool
		want        string
		wantErr     error
	}{
		{name: "args joined", args: []string{"hello", "world"}, want: "hello world"},
		{name: "args win over stdin", args: []string{"a"}, stdin: "b", want: "a"},
		{name: "stdin", stdin: "hello world\n", want: "hello world"},
		{name: "stdin crlf", stdin: "hello\r\n", want: "hello"},
		{name: "stdin keeps inner newlines", stdin: "a\nb\n", want: "a\nb"},
		{name: "empty stdin", stdin: "", want: ""},
		{name: "terminal without args", interactive: true, wantErr: errNoInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInput(tt.args, strings.NewReader(tt.stdin), tt.interactive)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readInput: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	got, err := parseIDs("3 4,\t5\n6")
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	if want := []int32{3, 4, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := parseIDs("  "); !errors.Is(err, errNoInput) {
		t.Errorf("blank input: err = %v, want errNoInput", err)
	}
	if _, err := parseIDs("3 x"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := parseIDs("4294967296"); err == nil {
		t.Error("expected error for id outside int32")
	}
}

func TestFormatIDs(t *testing.T) {
	if got := formatIDs([]int32{1, -1, 42}); got != "1 -1 42" {
		t.Errorf("got %q", got)
	}
	if got := formatIDs(nil); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
