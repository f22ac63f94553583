package testutil

import (
	"os"
	"path/filepath"
	"testing"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

// Ids of the pieces in the model written by WriteTinyModel.
const (
	TinyUnkID   int32 = 0
	TinyBOSID   int32 = 1
	TinyEOSID   int32 = 2
	TinyHelloID int32 = 3
	TinyWorldID int32 = 4
	TinyVocab   int32 = 13
)

// TinyModelBytes returns a serialized UNIGRAM model that segments
// "hello world" into [TinyHelloID TinyWorldID].
func TinyModelBytes(tb testing.TB) []byte {
	tb.Helper()

	type piece struct {
		text  string
		score float32
		kind  gosp.ModelProto_SentencePiece_Type
	}

	pieces := []piece{
		{"<unk>", 0, gosp.ModelProto_SentencePiece_UNKNOWN},
		{"<s>", 0, gosp.ModelProto_SentencePiece_CONTROL},
		{"</s>", 0, gosp.ModelProto_SentencePiece_CONTROL},
		{"▁hello", -1, gosp.ModelProto_SentencePiece_NORMAL},
		{"▁world", -1, gosp.ModelProto_SentencePiece_NORMAL},
		{"▁", -5, gosp.ModelProto_SentencePiece_NORMAL},
	}

	for _, r := range "helowrd" {
		pieces = append(pieces, piece{string(r), -10, gosp.ModelProto_SentencePiece_NORMAL})
	}

	mp := &gosp.ModelProto{}
	for _, p := range pieces {
		mp.Pieces = append(mp.Pieces, &gosp.ModelProto_SentencePiece{
			Piece: proto.String(p.text),
			Score: proto.Float32(p.score),
			Type:  p.kind.Enum(),
		})
	}

	data, err := proto.Marshal(mp)
	if err != nil {
		tb.Fatalf("marshal tiny model: %v", err)
	}

	return data
}

// WriteTinyModel writes TinyModelBytes to a temp dir and returns the path.
func WriteTinyModel(tb testing.TB) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "tokenizer.model")
	if err := os.WriteFile(path, TinyModelBytes(tb), 0o600); err != nil {
		tb.Fatalf("write tiny model: %v", err)
	}

	return path
}
