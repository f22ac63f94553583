// Package tokenizer is the public face of the engine binding: a Tokenizer
// that encodes text to SentencePiece ids and back, backed either by the
// native C API library or by the pure-Go engine.
package tokenizer

import "context"

// Tokenizer encodes text into SentencePiece token IDs and decodes them back.
type Tokenizer interface {
	// Encode tokenizes text and returns SentencePiece token IDs.
	Encode(ctx context.Context, text string) ([]int32, error)
	// Decode joins token IDs back into text.
	Decode(ctx context.Context, ids []int32) (string, error)
	EOSID() int32
	BOSID() int32
	VocabSize() int32
	Close() error
}
