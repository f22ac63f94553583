package tokenizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/example/go-spm/internal/bundle"
	"github.com/example/go-spm/internal/spm"
)

// ErrEmptyPath is returned when NewSentencePieceTokenizer is called with an empty path.
var ErrEmptyPath = errors.New("tokenizer model path must not be empty")

// SentencePieceTokenizer implements Tokenizer over a single engine handle.
// Calls are serialized by the underlying Processor.
type SentencePieceTokenizer struct {
	proc *spm.Processor
}

var _ Tokenizer = (*SentencePieceTokenizer)(nil)

// NewSentencePieceTokenizer loads a SentencePiece model from the given path.
func NewSentencePieceTokenizer(b spm.Binding, modelPath string, opts ...spm.Option) (*SentencePieceTokenizer, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	return newLoaded(b, spm.Path(modelPath), opts)
}

// NewSentencePieceTokenizerFromBytes loads a SentencePiece model from raw bytes.
// The engine only exposes a file-path API, so the bytes are written to a
// temporary file that is removed once the load returns.
func NewSentencePieceTokenizerFromBytes(b spm.Binding, data []byte, opts ...spm.Option) (*SentencePieceTokenizer, error) {
	if len(data) == 0 {
		return nil, errors.New("tokenizer model data must not be empty")
	}

	return newLoaded(b, spm.Bytes(data), opts)
}

// NewSentencePieceTokenizerFromBundle resolves name.ext in bndl and loads it.
// The engine reads model files from the host filesystem, so a bundle over any
// other afero.Fs is read into memory and loaded as bytes.
func NewSentencePieceTokenizerFromBundle(b spm.Binding, bndl *bundle.Bundle, name, ext string, opts ...spm.Option) (*SentencePieceTokenizer, error) {
	if _, onDisk := bndl.FS.(*afero.OsFs); onDisk {
		path, err := bndl.Resolve(name, ext)
		if err != nil {
			return nil, err
		}

		return NewSentencePieceTokenizer(b, path, opts...)
	}

	data, err := bndl.ReadFile(name, ext)
	if err != nil {
		return nil, err
	}

	return NewSentencePieceTokenizerFromBytes(b, data, opts...)
}

func newLoaded(b spm.Binding, src spm.ModelSource, opts []spm.Option) (*SentencePieceTokenizer, error) {
	proc, err := spm.New(b, opts...)
	if err != nil {
		return nil, err
	}

	if err := proc.Load(src); err != nil {
		_ = proc.Close()
		return nil, err
	}

	return &SentencePieceTokenizer{proc: proc}, nil
}

func (t *SentencePieceTokenizer) Encode(ctx context.Context, text string) ([]int32, error) {
	return t.proc.EncodeContext(ctx, text)
}

func (t *SentencePieceTokenizer) Decode(ctx context.Context, ids []int32) (string, error) {
	return t.proc.DecodeContext(ctx, ids)
}

func (t *SentencePieceTokenizer) EOSID() int32 { return t.proc.EOSID() }

func (t *SentencePieceTokenizer) BOSID() int32 { return t.proc.BOSID() }

func (t *SentencePieceTokenizer) VocabSize() int32 { return t.proc.VocabSize() }

// Processor exposes the underlying Processor.
func (t *SentencePieceTokenizer) Processor() *spm.Processor { return t.proc }

func (t *SentencePieceTokenizer) Close() error {
	if err := t.proc.Close(); err != nil {
		return fmt.Errorf("close tokenizer: %w", err)
	}

	return nil
}

// PooledTokenizer implements Tokenizer over several independent handles
// loaded with the same model.
type PooledTokenizer struct {
	pool *spm.Pool
}

var _ Tokenizer = (*PooledTokenizer)(nil)

// NewPooledTokenizer loads src into size handles.
func NewPooledTokenizer(ctx context.Context, b spm.Binding, src spm.ModelSource, size int, opts ...spm.Option) (*PooledTokenizer, error) {
	pl, err := spm.NewPool(ctx, b, src, size, opts...)
	if err != nil {
		return nil, err
	}

	return &PooledTokenizer{pool: pl}, nil
}

func (t *PooledTokenizer) Encode(ctx context.Context, text string) ([]int32, error) {
	return t.pool.Encode(ctx, text)
}

func (t *PooledTokenizer) Decode(ctx context.Context, ids []int32) (string, error) {
	return t.pool.Decode(ctx, ids)
}

// EncodeBatch encodes texts concurrently across the pool, keeping order.
func (t *PooledTokenizer) EncodeBatch(ctx context.Context, texts []string) ([][]int32, error) {
	return t.pool.EncodeBatch(ctx, texts)
}

func (t *PooledTokenizer) EOSID() int32 { return t.pool.EOSID() }

func (t *PooledTokenizer) BOSID() int32 { return t.pool.BOSID() }

func (t *PooledTokenizer) VocabSize() int32 { return t.pool.VocabSize() }

// Size returns the number of handles in the pool.
func (t *PooledTokenizer) Size() int { return t.pool.Size() }

func (t *PooledTokenizer) Close() error { return t.pool.Close() }
