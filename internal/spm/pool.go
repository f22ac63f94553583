package spm

import (
	"context"
	"fmt"

	concpool "github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
)

// Pool holds independently owned Processors loaded with the same model.
// Each member has its own engine handle, so members run in parallel while
// every member still serializes its own calls.
type Pool struct {
	members []*Processor
	idle    chan *Processor
}

// NewPool creates size Processors over b and loads src into each of them.
// On any failure the members created so far are closed.
func NewPool(ctx context.Context, b Binding, src ModelSource, size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}

	pl := &Pool{
		members: make([]*Processor, 0, size),
		idle:    make(chan *Processor, size),
	}

	for i := range size {
		p, err := New(b, opts...)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("pool member %d: %w", i, err), pl.Close())
		}

		pl.members = append(pl.members, p)

		if err := p.LoadContext(ctx, src); err != nil {
			return nil, multierr.Append(fmt.Errorf("pool member %d: %w", i, err), pl.Close())
		}

		pl.idle <- p
	}

	return pl, nil
}

// Size returns the number of members.
func (pl *Pool) Size() int { return len(pl.members) }

func (pl *Pool) checkout(ctx context.Context) (*Processor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case p := <-pl.idle:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (pl *Pool) checkin(p *Processor) { pl.idle <- p }

// Encode encodes text on the next idle member.
func (pl *Pool) Encode(ctx context.Context, text string) ([]int32, error) {
	p, err := pl.checkout(ctx)
	if err != nil {
		return nil, newEncodeError(0, err)
	}
	defer pl.checkin(p)

	return p.EncodeContext(ctx, text)
}

// Decode decodes ids on the next idle member.
func (pl *Pool) Decode(ctx context.Context, ids []int32) (string, error) {
	p, err := pl.checkout(ctx)
	if err != nil {
		return "", newDecodeError(0, err)
	}
	defer pl.checkin(p)

	return p.DecodeContext(ctx, ids)
}

// EncodeBatch encodes texts across all members. Results keep the order of
// texts. The first error cancels the remaining work.
func (pl *Pool) EncodeBatch(ctx context.Context, texts []string) ([][]int32, error) {
	out := make([][]int32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	workers := concpool.New().
		WithContext(ctx).
		WithMaxGoroutines(len(pl.members)).
		WithCancelOnError()

	for i, text := range texts {
		workers.Go(func(ctx context.Context) error {
			ids, err := pl.Encode(ctx, text)
			if err != nil {
				return fmt.Errorf("texts[%d]: %w", i, err)
			}

			out[i] = ids

			return nil
		})
	}

	if err := workers.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// EOSID returns the end-of-sentence id of the pooled model.
func (pl *Pool) EOSID() int32 { return pl.first().EOSID() }

// BOSID returns the beginning-of-sentence id of the pooled model.
func (pl *Pool) BOSID() int32 { return pl.first().BOSID() }

// VocabSize returns the vocabulary size of the pooled model.
func (pl *Pool) VocabSize() int32 { return pl.first().VocabSize() }

func (pl *Pool) first() *Processor { return pl.members[0] }

// Close closes every member and reports all failures.
func (pl *Pool) Close() error {
	var err error
	for _, p := range pl.members {
		err = multierr.Append(err, p.Close())
	}

	return err
}
