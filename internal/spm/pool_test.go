package spm_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/go-spm/internal/spm"
	"github.com/example/go-spm/internal/spm/spmtest"
)

func newPool(t *testing.T, eng *spmtest.Engine, size int) *spm.Pool {
	t.Helper()

	pl, err := spm.NewPool(context.Background(), eng, spm.Path("tokenizer.model"), size)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	return pl
}

func TestPool_EncodeBatchKeepsOrder(t *testing.T) {
	eng := spmtest.New()
	eng.CallDelay = time.Millisecond

	pl := newPool(t, eng, 3)
	if pl.Size() != 3 {
		t.Fatalf("Size = %d; want 3", pl.Size())
	}

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %02d", i)
	}

	got, err := pl.EncodeBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}

	if len(got) != len(texts) {
		t.Fatalf("EncodeBatch returned %d results; want %d", len(got), len(texts))
	}

	for i, ids := range got {
		text, err := pl.Decode(context.Background(), ids)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}

		if text != texts[i] {
			t.Errorf("batch[%d] decodes to %q; want %q", i, text, texts[i])
		}
	}

	if err := pl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := eng.LiveHandles(); n != 0 {
		t.Errorf("live handles = %d; want 0", n)
	}

	eng.Verify(t)
}

func TestPool_Introspection(t *testing.T) {
	pl := newPool(t, spmtest.New(), 2)
	defer pl.Close()

	if pl.EOSID() != 2 || pl.BOSID() != 1 || pl.VocabSize() != 8000 {
		t.Fatalf("eos/bos/vocab = %d/%d/%d; want 2/1/8000", pl.EOSID(), pl.BOSID(), pl.VocabSize())
	}
}

func TestPool_EncodeBatchError(t *testing.T) {
	pl := newPool(t, spmtest.New(), 2)
	defer pl.Close()

	_, err := pl.EncodeBatch(context.Background(), []string{"ok", "bad\x00"})
	if !errors.Is(err, spm.ErrInteriorNUL) {
		t.Fatalf("expected ErrInteriorNUL, got %v", err)
	}

	if !strings.Contains(err.Error(), "texts[1]") {
		t.Errorf("error %q does not name texts[1]", err)
	}
}

func TestPool_InvalidSize(t *testing.T) {
	if _, err := spm.NewPool(context.Background(), spmtest.New(), spm.Path("x"), 0); err == nil {
		t.Fatal("expected error for pool size 0")
	}
}

func TestPool_LoadFailureClosesMembers(t *testing.T) {
	eng := spmtest.New()
	eng.LoadStatus = 4

	_, err := spm.NewPool(context.Background(), eng, spm.Path("tokenizer.model"), 3)

	var loadErr *spm.LoadError
	if !errors.As(err, &loadErr) || loadErr.Code != 4 {
		t.Fatalf("expected *LoadError with code 4, got %v", err)
	}

	if n := eng.LiveHandles(); n != 0 {
		t.Errorf("live handles = %d; want 0", n)
	}
}

func TestPool_CheckoutHonoursContext(t *testing.T) {
	eng := spmtest.New()
	eng.CallDelay = 100 * time.Millisecond

	pl := newPool(t, eng, 1)
	defer pl.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = pl.Encode(context.Background(), "hello")
	}()

	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, err := pl.Encode(ctx, "hello"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	<-done
}
