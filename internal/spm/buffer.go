package spm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Upper bounds on what the engine may plausibly hand back. Anything larger
// is treated as a corrupted length, not as data.
const (
	maxForeignElements    = 1 << 28
	maxForeignStringBytes = 1 << 30
)

// receiveBuffer copies n elements starting at ptr into Go memory and hands
// ptr to release exactly once, also when the copy panics. A nil ptr with
// n == 0 is an empty result and nothing is released.
func receiveBuffer[T any](op string, ptr *T, n uintptr, release func(*T)) []T {
	if ptr == nil {
		if n != 0 {
			panic(&ContractViolation{Op: op, Detail: fmt.Sprintf("nil buffer with length %d", n)})
		}

		return []T{}
	}

	defer release(ptr)

	if n > maxForeignElements {
		panic(&ContractViolation{Op: op, Detail: fmt.Sprintf("buffer length %d exceeds limit", n)})
	}

	out := make([]T, int(n))
	copy(out, unsafe.Slice(ptr, int(n)))

	return out
}

// receiveString copies the NUL-terminated buffer at ptr into a Go string,
// replacing ill-formed UTF-8, and releases ptr exactly once.
func receiveString(op string, ptr *byte, release func(*byte)) string {
	if ptr == nil {
		return ""
	}

	defer release(ptr)

	base := unsafe.Pointer(ptr)

	var n uintptr
	for *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
		if n > maxForeignStringBytes {
			panic(&ContractViolation{Op: op, Detail: "string buffer is not NUL-terminated within limit"})
		}
	}

	s := string(unsafe.Slice(ptr, int(n)))

	repaired, _, err := transform.String(runes.ReplaceIllFormed(), s)
	if err != nil {
		return strings.ToValidUTF8(s, "\uFFFD")
	}

	return repaired
}

// cString returns a NUL-terminated copy of s.
func cString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, ErrInteriorNUL
	}

	b := make([]byte, len(s)+1)
	copy(b, s)

	return b, nil
}

// withTemporaryFile writes data to a uniquely named file in dir (the system
// temp dir when empty), runs fn with its path and removes the file on every
// exit path.
func withTemporaryFile(dir string, data []byte, log *slog.Logger, fn func(path string) error) error {
	f, err := os.CreateTemp(dir, tempModelPattern)
	if err != nil {
		return fmt.Errorf("create temp sentencepiece file: %w", err)
	}

	path := f.Name()

	defer func() {
		rmErr := os.Remove(path)
		if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("remove temp model file", slog.String("path", path), slog.String("error", rmErr.Error()))
		}
	}()

	_, err = f.Write(data)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("write tokenizer model bytes: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("close tokenizer temp file: %w", err)
	}

	return fn(path)
}

const tempModelPattern = "spm-*.model"
