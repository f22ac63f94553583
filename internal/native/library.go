//go:build darwin || freebsd || linux

package native

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"

	"github.com/example/go-spm/internal/spm"
)

// Library is an opened engine library. Its methods call straight into the
// shared object and implement spm.Binding.
type Library struct {
	path   string
	handle uintptr

	closeOnce sync.Once
	closeErr  error

	// live counts handles returned by ProcessorNew and not yet freed.
	live atomic.Int64

	processorNew  func() spm.Handle
	processorFree func(spm.Handle)
	processorLoad func(spm.Handle, *byte) int32
	encode        func(spm.Handle, *byte, **int32, *uintptr) int32
	idsFree       func(*int32)
	decode        func(spm.Handle, *int32, uintptr, **byte) int32
	stringFree    func(*byte)
	eosID         func(spm.Handle) int32
	bosID         func(spm.Handle) int32
	vocabSize     func(spm.Handle) int32
}

var _ spm.Binding = (*Library)(nil)

// Open loads the shared library at path and resolves every symbol of the C
// API. A missing symbol closes the library and returns an error.
func Open(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %q: %w", path, err)
	}

	lib := &Library{path: path, handle: handle}

	symbols := []struct {
		name string
		fptr any
	}{
		{"spm_processor_new", &lib.processorNew},
		{"spm_processor_free", &lib.processorFree},
		{"spm_processor_load", &lib.processorLoad},
		{"spm_encode", &lib.encode},
		{"spm_ids_free", &lib.idsFree},
		{"spm_decode", &lib.decode},
		{"spm_string_free", &lib.stringFree},
		{"spm_eos_id", &lib.eosID},
		{"spm_bos_id", &lib.bosID},
		{"spm_vocab_size", &lib.vocabSize},
	}

	for _, sym := range symbols {
		addr, err := purego.Dlsym(handle, sym.name)
		if err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("resolve %s in %q: %w", sym.name, path, err)
		}

		purego.RegisterFunc(sym.fptr, addr)
	}

	return lib, nil
}

// Path returns the file the library was opened from.
func (l *Library) Path() string { return l.path }

// Close unloads the library. It is safe to call more than once.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		if err := purego.Dlclose(l.handle); err != nil {
			l.closeErr = fmt.Errorf("dlclose %q: %w", l.path, err)
		}
	})

	return l.closeErr
}

// LiveHandles reports how many engine handles are still allocated.
func (l *Library) LiveHandles() int { return int(l.live.Load()) }

func (l *Library) ProcessorNew() spm.Handle {
	h := l.processorNew()
	if h != 0 {
		l.live.Add(1)
	}

	return h
}

func (l *Library) ProcessorFree(h spm.Handle) {
	l.processorFree(h)
	l.live.Add(-1)
}

func (l *Library) ProcessorLoad(h spm.Handle, path *byte) int32 {
	return l.processorLoad(h, path)
}

func (l *Library) Encode(h spm.Handle, text *byte, ids **int32, size *uintptr) int32 {
	return l.encode(h, text, ids, size)
}

func (l *Library) IDsFree(ids *int32) { l.idsFree(ids) }

func (l *Library) Decode(h spm.Handle, ids *int32, size uintptr, out **byte) int32 {
	return l.decode(h, ids, size, out)
}

func (l *Library) StringFree(s *byte) { l.stringFree(s) }

func (l *Library) EOSID(h spm.Handle) int32 { return l.eosID(h) }

func (l *Library) BOSID(h spm.Handle) int32 { return l.bosID(h) }

func (l *Library) VocabSize(h spm.Handle) int32 { return l.vocabSize(h) }
