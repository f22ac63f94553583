// Package spmtest provides an instrumented in-memory engine implementing
// spm.Binding for tests.
//
// The engine counts every buffer it hands out and every buffer handed back,
// flags frees of unknown pointers, and records whether two foreign calls were
// ever in flight at the same time.
package spmtest

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/example/go-spm/internal/spm"
)

// Engine is a scripted spm.Binding. Configure the exported fields before
// handing it to a Processor; they are read without locking during calls.
type Engine struct {
	// Encodings maps text to the ids Encode returns. Unlisted text encodes
	// to its bytes.
	Encodings map[string][]int32

	// Status codes returned by load, encode and decode.
	LoadStatus   int32
	EncodeStatus int32
	DecodeStatus int32

	// OmitBuffer makes Encode and Decode leave the out buffer nil.
	OmitBuffer bool
	// DecodeBytes, when set, is returned verbatim by Decode.
	DecodeBytes []byte
	// FailCreate makes ProcessorNew return the zero handle.
	FailCreate bool
	// CallDelay is slept inside every encode and decode.
	CallDelay time.Duration

	EOS   int32
	BOS   int32
	Vocab int32

	mu         sync.Mutex
	nextHandle spm.Handle
	handles    map[spm.Handle]bool
	idBufs     map[*int32]idBuffer
	strBufs    map[*byte]strBuffer
	active     map[spm.Handle]int
	loads      []LoadCall
	violations []string
	allocs     int
	frees      int
	overlaps   int
}

type idBuffer struct {
	owner spm.Handle
	data  []int32
}

type strBuffer struct {
	owner spm.Handle
	data  []byte
}

// LoadCall records one ProcessorLoad invocation.
type LoadCall struct {
	Path string
	// Data is the model file content at load time, nil if unreadable.
	Data []byte
}

// New returns an engine with a small default vocabulary.
func New() *Engine {
	return &Engine{
		Encodings: map[string][]int32{
			"hello": {1, 2, 3},
		},
		EOS:   2,
		BOS:   1,
		Vocab: 8000,
	}
}

var _ spm.Binding = (*Engine)(nil)

// enter marks a call in flight on h and returns the matching exit.
func (e *Engine) enter(h spm.Handle) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		e.active = make(map[spm.Handle]int)
	}

	e.active[h]++
	if e.active[h] > 1 {
		e.overlaps++
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.active[h]--
	}
}

func (e *Engine) violate(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.violations = append(e.violations, fmt.Sprintf(format, args...))
}

func (e *Engine) ProcessorNew() spm.Handle {
	if e.FailCreate {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handles == nil {
		e.handles = make(map[spm.Handle]bool)
	}

	e.nextHandle++
	e.handles[e.nextHandle] = true

	return e.nextHandle
}

func (e *Engine) ProcessorFree(h spm.Handle) {
	defer e.enter(h)()

	e.mu.Lock()
	live := e.handles[h]
	delete(e.handles, h)
	e.mu.Unlock()

	if !live {
		e.violate("free of unknown handle %d", h)
	}
}

func (e *Engine) ProcessorLoad(h spm.Handle, path *byte) int32 {
	defer e.enter(h)()
	e.checkHandle("load", h)

	p := goString(path)
	data, err := os.ReadFile(p)
	if err != nil {
		data = nil
	}

	e.mu.Lock()
	e.loads = append(e.loads, LoadCall{Path: p, Data: data})
	e.mu.Unlock()

	return e.LoadStatus
}

func (e *Engine) Encode(h spm.Handle, text *byte, ids **int32, size *uintptr) int32 {
	defer e.enter(h)()
	e.checkHandle("encode", h)
	time.Sleep(e.CallDelay)

	s := goString(text)

	out, ok := e.Encodings[s]
	if !ok {
		out = make([]int32, len(s))
		for i := range len(s) {
			out[i] = int32(s[i])
		}
	}

	if e.OmitBuffer {
		*ids = nil
		*size = 0

		return e.EncodeStatus
	}

	// Keep a non-nil pointer for empty results, like engines that always
	// allocate.
	buf := make([]int32, len(out), len(out)+1)
	copy(buf, out)
	ptr := &buf[:1][0]

	e.mu.Lock()
	if e.idBufs == nil {
		e.idBufs = make(map[*int32]idBuffer)
	}
	e.idBufs[ptr] = idBuffer{owner: h, data: buf}
	e.allocs++
	e.mu.Unlock()

	*ids = ptr
	*size = uintptr(len(buf))

	return e.EncodeStatus
}

func (e *Engine) IDsFree(ids *int32) {
	e.mu.Lock()
	buf, ok := e.idBufs[ids]
	e.mu.Unlock()

	if !ok {
		e.violate("spm_ids_free of unknown pointer %p", ids)
		return
	}

	defer e.enter(buf.owner)()

	e.mu.Lock()
	delete(e.idBufs, ids)
	e.frees++
	e.mu.Unlock()
}

func (e *Engine) Decode(h spm.Handle, ids *int32, size uintptr, out **byte) int32 {
	defer e.enter(h)()
	e.checkHandle("decode", h)
	time.Sleep(e.CallDelay)

	var in []int32
	if size > 0 {
		in = unsafe.Slice(ids, int(size))
	}

	if e.OmitBuffer {
		*out = nil
		return e.DecodeStatus
	}

	var text []byte
	if e.DecodeBytes != nil {
		text = e.DecodeBytes
	} else {
		text = []byte(e.decodeText(in))
	}

	buf := make([]byte, len(text)+1)
	copy(buf, text)

	ptr := &buf[0]

	e.mu.Lock()
	if e.strBufs == nil {
		e.strBufs = make(map[*byte]strBuffer)
	}
	e.strBufs[ptr] = strBuffer{owner: h, data: buf}
	e.allocs++
	e.mu.Unlock()

	*out = ptr

	return e.DecodeStatus
}

func (e *Engine) decodeText(ids []int32) string {
	for text, enc := range e.Encodings {
		if slices.Equal(enc, ids) {
			return text
		}
	}

	b := make([]byte, len(ids))
	for i, id := range ids {
		b[i] = byte(id)
	}

	return string(b)
}

func (e *Engine) StringFree(s *byte) {
	e.mu.Lock()
	buf, ok := e.strBufs[s]
	e.mu.Unlock()

	if !ok {
		e.violate("spm_string_free of unknown pointer %p", s)
		return
	}

	defer e.enter(buf.owner)()

	e.mu.Lock()
	delete(e.strBufs, s)
	e.frees++
	e.mu.Unlock()
}

func (e *Engine) EOSID(h spm.Handle) int32 {
	defer e.enter(h)()
	e.checkHandle("eos_id", h)

	return e.EOS
}

func (e *Engine) BOSID(h spm.Handle) int32 {
	defer e.enter(h)()
	e.checkHandle("bos_id", h)

	return e.BOS
}

func (e *Engine) VocabSize(h spm.Handle) int32 {
	defer e.enter(h)()
	e.checkHandle("vocab_size", h)

	return e.Vocab
}

func (e *Engine) checkHandle(op string, h spm.Handle) {
	e.mu.Lock()
	live := e.handles[h]
	e.mu.Unlock()

	if !live {
		e.violate("%s on invalid handle %d", op, h)
	}
}

// Allocations returns the number of buffers handed out.
func (e *Engine) Allocations() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.allocs
}

// Releases returns the number of buffers handed back.
func (e *Engine) Releases() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.frees
}

// Overlaps returns how many calls started while another call on the same
// handle was in flight.
func (e *Engine) Overlaps() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.overlaps
}

// LiveHandles returns the number of handles not yet freed.
func (e *Engine) LiveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.handles)
}

// Loads returns every recorded ProcessorLoad call.
func (e *Engine) Loads() []LoadCall {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]LoadCall(nil), e.loads...)
}

// Violations returns contract violations seen so far.
func (e *Engine) Violations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.violations...)
}

// Verify fails tb if any buffer is still outstanding, any call overlapped or
// any contract violation was recorded.
func (e *Engine) Verify(tb testing.TB) {
	tb.Helper()

	if a, r := e.Allocations(), e.Releases(); a != r {
		tb.Errorf("allocations = %d, releases = %d", a, r)
	}

	if n := e.Overlaps(); n != 0 {
		tb.Errorf("%d foreign calls overlapped", n)
	}

	for _, v := range e.Violations() {
		tb.Errorf("contract violation: %s", v)
	}
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}

	base := unsafe.Pointer(p)

	var n uintptr
	for *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
	}

	return string(unsafe.Slice(p, int(n)))
}
