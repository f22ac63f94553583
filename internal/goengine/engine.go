// Package goengine is an in-process engine that honours the spm.Binding
// contract without the native shared library. Segmentation is delegated to
// go-sentencepiece-encoder (UNIGRAM models); decode tables and special ids
// come from the model's protobuf.
//
// Every buffer handed out by Encode and Decode is tracked until the matching
// free. Freeing a pointer the engine never handed out panics.
package goengine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"

	"github.com/example/go-spm/internal/spm"
)

// Status codes returned by the engine. Zero is success, matching the C API.
const (
	StatusOK            int32 = 0
	StatusInvalidHandle int32 = 1
	StatusNotLoaded     int32 = 2
	StatusIO            int32 = 3
	StatusParse         int32 = 4
	StatusIDOutOfRange  int32 = 5
)

// unknownSurface is what SentencePiece prints for the unknown piece.
const unknownSurface = " ⁇ "

const wordSep = "▁"

type model struct {
	sp     gosp.Sentencepiece
	pieces []string
	kinds  []gosp.ModelProto_SentencePiece_Type
	bos    int32
	eos    int32
}

type processor struct {
	model *model
}

// Engine implements spm.Binding. The zero value is not usable; call New.
type Engine struct {
	mu      sync.Mutex
	next    spm.Handle
	procs   map[spm.Handle]*processor
	idBufs  map[*int32][]int32
	strBufs map[*byte][]byte
}

var _ spm.Binding = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		procs:   make(map[spm.Handle]*processor),
		idBufs:  make(map[*int32][]int32),
		strBufs: make(map[*byte][]byte),
	}
}

// Outstanding reports how many buffers have been handed out and not freed.
func (e *Engine) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.idBufs) + len(e.strBufs)
}

// Handles reports how many processors are live.
func (e *Engine) Handles() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.procs)
}

func (e *Engine) ProcessorNew() spm.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.procs[e.next] = &processor{}

	return e.next
}

func (e *Engine) ProcessorFree(h spm.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.procs[h]; !ok {
		panic(fmt.Sprintf("goengine: free of unknown processor %d", h))
	}

	delete(e.procs, h)
}

func (e *Engine) lookup(h spm.Handle) *processor {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.procs[h]
}

func (e *Engine) ProcessorLoad(h spm.Handle, path *byte) int32 {
	p := e.lookup(h)
	if p == nil {
		return StatusInvalidHandle
	}

	m, status := loadModel(goString(path))
	if status != StatusOK {
		return status
	}

	e.mu.Lock()
	p.model = m
	e.mu.Unlock()

	return StatusOK
}

func loadModel(path string) (*model, int32) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, StatusIO
	}

	var mp gosp.ModelProto
	if err := proto.Unmarshal(data, &mp); err != nil {
		return nil, StatusParse
	}

	if len(mp.GetPieces()) == 0 {
		return nil, StatusParse
	}

	sp, err := gosp.NewSentencepieceFromFile(path, false)
	if err != nil {
		return nil, StatusParse
	}

	m := &model{
		sp:     sp,
		pieces: make([]string, len(mp.GetPieces())),
		kinds:  make([]gosp.ModelProto_SentencePiece_Type, len(mp.GetPieces())),
		bos:    spm.NoID,
		eos:    spm.NoID,
	}

	for i, piece := range mp.GetPieces() {
		m.pieces[i] = piece.GetPiece()
		m.kinds[i] = piece.GetType()

		if piece.GetType() != gosp.ModelProto_SentencePiece_CONTROL {
			continue
		}

		switch piece.GetPiece() {
		case "<s>":
			m.bos = int32(i)
		case "</s>":
			m.eos = int32(i)
		}
	}

	return m, StatusOK
}

func (e *Engine) loaded(h spm.Handle) (*model, int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.procs[h]
	if p == nil {
		return nil, StatusInvalidHandle
	}

	if p.model == nil {
		return nil, StatusNotLoaded
	}

	return p.model, StatusOK
}

func (e *Engine) Encode(h spm.Handle, text *byte, ids **int32, size *uintptr) int32 {
	m, status := e.loaded(h)
	if status != StatusOK {
		return status
	}

	s := goString(text)

	var out []int32
	if s != "" {
		raw := m.sp.TokenizeToIDs(s)

		out = make([]int32, len(raw), len(raw)+1)
		for i, id := range raw {
			out[i] = int32(id)
		}
	} else {
		out = make([]int32, 0, 1)
	}

	ptr := &out[:1][0]

	e.mu.Lock()
	e.idBufs[ptr] = out
	e.mu.Unlock()

	*ids = ptr
	*size = uintptr(len(out))

	return StatusOK
}

func (e *Engine) IDsFree(ids *int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.idBufs[ids]; !ok {
		panic(fmt.Sprintf("goengine: spm_ids_free of unknown pointer %p", ids))
	}

	delete(e.idBufs, ids)
}

func (e *Engine) Decode(h spm.Handle, ids *int32, size uintptr, out **byte) int32 {
	m, status := e.loaded(h)
	if status != StatusOK {
		return status
	}

	var in []int32
	if size > 0 {
		in = unsafe.Slice(ids, int(size))
	}

	text, ok := m.decode(in)
	if !ok {
		return StatusIDOutOfRange
	}

	buf := make([]byte, len(text)+1)
	copy(buf, text)

	ptr := &buf[0]

	e.mu.Lock()
	e.strBufs[ptr] = buf
	e.mu.Unlock()

	*out = ptr

	return StatusOK
}

func (m *model) decode(ids []int32) (string, bool) {
	var sb strings.Builder

	for _, id := range ids {
		if id < 0 || int(id) >= len(m.pieces) {
			return "", false
		}

		switch m.kinds[id] {
		case gosp.ModelProto_SentencePiece_CONTROL:
			continue
		case gosp.ModelProto_SentencePiece_UNKNOWN:
			sb.WriteString(unknownSurface)
		default:
			sb.WriteString(m.pieces[id])
		}
	}

	text := strings.ReplaceAll(sb.String(), wordSep, " ")

	return strings.TrimPrefix(text, " "), true
}

func (e *Engine) StringFree(s *byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.strBufs[s]; !ok {
		panic(fmt.Sprintf("goengine: spm_string_free of unknown pointer %p", s))
	}

	delete(e.strBufs, s)
}

func (e *Engine) EOSID(h spm.Handle) int32 {
	m, status := e.loaded(h)
	if status != StatusOK {
		return spm.NoID
	}

	return m.eos
}

func (e *Engine) BOSID(h spm.Handle) int32 {
	m, status := e.loaded(h)
	if status != StatusOK {
		return spm.NoID
	}

	return m.bos
}

func (e *Engine) VocabSize(h spm.Handle) int32 {
	m, status := e.loaded(h)
	if status != StatusOK {
		return spm.NoID
	}

	return int32(len(m.pieces))
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
