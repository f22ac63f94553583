package spm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"
)

// NoID is the no-handle fallback returned by EOSID, BOSID and VocabSize when
// no model is loaded or the Processor is closed. It is not an engine value.
const NoID int32 = -1

// State is the lifecycle state of a Processor.
type State int32

const (
	StateUninitialized State = iota
	StateLoaded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type options struct {
	convention StatusConvention
	tempDir    string
	logger     *slog.Logger
}

// Option configures a Processor.
type Option func(*options)

// WithStatusConvention sets which engine status codes mean success.
func WithStatusConvention(c StatusConvention) Option {
	return func(o *options) { o.convention = c }
}

// WithTempDir sets the directory used to materialize Bytes model sources.
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// WithLogger sets the slog.Logger used for lifecycle logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Processor owns one engine handle and serializes every call made on it.
// It is safe for concurrent use; concurrent callers queue on a single slot.
type Processor struct {
	binding Binding
	opts    options
	log     *slog.Logger

	// slot is held for the whole duration of any foreign call.
	slot   chan struct{}
	handle Handle
	state  atomic.Int32

	cleanup runtime.Cleanup
}

type handleRelease struct {
	binding Binding
	handle  Handle
}

// New creates an engine handle. The handle is freed by Close, or when the
// Processor becomes unreachable without having been closed.
func New(b Binding, optFns ...Option) (*Processor, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil binding", ErrCreate)
	}

	opts := options{logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	h := b.ProcessorNew()
	if h == 0 {
		return nil, ErrCreate
	}

	p := &Processor{
		binding: b,
		opts:    opts,
		log:     opts.logger,
		slot:    make(chan struct{}, 1),
		handle:  h,
	}
	p.cleanup = runtime.AddCleanup(p, func(r handleRelease) {
		r.binding.ProcessorFree(r.handle)
	}, handleRelease{binding: b, handle: h})

	return p, nil
}

// State returns the current lifecycle state.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Convention returns the status convention the Processor was built with.
func (p *Processor) Convention() StatusConvention {
	return p.opts.convention
}

func (p *Processor) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) release() { <-p.slot }

// ready must be called with the slot held.
func (p *Processor) ready() error {
	switch p.State() {
	case StateLoaded:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotLoaded
	}
}

// Load loads a model. See LoadContext.
func (p *Processor) Load(src ModelSource) error {
	return p.LoadContext(context.Background(), src)
}

// LoadFile loads the model file at path.
func (p *Processor) LoadFile(path string) error {
	return p.LoadContext(context.Background(), Path(path))
}

// LoadBytes loads a model held in memory.
func (p *Processor) LoadBytes(data []byte) error {
	return p.LoadContext(context.Background(), Bytes(data))
}

// LoadContext loads src into the engine. A Processor accepts one successful
// load; a failed load leaves it uninitialized so another source may be tried.
// ctx only bounds the wait for the Processor; a started load runs to the end.
func (p *Processor) LoadContext(ctx context.Context, src ModelSource) error {
	switch p.State() {
	case StateClosed:
		return &LoadError{Path: describeSource(src), Err: ErrClosed}
	case StateLoaded:
		return &LoadError{Path: describeSource(src), Err: ErrAlreadyLoaded}
	}

	switch s := src.(type) {
	case Path:
		if s == "" {
			return &LoadError{Err: ErrEmptyModel}
		}

		return p.loadPath(ctx, string(s))
	case Bytes:
		if len(s) == 0 {
			return &LoadError{Path: describeSource(s), Err: ErrEmptyModel}
		}

		return withTemporaryFile(p.opts.tempDir, s, p.log, func(path string) error {
			return p.loadPath(ctx, path)
		})
	case nil:
		return &LoadError{Err: ErrEmptyModel}
	default:
		return &LoadError{Path: describeSource(src), Err: fmt.Errorf("unsupported model source %T", src)}
	}
}

func (p *Processor) loadPath(ctx context.Context, path string) error {
	cpath, err := cString(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}

	if err := p.acquire(ctx); err != nil {
		return &LoadError{Path: path, Err: err}
	}
	defer p.release()

	switch p.State() {
	case StateClosed:
		return &LoadError{Path: path, Err: ErrClosed}
	case StateLoaded:
		return &LoadError{Path: path, Err: ErrAlreadyLoaded}
	}

	start := time.Now()
	code := p.binding.ProcessorLoad(p.handle, &cpath[0])

	if !p.opts.convention.OK(code) {
		p.log.Warn("sentencepiece model load failed",
			slog.String("path", path),
			slog.Int("code", int(code)),
		)

		return &LoadError{Path: path, Code: code, Err: ErrStatus}
	}

	p.state.Store(int32(StateLoaded))
	p.log.Debug("loaded sentencepiece model",
		slog.String("path", path),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return nil
}

// Encode tokenizes UTF-8 text into token ids.
func (p *Processor) Encode(text string) ([]int32, error) {
	return p.EncodeContext(context.Background(), text)
}

// EncodeContext is Encode with a bound on how long to wait for the Processor.
// An encode already handed to the engine is never interrupted.
func (p *Processor) EncodeContext(ctx context.Context, text string) ([]int32, error) {
	ctext, err := cString(text)
	if err != nil {
		return nil, newEncodeError(0, err)
	}

	if err := p.acquire(ctx); err != nil {
		return nil, newEncodeError(0, err)
	}
	defer p.release()

	if err := p.ready(); err != nil {
		return nil, newEncodeError(0, err)
	}

	var (
		ids  *int32
		size uintptr
	)

	code := p.binding.Encode(p.handle, &ctext[0], &ids, &size)
	if !p.opts.convention.OK(code) {
		if ids != nil {
			p.binding.IDsFree(ids)
		}

		return nil, newEncodeError(code, ErrStatus)
	}

	return receiveBuffer("spm_encode", ids, size, p.binding.IDsFree), nil
}

// Decode turns token ids back into text. Ill-formed UTF-8 from the engine is
// replaced with U+FFFD.
func (p *Processor) Decode(ids []int32) (string, error) {
	return p.DecodeContext(context.Background(), ids)
}

// DecodeContext is Decode with a bound on how long to wait for the Processor.
func (p *Processor) DecodeContext(ctx context.Context, ids []int32) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", newDecodeError(0, err)
	}
	defer p.release()

	if err := p.ready(); err != nil {
		return "", newDecodeError(0, err)
	}

	var in *int32
	if len(ids) > 0 {
		in = &ids[0]
	}

	var out *byte

	code := p.binding.Decode(p.handle, in, uintptr(len(ids)), &out)
	runtime.KeepAlive(ids)

	if !p.opts.convention.OK(code) {
		if out != nil {
			p.binding.StringFree(out)
		}

		return "", newDecodeError(code, ErrStatus)
	}

	return receiveString("spm_decode", out, p.binding.StringFree), nil
}

// EncodeInts is Encode returning plain ints.
func (p *Processor) EncodeInts(text string) ([]int, error) {
	ids, err := p.Encode(text)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}

	return out, nil
}

// ErrIDOutOfRange is wrapped by DecodeInts for ids that do not fit in int32.
var ErrIDOutOfRange = errors.New("token id out of int32 range")

// DecodeInts narrows ids to int32 and decodes them. Ids outside the int32
// range are rejected rather than wrapped.
func (p *Processor) DecodeInts(ids []int) (string, error) {
	narrow := make([]int32, len(ids))

	for i, id := range ids {
		if id < math.MinInt32 || id > math.MaxInt32 {
			return "", newDecodeError(0, fmt.Errorf("%w: ids[%d] = %d", ErrIDOutOfRange, i, id))
		}

		narrow[i] = int32(id)
	}

	return p.Decode(narrow)
}

// EOSID returns the end-of-sentence id, or NoID without a loaded model.
func (p *Processor) EOSID() int32 { return p.introspect(p.binding.EOSID) }

// BOSID returns the beginning-of-sentence id, or NoID without a loaded model.
func (p *Processor) BOSID() int32 { return p.introspect(p.binding.BOSID) }

// VocabSize returns the vocabulary size, or NoID without a loaded model.
func (p *Processor) VocabSize() int32 { return p.introspect(p.binding.VocabSize) }

func (p *Processor) introspect(fn func(Handle) int32) int32 {
	_ = p.acquire(context.Background())
	defer p.release()

	if p.ready() != nil {
		return NoID
	}

	return fn(p.handle)
}

// Close frees the engine handle. It waits for any in-flight call and is
// safe to call more than once.
func (p *Processor) Close() error {
	_ = p.acquire(context.Background())
	defer p.release()

	if p.State() == StateClosed {
		return nil
	}

	p.cleanup.Stop()

	if p.handle != 0 {
		p.binding.ProcessorFree(p.handle)
		p.handle = 0
	}

	p.state.Store(int32(StateClosed))

	return nil
}
