package spm

import (
	"errors"
	"fmt"
)

var (
	// ErrCreate is returned when spm_processor_new yields an invalid handle.
	ErrCreate = errors.New("failed to create sentencepiece processor")
	// ErrClosed is returned by operations on a closed Processor.
	ErrClosed = errors.New("sentencepiece processor is closed")
	// ErrNotLoaded is returned by encode/decode before a model is loaded.
	ErrNotLoaded = errors.New("sentencepiece model not loaded")
	// ErrAlreadyLoaded is returned by a second Load on the same Processor.
	ErrAlreadyLoaded = errors.New("sentencepiece model already loaded")
	// ErrEmptyModel is returned when the model path or model bytes are empty.
	ErrEmptyModel = errors.New("sentencepiece model source must not be empty")
	// ErrInteriorNUL is returned for strings the engine would silently truncate.
	ErrInteriorNUL = errors.New("string contains NUL byte")
	// ErrResourceNotFound is matched by bundle lookup failures.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrStatus marks a failure status reported by the engine.
	ErrStatus = errors.New("engine reported failure status")
)

// LoadError reports a failed spm_processor_load call. Code is the raw status.
type LoadError struct {
	Path string
	Code int32
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrStatus) {
		return fmt.Sprintf("load sentencepiece model %q: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("load sentencepiece model %q (status=%d)", e.Path, e.Code)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EncodeError reports a failed encode. Code is the raw engine status, or
// zero when the call never reached the engine.
type EncodeError struct {
	Code    int32
	Message string
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode text: %s (status=%d)", e.Message, e.Code)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports a failed decode. Code is the raw engine status, or
// zero when the call never reached the engine.
type DecodeError struct {
	Code    int32
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode ids: %s (status=%d)", e.Message, e.Code)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ContractViolation is the panic value raised when the engine hands back a
// buffer that cannot be read safely. It is not recoverable.
type ContractViolation struct {
	Op     string
	Detail string
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("sentencepiece engine contract violation in %s: %s", c.Op, c.Detail)
}

func newEncodeError(code int32, err error) *EncodeError {
	return &EncodeError{Code: code, Message: err.Error(), Err: err}
}

func newDecodeError(code int32, err error) *DecodeError {
	return &DecodeError{Code: code, Message: err.Error(), Err: err}
}
