//go:build !(darwin || freebsd || linux)

package native

import (
	"errors"

	"github.com/example/go-spm/internal/spm"
)

// ErrUnsupportedPlatform is returned by Open where purego cannot dlopen.
var ErrUnsupportedPlatform = errors.New("native spm library is unavailable on this platform")

// Library is unavailable on this platform.
type Library struct{}

var _ spm.Binding = (*Library)(nil)

// Open always returns ErrUnsupportedPlatform on this platform.
func Open(path string) (*Library, error) {
	return nil, ErrUnsupportedPlatform
}

func (l *Library) Path() string { return "" }
func (l *Library) Close() error { return nil }
func (l *Library) LiveHandles() int { return 0 }
func (l *Library) ProcessorNew() spm.Handle { return 0 }
func (l *Library) ProcessorFree(spm.Handle) {}
func (l *Library) ProcessorLoad(spm.Handle, *byte) int32 { return -1 }
func (l *Library) IDsFree(*int32) {}
func (l *Library) StringFree(*byte) {}
func (l *Library) EOSID(spm.Handle) int32 { return spm.NoID }
func (l *Library) BOSID(spm.Handle) int32 { return spm.NoID }
func (l *Library) VocabSize(spm.Handle) int32 { return spm.NoID }

func (l *Library) Encode(spm.Handle, *byte, **int32, *uintptr) int32 { return -1 }

func (l *Library) Decode(spm.Handle, *int32, uintptr, **byte) int32 { return -1 }
