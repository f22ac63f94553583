// Package bundle resolves named model resources across a list of search
// directories.
package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/example/go-spm/internal/spm"
)

// Default resource name and extension of the tokenizer model.
const (
	DefaultName = "tokenizer"
	DefaultExt  = "model"
)

// ResourceNotFoundError is returned when no search directory holds the
// requested resource. It matches spm.ErrResourceNotFound.
type ResourceNotFoundError struct {
	Name     string
	Searched []string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource %q not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}

func (e *ResourceNotFoundError) Is(target error) bool { return target == spm.ErrResourceNotFound }

// Bundle is a set of directories searched in order on a filesystem.
type Bundle struct {
	FS   afero.Fs
	Dirs []string
}

// New returns a Bundle over the host filesystem.
func New(dirs ...string) *Bundle {
	return &Bundle{FS: afero.NewOsFs(), Dirs: dirs}
}

// Resolve returns the path of the first regular file dir/name.ext across the
// bundle's directories. An empty ext means name is used as given.
func (b *Bundle) Resolve(name, ext string) (string, error) {
	file := name
	if ext != "" {
		file = name + "." + strings.TrimPrefix(ext, ".")
	}

	searched := make([]string, 0, len(b.Dirs))

	for _, dir := range b.Dirs {
		p := filepath.Join(dir, file)
		searched = append(searched, p)

		info, err := b.FS.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return "", fmt.Errorf("stat %s: %w", p, err)
		}

		if info.Mode().IsRegular() {
			return p, nil
		}
	}

	return "", &ResourceNotFoundError{Name: file, Searched: searched}
}

// ReadFile resolves name.ext and returns its content.
func (b *Bundle) ReadFile(name, ext string) ([]byte, error) {
	p, err := b.Resolve(name, ext)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(b.FS, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}

	return data, nil
}
