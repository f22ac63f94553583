package spm

// ModelSource is where a model is loaded from: a Path or in-memory Bytes.
type ModelSource interface {
	modelSource()
}

// Path loads a model file the engine opens directly.
type Path string

// Bytes loads a model held in memory. It is written to a temporary file for
// the duration of the load because the engine only accepts paths.
type Bytes []byte

func (Path) modelSource()  {}
func (Bytes) modelSource() {}

func describeSource(src ModelSource) string {
	switch s := src.(type) {
	case Path:
		return string(s)
	case Bytes:
		return "<memory>"
	default:
		return "<unknown>"
	}
}
