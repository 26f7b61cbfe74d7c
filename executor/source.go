package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Source supplies the bytes of a guest module.
type Source interface {
	// ID identifies the module contents. It is the compile cache key, so
	// two sources with the same ID must load the same bytes.
	ID() string

	// Load returns the WASM binary.
	Load() ([]byte, error)
}

// File returns a Source reading the module at path.
func File(path string) Source {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fileSource(filepath.Clean(path))
}

type fileSource string

func (f fileSource) ID() string             { return string(f) }
func (f fileSource) String() string         { return string(f) }
func (f fileSource) Load() ([]byte, error) { return os.ReadFile(string(f)) }

// Bytes returns a Source for an in-memory module. name is used in error
// messages; the ID also covers the contents.
func Bytes(name string, data []byte) Source {
	sum := sha256.Sum256(data)
	return bytesSource{name: name, id: name + "@sha256:" + hex.EncodeToString(sum[:]), data: data}
}

type bytesSource struct {
	name string
	id   string
	data []byte
}

func (b bytesSource) ID() string             { return b.id }
func (b bytesSource) String() string         { return b.name }
func (b bytesSource) Load() ([]byte, error) { return b.data, nil }

// sourceName is how a module is named in errors and logs.
func sourceName(src Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return src.ID()
}
