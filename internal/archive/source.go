// Package archive locates and extracts info/index.json from conda package
// archives.
//
// Two extraction strategies share one contract. SeekStrategy reads a file in
// place through random access and never writes to disk. MaterializeStrategy
// expands the tarball holding the metadata into a private scratch directory
// and reads the descriptor from there; it is the strategy for archives that
// arrived as a stream and were drained into memory.
package archive

import (
	"bytes"
	"io"
	"os"

	"github.com/ralt/condainspect/internal/models"
)

// IndexPath is the location of the package descriptor inside the info tarball
const IndexPath = "info/index.json"

// DefaultMaxMetadataSize bounds how much of info/index.json is read
const DefaultMaxMetadataSize int64 = 32 << 20

// Source is an archive handed to a Strategy. A file source supports random
// access; a buffer source is the drained form of a non-seekable stream.
// The caller keeps ownership: strategies never retain a Source past Extract.
type Source struct {
	Path string
	Data []byte
	Name string
}

// FileSource returns a Source for a package file on disk
func FileSource(path string) Source {
	return Source{Path: path, Name: path}
}

// BufferSource returns a Source for an archive already held in memory
func BufferSource(name string, data []byte) Source {
	return Source{Data: data, Name: name}
}

// RandomAccess reports whether the source is a file that can be read in
// place
func (s Source) RandomAccess() bool {
	return s.Path != ""
}

// label returns the name used in diagnostics
func (s Source) label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Path != "" {
		return s.Path
	}
	return "<buffer>"
}

// Options tune extraction
type Options struct {
	// ScratchDir is the parent of materialization scratch directories. The
	// OS temp dir is used when empty.
	ScratchDir string

	// MaxMetadataSize bounds the size of the index.json entry.
	// DefaultMaxMetadataSize is used when zero or negative.
	MaxMetadataSize int64
}

func (o Options) maxMetadataSize() int64 {
	if o.MaxMetadataSize <= 0 {
		return DefaultMaxMetadataSize
	}
	return o.MaxMetadataSize
}

// openSource returns random access to the archive bytes
func openSource(src Source) (io.ReaderAt, int64, func() error, error) {
	if !src.RandomAccess() {
		return bytes.NewReader(src.Data), int64(len(src.Data)), func() error { return nil }, nil
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, 0, nil, models.NewError(models.ErrFileOp, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, models.NewError(models.ErrFileOp, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, nil, models.Errorf(models.ErrFileOp, "%s is a directory", src.Path)
	}

	return f, info.Size(), f.Close, nil
}
