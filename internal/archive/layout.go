package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/scanner"
	"github.com/sirupsen/logrus"
)

// Naming convention of the metadata component inside a .conda zip
const (
	infoComponentPrefix = "info-"
	infoComponentSuffix = ".tar.zst"
)

// maxDecoderMemory caps the zstd window a component may ask for
const maxDecoderMemory = 1 << 30

// layout knows how to reach the tarball holding info/index.json for one
// container kind
type layout interface {
	infoStream(ra io.ReaderAt, size int64) (*tarStream, error)
}

var layouts = map[scanner.ContainerKind]layout{
	scanner.KindModern:         condaLayout{},
	scanner.KindLegacyBzip2Tar: legacyLayout{codec: codecBzip2},
	scanner.KindLegacyGzipTar:  legacyLayout{codec: codecGzip},
}

func layoutFor(kind scanner.ContainerKind) (layout, error) {
	l, ok := layouts[kind]
	if !ok {
		return nil, models.Errorf(models.ErrUnrecognizedFormat, "no reader for %s archives", kind)
	}
	return l, nil
}

type codec int

const (
	codecZstd codec = iota
	codecBzip2
	codecGzip
)

func (c codec) String() string {
	switch c {
	case codecZstd:
		return "zstd"
	case codecBzip2:
		return "bzip2"
	case codecGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// tarStream is a decompressed tar byte stream. Read errors raised by the
// decompressor are recorded so tar failures can be told apart from
// compression failures.
type tarStream struct {
	name    string
	body    *trackedReader
	closers []func() error
}

func (t *tarStream) Close() error {
	var first error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// decompress wraps r in a decoder for c
func decompress(c codec, name string, r io.Reader) (*tarStream, error) {
	ts := &tarStream{name: name}

	switch c {
	case codecZstd:
		zr, err := zstd.NewReader(r,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecoderMemory))
		if err != nil {
			return nil, corruptStream(c, name, err)
		}
		ts.body = &trackedReader{r: zr}
		ts.closers = append(ts.closers, func() error { zr.Close(); return nil })
	case codecBzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, corruptStream(c, name, err)
		}
		ts.body = &trackedReader{r: br}
		ts.closers = append(ts.closers, br.Close)
	case codecGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, corruptStream(c, name, err)
		}
		ts.body = &trackedReader{r: gr}
		ts.closers = append(ts.closers, gr.Close)
	default:
		return nil, fmt.Errorf("unsupported codec %s", c)
	}

	ts.body.codec = c
	return ts, nil
}

func corruptStream(c codec, name string, err error) error {
	return models.NewError(models.ErrCorruptCompressionStream,
		fmt.Errorf("%s stream %s: %w", c, name, err))
}

// legacyLayout is a single compressed tarball
type legacyLayout struct {
	codec codec
}

func (l legacyLayout) infoStream(ra io.ReaderAt, size int64) (*tarStream, error) {
	return decompress(l.codec, "package tarball", io.NewSectionReader(ra, 0, size))
}

// condaLayout is a zip holding info-*.tar.zst and pkg-*.tar.zst. Only the
// info component is ever opened.
type condaLayout struct{}

func (condaLayout) infoStream(ra io.ReaderAt, size int64) (*tarStream, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, models.NewError(models.ErrCorruptCompressionStream,
			fmt.Errorf("invalid zip container: %w", err))
	}

	entry, err := findInfoComponent(zr.File)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Using metadata component %s (%d bytes)", entry.Name, entry.CompressedSize64)

	rc, err := entry.Open()
	if err != nil {
		return nil, models.NewError(models.ErrCorruptCompressionStream,
			fmt.Errorf("failed to open %s: %w", entry.Name, err))
	}

	ts, err := decompress(codecZstd, entry.Name, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	// Closed after the decoder
	ts.closers = append([]func() error{rc.Close}, ts.closers...)
	return ts, nil
}

// isInfoComponent reports whether a zip entry name follows the metadata
// component naming convention
func isInfoComponent(name string) bool {
	return strings.HasPrefix(name, infoComponentPrefix) &&
		strings.HasSuffix(name, infoComponentSuffix) &&
		!strings.Contains(name, "/")
}

// findInfoComponent selects the single metadata component of a .conda zip
func findInfoComponent(files []*zip.File) (*zip.File, error) {
	var matches []*zip.File
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
		if isInfoComponent(f.Name) {
			matches = append(matches, f)
		}
	}

	switch len(matches) {
	case 0:
		return nil, models.Errorf(models.ErrMetadataComponentMissing,
			"no %s*%s entry in container (entries: %s)",
			infoComponentPrefix, infoComponentSuffix, strings.Join(names, ", "))
	case 1:
		return matches[0], nil
	default:
		found := make([]string, len(matches))
		for i, m := range matches {
			found[i] = m.Name
		}
		return nil, models.Errorf(models.ErrAmbiguousMetadataComponent,
			"expected one metadata component, found %d: %s", len(matches), strings.Join(found, ", "))
	}
}
