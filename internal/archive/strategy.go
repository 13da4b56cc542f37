package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ralt/condainspect/internal/metadata"
	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/scanner"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/sirupsen/logrus"
)

// Strategy names accepted by NewStrategy
const (
	StrategyAuto        = "auto"
	StrategySeek        = "seek"
	StrategyMaterialize = "materialize"
)

// Strategy extracts the raw bytes of info/index.json from an archive.
// Every strategy returns identical bytes for the same archive.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, src Source) ([]byte, error)
}

// SeekStrategy reads the archive in place. For .conda files only the zip
// central directory and the info component are read; for tarballs the
// stream is decompressed up to the descriptor and no further. Nothing is
// written to disk.
type SeekStrategy struct {
	Options Options
}

// NewSeekStrategy creates a seek-based strategy
func NewSeekStrategy(opts Options) *SeekStrategy {
	return &SeekStrategy{Options: opts}
}

// Name returns the strategy name
func (s *SeekStrategy) Name() string {
	return StrategySeek
}

// Extract returns the content of info/index.json
func (s *SeekStrategy) Extract(ctx context.Context, src Source) ([]byte, error) {
	ra, size, closeSource, err := openSource(src)
	if err != nil {
		return nil, models.WithPackage(err, src.label())
	}
	defer closeSource()

	ts, err := openInfoStream(ra, size)
	if err != nil {
		return nil, models.WithPackage(err, src.label())
	}
	defer ts.Close()

	data, err := findInTar(ctx, ts, IndexPath, s.Options.maxMetadataSize())
	if err != nil {
		return nil, models.WithPackage(err, src.label())
	}
	return data, nil
}

// MaterializeStrategy expands the tarball holding the descriptor into a
// private scratch directory and reads info/index.json from the expansion.
// The scratch directory is removed before Extract returns. For .conda files
// the pkg component is left untouched.
type MaterializeStrategy struct {
	Options Options
}

// NewMaterializeStrategy creates a full-materialization strategy
func NewMaterializeStrategy(opts Options) *MaterializeStrategy {
	return &MaterializeStrategy{Options: opts}
}

// Name returns the strategy name
func (m *MaterializeStrategy) Name() string {
	return StrategyMaterialize
}

// Extract returns the content of info/index.json
func (m *MaterializeStrategy) Extract(ctx context.Context, src Source) ([]byte, error) {
	ra, size, closeSource, err := openSource(src)
	if err != nil {
		return nil, models.WithPackage(err, src.label())
	}
	defer closeSource()

	var data []byte
	err = utils.WithScratchDir(m.Options.ScratchDir, "condainspect-", func(dir string) error {
		ts, err := openInfoStream(ra, size)
		if err != nil {
			return err
		}
		defer ts.Close()

		if err := expandTar(ctx, ts, dir); err != nil {
			return err
		}

		data, err = readExpanded(dir, m.Options.maxMetadataSize())
		return err
	})

	var scratchErr *utils.ScratchError
	if errors.As(err, &scratchErr) {
		err = models.NewError(models.ErrResourceFailure, scratchErr)
	}
	if err != nil {
		return nil, models.WithPackage(err, src.label())
	}
	return data, nil
}

// readExpanded reads the descriptor from an expanded info tarball
func readExpanded(root string, limit int64) ([]byte, error) {
	path := filepath.Join(root, filepath.FromSlash(IndexPath))

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.Errorf(models.ErrMetadataFileMissing, "%s not found in expanded archive", IndexPath)
		}
		return nil, models.NewError(models.ErrResourceFailure, err)
	}
	if !info.Mode().IsRegular() {
		return nil, models.Errorf(models.ErrMetadataFileMissing, "%s in expanded archive is not a regular file", IndexPath)
	}
	if info.Size() > limit {
		return nil, models.Errorf(models.ErrMalformedMetadata,
			"%s is %d bytes, limit is %d", IndexPath, info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewError(models.ErrResourceFailure, err)
	}
	return data, nil
}

// openInfoStream sniffs the archive and opens the tar stream holding the
// descriptor
func openInfoStream(ra io.ReaderAt, size int64) (*tarStream, error) {
	head, err := scanner.ReadMagic(ra)
	if err != nil {
		return nil, models.NewError(models.ErrFileOp, fmt.Errorf("failed to read archive header: %w", err))
	}

	kind, err := scanner.Sniff(head)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Detected %s archive (%d bytes)", kind, size)

	l, err := layoutFor(kind)
	if err != nil {
		return nil, err
	}
	return l.infoStream(ra, size)
}

// SelectStrategy picks the seek strategy for sources with random access and
// full materialization for everything else
func SelectStrategy(src Source, opts Options) Strategy {
	if src.RandomAccess() {
		return NewSeekStrategy(opts)
	}
	return NewMaterializeStrategy(opts)
}

// NewStrategy returns the named strategy. StrategyAuto and the empty string
// return nil, leaving the choice to SelectStrategy.
func NewStrategy(name string, opts Options) (Strategy, error) {
	switch name {
	case "", StrategyAuto:
		return nil, nil
	case StrategySeek:
		return NewSeekStrategy(opts), nil
	case StrategyMaterialize:
		return NewMaterializeStrategy(opts), nil
	default:
		return nil, models.Errorf(models.ErrInvalidConfig,
			"unknown strategy %q (want %s, %s or %s)", name, StrategyAuto, StrategySeek, StrategyMaterialize)
	}
}

// Reader extracts and decodes package descriptors
type Reader struct {
	strategy Strategy
	opts     Options
}

// NewReader creates a Reader. A nil strategy selects one per source.
func NewReader(strategy Strategy, opts Options) *Reader {
	return &Reader{strategy: strategy, opts: opts}
}

// ExtractIndex returns the raw bytes of info/index.json
func (r *Reader) ExtractIndex(ctx context.Context, src Source) ([]byte, error) {
	strategy := r.strategy
	if strategy == nil {
		strategy = SelectStrategy(src, r.opts)
	}
	logrus.Debugf("Extracting %s from %s using %s strategy", IndexPath, src.label(), strategy.Name())
	return strategy.Extract(ctx, src)
}

// ReadIndex extracts and decodes info/index.json
func (r *Reader) ReadIndex(ctx context.Context, src Source) (*models.IndexJSON, error) {
	data, err := r.ExtractIndex(ctx, src)
	if err != nil {
		return nil, err
	}

	record, err := metadata.Decode(data)
	if err != nil {
		return nil, models.WithPackage(err, src.label())
	}
	return record, nil
}
