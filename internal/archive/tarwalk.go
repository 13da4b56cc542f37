package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/sirupsen/logrus"
)

// trackedReader remembers the first error returned by the decompressor it
// wraps
type trackedReader struct {
	r     io.Reader
	codec codec
	err   error
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// classify maps a tar read failure to the layer that caused it
func (ts *tarStream) classify(err error) error {
	if ts.body.err != nil {
		return corruptStream(ts.body.codec, ts.name, ts.body.err)
	}
	return models.NewError(models.ErrCorruptTarStructure, fmt.Errorf("tar stream %s: %w", ts.name, err))
}

// findInTar walks the tar stream until target and returns its content.
// Entry names are compared case-sensitively after lexical cleaning, so
// "./info/index.json" matches; only regular files match. Entries after the
// match are never read.
func findInTar(ctx context.Context, ts *tarStream, target string, limit int64) ([]byte, error) {
	tr := tar.NewReader(ts.body)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ts.classify(err)
		}

		if path.Clean(header.Name) != target {
			continue
		}

		if header.Typeflag != tar.TypeReg {
			logrus.Debugf("Ignoring non-regular %s entry (type %q)", header.Name, header.Typeflag)
			continue
		}
		if header.Size > limit {
			return nil, models.Errorf(models.ErrMalformedMetadata,
				"%s is %d bytes, limit is %d", target, header.Size, limit)
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, ts.classify(err)
		}
		return data, nil
	}

	return nil, models.Errorf(models.ErrMetadataFileMissing, "%s not found in %s", target, ts.name)
}

// expandTar writes every directory and regular file of the tar stream under
// root. Links and special files are skipped, as are names that would land
// outside root and entries that collide with a path already written. When a
// path occurs twice the first occurrence is kept. Nothing but a regular file
// can occupy the descriptor path, so the result always matches findInTar.
func expandTar(ctx context.Context, ts *tarStream, root string) error {
	tr := tar.NewReader(ts.body)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return ts.classify(err)
		}

		target, err := utils.SafeJoin(root, header.Name)
		if err != nil {
			logrus.Debugf("Skipping %s: %v", header.Name, err)
			continue
		}
		name := path.Clean(header.Name)
		if strings.HasPrefix(name, IndexPath+"/") || (name == IndexPath && header.Typeflag != tar.TypeReg) {
			logrus.Debugf("Skipping %s, it would shadow %s", header.Name, IndexPath)
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := utils.EnsureDir(target); err != nil {
				if isPathConflict(err) {
					logrus.Debugf("Skipping directory %s: %v", header.Name, err)
					continue
				}
				return models.NewError(models.ErrResourceFailure, err)
			}
		case tar.TypeReg:
			if name == "." || strings.HasPrefix(IndexPath, name+"/") {
				logrus.Debugf("Skipping %s, it would shadow %s", header.Name, IndexPath)
				continue
			}
			if err := writeEntry(tr, target); err != nil {
				if isPathConflict(err) {
					logrus.Debugf("Skipping %s: %v", header.Name, err)
					continue
				}
				var ie *models.InspectError
				if errors.As(err, &ie) {
					return err
				}
				return ts.classify(err)
			}
		default:
			logrus.Debugf("Skipping %s (type %q)", header.Name, header.Typeflag)
		}
	}
}

// isPathConflict reports whether err comes from a path already taken by an
// earlier entry: a duplicate name, or a file where a directory is needed
func isPathConflict(err error) bool {
	return errors.Is(err, os.ErrExist) || errors.Is(err, syscall.ENOTDIR)
}

// writeEntry copies the current tar entry into a new file at target
func writeEntry(r io.Reader, target string) error {
	if err := utils.EnsureDir(filepath.Dir(target)); err != nil {
		return models.NewError(models.ErrResourceFailure, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if isPathConflict(err) {
			return err
		}
		return models.NewError(models.ErrResourceFailure, err)
	}

	_, copyErr := io.Copy(resourceWriter{f}, r)
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return models.NewError(models.ErrResourceFailure, closeErr)
	}
	return nil
}

// resourceWriter tags write failures as scratch storage failures
type resourceWriter struct {
	w io.Writer
}

func (rw resourceWriter) Write(p []byte) (int, error) {
	n, err := rw.w.Write(p)
	if err != nil {
		err = models.NewError(models.ErrResourceFailure, err)
	}
	return n, err
}
