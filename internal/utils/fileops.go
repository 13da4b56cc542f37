package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CopyFile copies a file from src to dst
func CopyFile(src, dst string) error {
	dstDir := filepath.Dir(dst)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	return dstFile.Sync()
}

// WriteFile writes data to a file, creating directories as needed
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, perm)
}

// EnsureDir ensures a directory exists, creating it if necessary
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// SameFile reports whether two paths name the same file on disk
func SameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// WithScratchDir creates a uniquely named directory under parent (the OS
// temp dir when empty), runs fn with its path and removes it afterwards.
// The directory is removed on every return path, including panics in fn.
func WithScratchDir(parent, prefix string, fn func(dir string) error) (err error) {
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return &ScratchError{Op: "create", Err: err}
	}
	logrus.Debugf("Created scratch directory %s", dir)

	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logrus.Warnf("Failed to remove scratch directory %s: %v", dir, rmErr)
			if err == nil {
				err = &ScratchError{Op: "remove", Err: rmErr}
			}
			return
		}
		logrus.Debugf("Removed scratch directory %s", dir)
	}()

	return fn(dir)
}

// ScratchError reports a failure to allocate or release scratch storage
type ScratchError struct {
	Op  string
	Err error
}

func (e *ScratchError) Error() string {
	return fmt.Sprintf("failed to %s scratch directory: %v", e.Op, e.Err)
}

func (e *ScratchError) Unwrap() error {
	return e.Err
}

// SafeJoin joins an archive member name onto root, rejecting names that
// would land outside of it
func SafeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute path %q in archive", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes extraction root", name)
	}
	return target, nil
}
