package scanner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffZipSignatures(t *testing.T) {
	for _, sig := range [][]byte{
		{0x50, 0x4B, 0x03, 0x04},
		{0x50, 0x4B, 0x05, 0x06},
		{0x50, 0x4B, 0x07, 0x08},
	} {
		// Trailing bytes never change the outcome
		for _, tail := range [][]byte{nil, {0x00}, {0x42, 0x5A, 0x68, 0x39}} {
			kind, err := Sniff(append(append([]byte{}, sig...), tail...))
			require.NoError(t, err)
			assert.Equal(t, KindModern, kind, "signature % x", sig)
		}
	}
}

func TestSniffBzip2(t *testing.T) {
	for level := byte('1'); level <= '9'; level++ {
		kind, err := Sniff([]byte{0x42, 0x5A, 0x68, level, 0x31, 0x41})
		require.NoError(t, err)
		assert.Equal(t, KindLegacyBzip2Tar, kind, "level %c", level)
	}
}

func TestSniffBzip2RequiresLevelDigit(t *testing.T) {
	for _, b := range []byte{'0', 'a', 0x00, 0xFF} {
		_, err := Sniff([]byte{0x42, 0x5A, 0x68, b})
		assert.True(t, models.IsErrorType(err, models.ErrUnrecognizedFormat), "byte %#x: %v", b, err)
	}
}

func TestSniffGzip(t *testing.T) {
	kind, err := Sniff([]byte{0x1F, 0x8B, 0x08, 0x00})
	require.NoError(t, err)
	assert.Equal(t, KindLegacyGzipTar, kind)
}

func TestSniffTruncated(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00, 0x00, 0x00},
		{0x50, 0x4B, 0x03},
		{0x42, 0x5A, 0x68},
		{0x1F, 0x8B},
	}
	for _, in := range inputs {
		kind, err := Sniff(in)
		assert.Equal(t, KindUnknown, kind)
		assert.True(t, models.IsErrorType(err, models.ErrTruncatedInput), "input % x: %v", in, err)
	}
}

func TestSniffUnrecognizedCarriesBytes(t *testing.T) {
	_, err := Sniff([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00})
	require.Error(t, err)
	assert.True(t, models.IsErrorType(err, models.ErrUnrecognizedFormat))
	assert.Contains(t, err.Error(), "de ad be ef")
}

func TestContainerKindString(t *testing.T) {
	assert.Equal(t, "conda", KindModern.String())
	assert.Equal(t, "tar.bz2", KindLegacyBzip2Tar.String())
	assert.Equal(t, "tar.gz", KindLegacyGzipTar.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestDetectKind(t *testing.T) {
	dir := t.TempDir()
	info := testutil.InfoEntries(testutil.IndexJSON)

	conda := testutil.WriteFile(t, dir, "pkgname-1.0-0.conda",
		testutil.BuildConda(t, "pkgname-1.0-0", info, testutil.PkgEntries()))
	bz2 := testutil.WriteFile(t, dir, "pkgname-1.0-0.tar.bz2", testutil.BuildTarBz2(t, info))
	text := testutil.WriteFile(t, dir, "README.md", []byte("# readme"))
	mislabeled := testutil.WriteFile(t, dir, "fake-1.0-0.conda", testutil.BuildTarBz2(t, info))
	gzipped := testutil.WriteFile(t, dir, "fake-1.0-0.tar.bz2", testutil.BuildTarGz(t, info))

	kind, err := DetectKind(conda)
	require.NoError(t, err)
	assert.Equal(t, KindModern, kind)

	kind, err = DetectKind(bz2)
	require.NoError(t, err)
	assert.Equal(t, KindLegacyBzip2Tar, kind)

	kind, err = DetectKind(text)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, kind)

	_, err = DetectKind(mislabeled)
	assert.True(t, models.IsErrorType(err, models.ErrUnrecognizedFormat))

	_, err = DetectKind(gzipped)
	assert.True(t, models.IsErrorType(err, models.ErrUnrecognizedFormat))
}

func TestFileSystemScanner(t *testing.T) {
	dir := t.TempDir()
	info := testutil.InfoEntries(testutil.IndexJSON)

	testutil.WriteFile(t, dir, "linux-64/a-1.0-0.conda",
		testutil.BuildConda(t, "a-1.0-0", info, testutil.PkgEntries()))
	testutil.WriteFile(t, dir, "noarch/b-1.0-0.tar.bz2", testutil.BuildTarBz2(t, info))
	testutil.WriteFile(t, dir, "noarch/broken.conda", []byte("no"))
	testutil.WriteFile(t, dir, "notes.txt", []byte("ignored"))

	packages, err := NewFileSystemScanner().Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, packages, 2)

	byName := map[string]ScannedPackage{}
	for _, p := range packages {
		byName[filepath.Base(p.Path)] = p
	}
	assert.Equal(t, KindModern, byName["a-1.0-0.conda"].Kind)
	assert.Equal(t, KindLegacyBzip2Tar, byName["b-1.0-0.tar.bz2"].Kind)
	assert.Greater(t, byName["b-1.0-0.tar.bz2"].Size, int64(0))
}

func TestFileSystemScannerCancelled(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "x.txt", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileSystemScanner().Scan(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
