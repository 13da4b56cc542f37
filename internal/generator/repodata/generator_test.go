package repodata

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/ralt/condainspect/internal/metadata"
	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/testutil"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	signed [][]byte
}

func (f *fakeSigner) SignDetached(data []byte) ([]byte, error) {
	f.signed = append(f.signed, data)
	return []byte("-----BEGIN PGP SIGNATURE-----\nfake\n-----END PGP SIGNATURE-----\n"), nil
}

func (f *fakeSigner) GetPublicKey() ([]byte, error) {
	return nil, nil
}

// writePackage writes a package file and returns it with checksums filled in
func writePackage(t *testing.T, dir, filename, index string) models.Package {
	t.Helper()

	var data []byte
	info := testutil.InfoEntries(index)
	if utils.PackageFormat(filename) == ".conda" {
		data = testutil.BuildConda(t, filename, info, testutil.PkgEntries())
	} else {
		data = testutil.BuildTarBz2(t, info)
	}
	path := testutil.WriteFile(t, dir, filename, data)

	record, err := metadata.Decode([]byte(index))
	require.NoError(t, err)
	sums, err := utils.CalculateChecksums(path)
	require.NoError(t, err)

	return models.Package{
		Filename:  path,
		Size:      sums.Size,
		MD5Sum:    sums.MD5,
		SHA256Sum: sums.SHA256,
		Index:     record,
	}
}

func TestGenerateRepodata(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()

	packages := []models.Package{
		writePackage(t, input, "zlib-1.3-h0_0.conda",
			`{"name":"zlib","version":"1.3","build":"h0_0","build_number":0,"subdir":"linux-64","depends":["libgcc-ng >=12"]}`),
		writePackage(t, input, "zlib-1.3-h0_0.tar.bz2",
			`{"name":"zlib","version":"1.3","build":"h0_0","build_number":0,"subdir":"linux-64"}`),
		writePackage(t, input, "six-1.16-py_0.tar.bz2",
			`{"name":"six","version":"1.16","build":"py_0","build_number":0,"noarch":"python"}`),
	}

	gen := NewGenerator(nil)
	require.NoError(t, gen.ValidatePackages(packages))
	require.NoError(t, gen.Generate(context.Background(), &models.IndexConfig{OutputDir: output}, packages))

	linux, err := Load(filepath.Join(output, "linux-64"))
	require.NoError(t, err)
	assert.Equal(t, "linux-64", linux.Info.Subdir)
	require.Contains(t, linux.PackagesConda, "zlib-1.3-h0_0.conda")
	require.Contains(t, linux.Packages, "zlib-1.3-h0_0.tar.bz2")

	entry := linux.PackagesConda["zlib-1.3-h0_0.conda"]
	assert.Equal(t, []string{"libgcc-ng >=12"}, entry.Depends)
	md5, ok := entry.Get("md5")
	require.True(t, ok)
	assert.JSONEq(t, `"`+packages[0].MD5Sum+`"`, string(md5))
	assert.Equal(t, []string{"name", "version", "build", "build_number", "subdir", "depends", "md5", "sha256", "size"}, entry.Keys())

	noarch, err := Load(filepath.Join(output, "noarch"))
	require.NoError(t, err)
	assert.Contains(t, noarch.Packages, "six-1.16-py_0.tar.bz2")

	// Package files are copied next to the index
	assert.FileExists(t, filepath.Join(output, "linux-64", "zlib-1.3-h0_0.conda"))
	assert.FileExists(t, filepath.Join(output, "noarch", "six-1.16-py_0.tar.bz2"))

	// Dependency specs are not HTML-escaped
	raw, err := os.ReadFile(filepath.Join(output, "linux-64", RepodataFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"libgcc-ng >=12"`)

	// Compressed variants carry the same document
	bz2, err := os.ReadFile(filepath.Join(output, "linux-64", RepodataFile+".bz2"))
	require.NoError(t, err)
	br, err := bzip2.NewReader(bytes.NewReader(bz2), nil)
	require.NoError(t, err)
	plain, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, raw, plain)

	zst, err := os.ReadFile(filepath.Join(output, "linux-64", RepodataFile+".zst"))
	require.NoError(t, err)
	zr, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer zr.Close()
	plain, err = zr.DecodeAll(zst, nil)
	require.NoError(t, err)
	assert.Equal(t, raw, plain)

	assert.NoFileExists(t, filepath.Join(output, "linux-64", RepodataFile+SignatureExt))
}

func TestGenerateSigned(t *testing.T) {
	output := t.TempDir()
	s := &fakeSigner{}

	require.NoError(t, NewGenerator(s).Generate(context.Background(), &models.IndexConfig{OutputDir: output}, nil))

	// An empty channel still gets a noarch index
	raw, err := os.ReadFile(filepath.Join(output, "noarch", RepodataFile))
	require.NoError(t, err)
	require.Len(t, s.signed, 1)
	assert.Equal(t, raw, s.signed[0])
	assert.FileExists(t, filepath.Join(output, "noarch", RepodataFile+SignatureExt))
}

func TestGenerateIncremental(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	config := &models.IndexConfig{OutputDir: output, Incremental: true}
	gen := NewGenerator(nil)

	first := writePackage(t, input, "a-1.0-0.tar.bz2", `{"name":"a","version":"1.0","build":"0","build_number":0,"extra":{"k":"v"}}`)
	require.NoError(t, gen.Generate(context.Background(), config, []models.Package{first}))

	second := writePackage(t, input, "b-2.0-0.tar.bz2", `{"name":"b","version":"2.0","build":"0","build_number":0}`)
	require.NoError(t, gen.Generate(context.Background(), config, []models.Package{second}))

	index, err := Load(filepath.Join(output, "noarch"))
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len())

	// Unknown fields of existing entries survive the merge
	extra, ok := index.Packages["a-1.0-0.tar.bz2"].Get("extra")
	require.True(t, ok)
	assert.JSONEq(t, `{"k":"v"}`, string(extra))

	listed := map[string]models.Package{}
	for _, pkg := range index.List() {
		listed[pkg.Filename] = pkg
	}
	assert.Equal(t, first.SHA256Sum, listed["a-1.0-0.tar.bz2"].SHA256Sum)
	assert.Equal(t, first.Size, listed["a-1.0-0.tar.bz2"].Size)

	// Without incremental mode the index is rebuilt
	config.Incremental = false
	require.NoError(t, gen.Generate(context.Background(), config, []models.Package{second}))
	index, err = Load(filepath.Join(output, "noarch"))
	require.NoError(t, err)
	assert.Equal(t, 1, index.Len())
}

func TestGenerateDuplicateIdentityLaterWins(t *testing.T) {
	input := t.TempDir()
	output := t.TempDir()
	index := `{"name":"a","version":"1.0","build":"0","build_number":0}`

	first := writePackage(t, input, "a-1.0-0.tar.bz2", index)
	second := writePackage(t, input, "renamed-a.tar.bz2", index)

	require.NoError(t, NewGenerator(nil).Generate(context.Background(), &models.IndexConfig{OutputDir: output}, []models.Package{first, second}))

	loaded, err := Load(filepath.Join(output, "noarch"))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Contains(t, loaded.Packages, "renamed-a.tar.bz2")
}

func TestValidatePackages(t *testing.T) {
	gen := NewGenerator(nil)

	record, err := metadata.Decode([]byte(`{"version":"1"}`))
	require.NoError(t, err)

	assert.Error(t, gen.ValidatePackages([]models.Package{{Filename: "x.conda"}}))
	assert.Error(t, gen.ValidatePackages([]models.Package{{Filename: "x.conda", Index: record}}))

	valid, err := metadata.Decode([]byte(testutil.IndexJSON))
	require.NoError(t, err)
	assert.Error(t, gen.ValidatePackages([]models.Package{{Filename: "x.zip", Index: valid}}))
	assert.NoError(t, gen.ValidatePackages([]models.Package{{Filename: "x.conda", Index: valid}}))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckSubdir(t *testing.T) {
	for _, subdir := range []string{"", "noarch", "linux-64", "osx-arm64"} {
		assert.NoError(t, CheckSubdir(subdir), subdir)
	}
	for _, subdir := range []string{".", "..", "../escaped", "linux/64", `..\escaped`, "/abs", "nul\x00"} {
		assert.Error(t, CheckSubdir(subdir), subdir)
	}
}

func TestGenerateRejectsEscapingSubdir(t *testing.T) {
	input := t.TempDir()
	base := t.TempDir()
	output := filepath.Join(base, "channel")
	pkg := writePackage(t, input, "a-1.0-0.tar.bz2",
		`{"name":"a","version":"1.0","build":"0","build_number":0,"subdir":"../escaped"}`)

	gen := NewGenerator(nil)
	assert.Error(t, gen.ValidatePackages([]models.Package{pkg}))
	assert.Error(t, gen.Generate(context.Background(), &models.IndexConfig{OutputDir: output}, []models.Package{pkg}))
	assert.NoDirExists(t, filepath.Join(base, "escaped"))
}

func TestListIgnoresMalformedChecksums(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, RepodataFile, []byte(`{
  "info": {"subdir": "noarch"},
  "packages": {
    "a-1.0-0.tar.bz2": {"name": "a", "version": "1.0", "build": "0", "build_number": 0, "md5": 5, "sha256": "abc", "size": "big"}
  },
  "packages.conda": {},
  "repodata_version": 1
}`))

	index, err := Load(dir)
	require.NoError(t, err)
	listed := index.List()
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].MD5Sum)
	assert.Equal(t, "abc", listed[0].SHA256Sum)
	assert.Zero(t, listed[0].Size)
}
