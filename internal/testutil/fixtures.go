// Package testutil builds conda package archives in memory for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/stretchr/testify/require"
)

// IndexJSON is the descriptor used by most fixtures
const IndexJSON = `{"name":"pkgname","version":"1.0","build":"0","build_number":0}`

// TarEntry is a member of a generated tarball
type TarEntry struct {
	Name     string
	Body     []byte
	Typeflag byte // tar.TypeReg when zero
	Linkname string
}

// File returns a regular file entry
func File(name, body string) TarEntry {
	return TarEntry{Name: name, Body: []byte(body)}
}

// Dir returns a directory entry
func Dir(name string) TarEntry {
	return TarEntry{Name: name, Typeflag: tar.TypeDir}
}

// InfoEntries returns a typical info/ tree holding the given index.json
func InfoEntries(index string) []TarEntry {
	return []TarEntry{
		Dir("info/"),
		File("info/about.json", `{"summary":"test package"}`),
		File("info/index.json", index),
		File("info/paths.json", `{"paths":[],"paths_version":1}`),
	}
}

// BuildTar writes entries into an uncompressed tarball
func BuildTar(t testing.TB, entries []TarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		flag := e.Typeflag
		if flag == 0 {
			flag = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: flag,
			Mode:     0644,
			Linkname: e.Linkname,
		}
		if flag == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if flag == tar.TypeDir {
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if flag == tar.TypeReg {
			_, err := tw.Write(e.Body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// BuildTarBz2 builds a legacy .tar.bz2 package
func BuildTarBz2(t testing.TB, entries []TarEntry) []byte {
	t.Helper()
	data, err := utils.Bzip2Compress(BuildTar(t, entries))
	require.NoError(t, err)
	return data
}

// BuildTarGz builds a gzip-wrapped legacy package
func BuildTarGz(t testing.TB, entries []TarEntry) []byte {
	t.Helper()
	data, err := utils.GzipCompress(BuildTar(t, entries))
	require.NoError(t, err)
	return data
}

// Zstd compresses data with zstd
func Zstd(t testing.TB, data []byte) []byte {
	t.Helper()
	data, err := utils.ZstdCompress(data)
	require.NoError(t, err)
	return data
}

// ZipEntry is a member of a generated zip
type ZipEntry struct {
	Name string
	Body []byte
}

// BuildZip writes stored (uncompressed) entries into a zip, as conda does
func BuildZip(t testing.TB, entries []ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(e.Body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// BuildConda builds a .conda package named after stem (e.g. "pkgname-1.0-0")
// with the given info and pkg tarball contents
func BuildConda(t testing.TB, stem string, info, pkg []TarEntry) []byte {
	t.Helper()
	return BuildZip(t, []ZipEntry{
		{Name: "metadata.json", Body: []byte(`{"conda_pkg_format_version": 2}`)},
		{Name: "pkg-" + stem + ".tar.zst", Body: Zstd(t, BuildTar(t, pkg))},
		{Name: "info-" + stem + ".tar.zst", Body: Zstd(t, BuildTar(t, info))},
	})
}

// PkgEntries returns a small package payload
func PkgEntries() []TarEntry {
	return []TarEntry{
		Dir("lib/"),
		File("lib/libpkgname.so", "\x7fELF fake library"),
		{Name: "lib/libpkgname.so.1", Typeflag: tar.TypeSymlink, Linkname: "libpkgname.so"},
	}
}

// WriteFile writes data to dir/name and returns the path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
