package scanner

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/ralt/condainspect/internal/models"
)

// MagicLen is the number of leading bytes Sniff needs
const MagicLen = 4

// Magic bytes for package detection
var (
	// Zip local file header, empty archive and spanning markers (.conda)
	zipMagics = [][]byte{
		{0x50, 0x4B, 0x03, 0x04},
		{0x50, 0x4B, 0x05, 0x06},
		{0x50, 0x4B, 0x07, 0x08},
	}

	// "BZh" followed by a block size digit (.tar.bz2)
	bzip2Magic = []byte{0x42, 0x5A, 0x68}

	// Gzip magic bytes
	gzipMagic = []byte{0x1F, 0x8B}
)

// Sniff classifies an archive from its first bytes. At least MagicLen bytes
// are required; shorter input fails with ErrTruncatedInput.
func Sniff(head []byte) (ContainerKind, error) {
	if len(head) < MagicLen {
		return KindUnknown, models.Errorf(models.ErrTruncatedInput,
			"need %d bytes to detect archive type, got %d", MagicLen, len(head))
	}
	magic := head[:MagicLen]

	for _, m := range zipMagics {
		if bytes.Equal(magic, m) {
			return KindModern, nil
		}
	}

	if bytes.HasPrefix(magic, bzip2Magic) && magic[3] >= '1' && magic[3] <= '9' {
		return KindLegacyBzip2Tar, nil
	}

	if bytes.HasPrefix(magic, gzipMagic) {
		return KindLegacyGzipTar, nil
	}

	return KindUnknown, models.Errorf(models.ErrUnrecognizedFormat,
		"magic bytes [% x] don't match any known package format", magic)
}

// ReadMagic reads up to MagicLen bytes from the start of r
func ReadMagic(r io.ReaderAt) ([]byte, error) {
	head := make([]byte, MagicLen)
	n, err := r.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return head[:n], nil
}

// DetectKind determines the container kind of a file on disk. Only files
// named like conda packages are considered; anything else is KindUnknown
// without error.
func DetectKind(path string) (ContainerKind, error) {
	if !strings.HasSuffix(path, ".conda") && !strings.HasSuffix(path, ".tar.bz2") {
		return KindUnknown, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	head, err := ReadMagic(f)
	if err != nil {
		return KindUnknown, err
	}

	kind, err := Sniff(head)
	if err != nil {
		return KindUnknown, err
	}

	// The extension must agree with the content
	expected := KindLegacyBzip2Tar
	if strings.HasSuffix(path, ".conda") {
		expected = KindModern
	}
	if kind != expected {
		return KindUnknown, models.Errorf(models.ErrUnrecognizedFormat,
			"%s content does not match its extension", kind)
	}

	return kind, nil
}
