package scanner

import "context"

// ContainerKind represents the outer container format of a package archive
type ContainerKind int

const (
	KindUnknown ContainerKind = iota
	// KindModern is a .conda zip holding zstd-compressed info and pkg tarballs
	KindModern
	// KindLegacyBzip2Tar is a .tar.bz2 package
	KindLegacyBzip2Tar
	// KindLegacyGzipTar is a gzip-wrapped legacy package
	KindLegacyGzipTar
)

// String returns the string representation of ContainerKind
func (k ContainerKind) String() string {
	switch k {
	case KindModern:
		return "conda"
	case KindLegacyBzip2Tar:
		return "tar.bz2"
	case KindLegacyGzipTar:
		return "tar.gz"
	default:
		return "unknown"
	}
}

// ScannedPackage represents a package file found during scanning
type ScannedPackage struct {
	Path string
	Kind ContainerKind
	Size int64
}

// Scanner interface for detecting and scanning packages
type Scanner interface {
	// Scan recursively scans a directory for packages
	Scan(ctx context.Context, dir string) ([]ScannedPackage, error)

	// DetectKind determines the container kind of a file
	DetectKind(path string) (ContainerKind, error)
}
