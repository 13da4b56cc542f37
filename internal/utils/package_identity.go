package utils

import (
	"strings"

	"github.com/ralt/condainspect/internal/models"
)

// PackageFormat returns the archive extension of a package file name
func PackageFormat(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".conda"):
		return ".conda"
	case strings.HasSuffix(filename, ".tar.bz2"):
		return ".tar.bz2"
	default:
		return ""
	}
}

// PackageIdentity returns a unique identifier for a package within a subdir.
// The .conda and .tar.bz2 builds of the same package are distinct.
func PackageIdentity(pkg models.Package) string {
	if pkg.Index == nil {
		return pkg.Filename
	}
	return pkg.Index.Identity() + PackageFormat(pkg.Filename)
}

// DetectConflicts returns packages from newPackages that conflict with existing
func DetectConflicts(existing, newPackages []models.Package) []models.Package {
	existingMap := make(map[string]bool)
	for _, pkg := range existing {
		existingMap[PackageIdentity(pkg)] = true
	}

	var conflicts []models.Package
	for _, pkg := range newPackages {
		if existingMap[PackageIdentity(pkg)] {
			conflicts = append(conflicts, pkg)
		}
	}
	return conflicts
}
