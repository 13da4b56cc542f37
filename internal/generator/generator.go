package generator

import (
	"context"

	"github.com/ralt/condainspect/internal/models"
)

// Generator interface for channel index generators
type Generator interface {
	// Generate creates channel metadata from the provided packages
	Generate(ctx context.Context, config *models.IndexConfig, packages []models.Package) error

	// ValidatePackages checks if packages are valid for this generator
	ValidatePackages(packages []models.Package) error
}
