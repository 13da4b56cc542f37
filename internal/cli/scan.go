package cli

import (
	"context"

	"github.com/ralt/condainspect/internal/archive"
	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/scanner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// scanResult is one package in the scan output
type scanResult struct {
	Filename string            `json:"filename"`
	Format   string            `json:"format"`
	Record   *models.IndexJSON `json:"record"`
}

// NewScanCmd creates the scan command
func NewScanCmd() *cobra.Command {
	var config models.InspectConfig

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Read metadata from every package in a directory",
		Long: `Recursively scans a directory for .conda and .tar.bz2 packages and prints
a JSON array with the index.json of each. Packages that cannot be read
are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Path = args[0]
			if err := validateInspectConfig(&config); err != nil {
				return err
			}

			results, err := scanDirectory(cmd.Context(), &config)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), results, config.Compact)
		},
	}

	addExtractionFlags(cmd, &config)
	cmd.Flags().BoolVar(&config.Compact, "compact", false, "Print JSON on a single line")

	return cmd
}

func scanDirectory(ctx context.Context, config *models.InspectConfig) ([]scanResult, error) {
	reader, err := newReader(config)
	if err != nil {
		return nil, err
	}

	scanned, err := scanner.NewFileSystemScanner().Scan(ctx, config.Path)
	if err != nil {
		return nil, models.NewError(models.ErrFileOp, err)
	}

	results := []scanResult{}
	for _, pkg := range scanned {
		record, err := reader.ReadIndex(ctx, archive.FileSource(pkg.Path))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.Warnf("Failed to read %s: %v", pkg.Path, err)
			continue
		}
		results = append(results, scanResult{Filename: pkg.Path, Format: pkg.Kind.String(), Record: record})
	}

	return results, nil
}
