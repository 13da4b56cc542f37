package cli

import (
	"context"
	"fmt"

	"github.com/ralt/condainspect/internal/archive"
	"github.com/ralt/condainspect/internal/generator/repodata"
	"github.com/ralt/condainspect/internal/models"
	"github.com/ralt/condainspect/internal/scanner"
	"github.com/ralt/condainspect/internal/signer"
	"github.com/ralt/condainspect/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewIndexCmd creates the index command
func NewIndexCmd() *cobra.Command {
	var config models.IndexConfig

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Generate a local conda channel index",
		Long: `Scans input directory for conda packages and writes a channel with one
repodata.json per subdir, compressed copies and an optional detached
signature.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(&config); err != nil {
				return err
			}

			logrus.Info("Starting channel index generation...")
			logrus.Debugf("Configuration: %+v", config)

			return runIndex(cmd.Context(), &config)
		},
	}

	// Input/Output flags
	cmd.Flags().StringVarP(&config.InputDir, "input-dir", "i", ".", "Input directory to scan")
	cmd.Flags().StringVarP(&config.OutputDir, "output-dir", "o", "./channel", "Output directory")

	// GPG signing flags
	cmd.Flags().StringVarP(&config.GPGKeyPath, "gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringVarP(&config.GPGPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")

	cmd.Flags().BoolVar(&config.Incremental, "incremental", false, "Merge into an existing repodata.json")

	addExtractionFlags(cmd, &config.InspectConfig)

	return cmd
}

func validateConfig(config *models.IndexConfig) error {
	if config.InputDir == "" {
		return &models.InspectError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("input-dir is required"),
		}
	}

	if config.OutputDir == "" {
		return &models.InspectError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("output-dir is required"),
		}
	}

	if config.GPGPassphrase != "" && config.GPGKeyPath == "" {
		return &models.InspectError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("gpg-passphrase requires gpg-key"),
		}
	}

	return validateInspectConfig(&config.InspectConfig)
}

func runIndex(ctx context.Context, config *models.IndexConfig) error {
	// Step 1: Scan for packages
	logrus.Infof("Scanning directory: %s", config.InputDir)
	sc := scanner.NewFileSystemScanner()
	scannedPackages, err := sc.Scan(ctx, config.InputDir)
	if err != nil {
		return &models.InspectError{
			Type: models.ErrFileOp,
			Err:  fmt.Errorf("failed to scan directory: %w", err),
		}
	}

	if len(scannedPackages) == 0 {
		logrus.Warn("No packages found in input directory")
	} else {
		logrus.Infof("Found %d packages", len(scannedPackages))
	}

	// Step 2: Read descriptors
	reader, err := newReader(&config.InspectConfig)
	if err != nil {
		return err
	}

	packages := make([]models.Package, 0, len(scannedPackages))
	for _, scanned := range scannedPackages {
		logrus.Debugf("Reading %s package: %s", scanned.Kind, scanned.Path)

		pkg, err := readPackage(ctx, reader, scanned.Path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.Warnf("Failed to read %s: %v", scanned.Path, err)
			continue
		}
		packages = append(packages, *pkg)
	}

	// Step 3: Initialize signer
	var gpgSigner signer.Signer
	if config.GPGKeyPath != "" {
		s, err := signer.NewGPGSigner(config.GPGKeyPath, config.GPGPassphrase)
		if err != nil {
			return &models.InspectError{
				Type: models.ErrSigning,
				Err:  fmt.Errorf("failed to initialize GPG signer: %w", err),
			}
		}
		gpgSigner = s
		logrus.Info("GPG signer initialized")
	}

	// Step 4: Generate the channel
	gen := repodata.NewGenerator(gpgSigner)
	if err := gen.ValidatePackages(packages); err != nil {
		return &models.InspectError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("package validation failed: %w", err),
		}
	}

	if err := gen.Generate(ctx, config, packages); err != nil {
		return &models.InspectError{
			Type: models.ErrMetadataGen,
			Err:  fmt.Errorf("failed to generate channel: %w", err),
		}
	}

	logrus.Info("Channel index generation completed successfully!")
	logrus.Infof("Output directory: %s", config.OutputDir)

	return nil
}

// readPackage extracts the descriptor and checksums of one package file
func readPackage(ctx context.Context, reader *archive.Reader, path string) (*models.Package, error) {
	record, err := reader.ReadIndex(ctx, archive.FileSource(path))
	if err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		return nil, &models.InspectError{Type: models.ErrMalformedMetadata, Package: path, Err: err}
	}
	if err := repodata.CheckSubdir(record.Subdir); err != nil {
		return nil, &models.InspectError{Type: models.ErrMalformedMetadata, Package: path, Err: err}
	}

	checksums, err := utils.CalculateChecksums(path)
	if err != nil {
		return nil, &models.InspectError{Type: models.ErrFileOp, Package: path, Err: err}
	}

	return &models.Package{
		Filename:  path,
		Size:      checksums.Size,
		MD5Sum:    checksums.MD5,
		SHA256Sum: checksums.SHA256,
		Index:     record,
	}, nil
}
