package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/ralt/condainspect/internal/archive"
	"github.com/ralt/condainspect/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// stdinPath is the path argument that reads the package from stdin
const stdinPath = "-"

// NewGetInfoCmd creates the get-info command
func NewGetInfoCmd() *cobra.Command {
	var config models.InspectConfig

	cmd := &cobra.Command{
		Use:   "get-info <path|->",
		Short: `Read metadata from a single .conda or .tar.bz2 file, or stdin ("-")`,
		Long: `Prints the info/index.json of a package as JSON, keeping every field in
its original order.

Files are read in place. Input from stdin is buffered in memory and
expanded into a temporary directory that is removed afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Path = args[0]
			if err := validateInspectConfig(&config); err != nil {
				return err
			}

			record, err := getInfo(cmd.Context(), &config, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), record, config.Compact)
		},
	}

	addExtractionFlags(cmd, &config)
	cmd.Flags().BoolVar(&config.Validate, "validate", false, "Fail when required index.json fields are missing")
	cmd.Flags().BoolVar(&config.Compact, "compact", false, "Print JSON on a single line")

	return cmd
}

func getInfo(ctx context.Context, config *models.InspectConfig, stdin io.Reader) (*models.IndexJSON, error) {
	reader, err := newReader(config)
	if err != nil {
		return nil, err
	}

	var src archive.Source
	if config.Path == stdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, models.NewError(models.ErrFileOp, fmt.Errorf("failed to read stdin: %w", err))
		}
		logrus.Debugf("Read %d bytes from stdin", len(data))
		src = archive.BufferSource("<stdin>", data)
	} else {
		src = archive.FileSource(config.Path)
	}

	record, err := reader.ReadIndex(ctx, src)
	if err != nil {
		return nil, err
	}

	if config.Validate {
		if err := record.Validate(); err != nil {
			return nil, &models.InspectError{Type: models.ErrMalformedMetadata, Package: src.Name, Err: err}
		}
	}

	return record, nil
}
