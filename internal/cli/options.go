package cli

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/ralt/condainspect/internal/archive"
	"github.com/ralt/condainspect/internal/models"
	"github.com/spf13/cobra"
)

// addExtractionFlags registers the flags shared by every command that reads
// packages
func addExtractionFlags(cmd *cobra.Command, config *models.InspectConfig) {
	cmd.Flags().StringVar(&config.Strategy, "strategy", archive.StrategyAuto,
		"Extraction strategy: auto, seek or materialize")
	cmd.Flags().StringVar(&config.ScratchDir, "scratch-dir", "",
		"Parent directory for materialization scratch space (default: system temp dir)")
	cmd.Flags().Int64Var(&config.MaxMetadataSize, "max-metadata-size", archive.DefaultMaxMetadataSize,
		"Maximum size of info/index.json in bytes")
}

// newReader builds an archive reader from the shared flags
func newReader(config *models.InspectConfig) (*archive.Reader, error) {
	opts := archive.Options{
		ScratchDir:      config.ScratchDir,
		MaxMetadataSize: config.MaxMetadataSize,
	}
	strategy, err := archive.NewStrategy(config.Strategy, opts)
	if err != nil {
		return nil, err
	}
	return archive.NewReader(strategy, opts), nil
}

func validateInspectConfig(config *models.InspectConfig) error {
	if config.MaxMetadataSize <= 0 {
		return models.Errorf(models.ErrInvalidConfig, "max-metadata-size must be positive")
	}
	if _, err := archive.NewStrategy(config.Strategy, archive.Options{}); err != nil {
		return err
	}
	return nil
}

// writeJSON prints v without HTML escaping so version constraints like
// ">=1.0" stay readable
func writeJSON(w io.Writer, v interface{}, compact bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
