package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "condainspect",
		Short: "Extract metadata from a single conda package (index.json) or from a directory",
		Long: `Condainspect reads info/index.json from conda packages without
unpacking them, and can build a local channel index from a directory.

Supported package formats:
  - .conda (zip container with zstd-compressed tarballs)
  - .tar.bz2 (legacy bzip2-compressed tarball)
  - gzip-compressed legacy tarballs (get-info only)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	rootCmd.AddCommand(NewGetInfoCmd())
	rootCmd.AddCommand(NewScanCmd())
	rootCmd.AddCommand(NewIndexCmd())

	return rootCmd
}
