package main

import (
	"fmt"
	"os"

	"github.com/obentoo/lifter/internal/common/logger"
	"github.com/obentoo/lifter/internal/common/output"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	noColor      bool
	manifestPath string
	settingsPath string
	logToFile    bool
)

var rootCmd = &cobra.Command{
	Use:   "lifter",
	Short: "Keep standalone executables up to date",
	Long: `lifter tracks executables published on release pages and API endpoints.

For every item in the manifest it reads the latest version, and when it
differs from the recorded one it downloads the matching asset, extracts the
executable and installs it, then records the new version.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure logging based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if logToFile {
			if err := logger.Default().EnableFileLogging(""); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "config", "c", "", "Manifest file (default from settings)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default $XDG_CONFIG_HOME/lifter/settings.yaml)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Also append log messages to the lifter log file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
