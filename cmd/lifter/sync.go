package main

import (
	"github.com/spf13/cobra"
)

var (
	// syncOutputDir overrides output_dir from settings
	syncOutputDir string
	// syncWorkers overrides workers from settings
	syncWorkers int
	// syncRepair reinstalls up-to-date items whose file is missing
	syncRepair bool
	// syncNoCache disables the conditional request cache
	syncNoCache bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [item...]",
	Short: "Install new versions of tracked executables",
	Long: `Check every item (or only the named ones) and install those whose
remote version differs from the recorded one.

Examples:
  lifter sync                     Update all items
  lifter sync rg fd               Update only rg and fd
  lifter sync --output-dir ~/bin  Install into ~/bin
  lifter sync --repair            Also reinstall missing files`,
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, args, runOptions{
			outputDir: syncOutputDir,
			workers:   syncWorkers,
			repair:    syncRepair,
			noCache:   syncNoCache,
		})
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncOutputDir, "output-dir", "o", "", "Install directory (default from settings)")
	syncCmd.Flags().IntVarP(&syncWorkers, "workers", "j", 0, "Items processed at once (default from settings)")
	syncCmd.Flags().BoolVar(&syncRepair, "repair", false, "Reinstall up-to-date items whose file is missing")
	syncCmd.Flags().BoolVar(&syncNoCache, "no-cache", false, "Do not use conditional request caching")

	rootCmd.AddCommand(syncCmd)
}
