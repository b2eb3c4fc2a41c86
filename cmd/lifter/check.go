package main

import (
	"github.com/spf13/cobra"
)

var (
	// checkWorkers overrides workers from settings
	checkWorkers int
	// checkNoCache disables the conditional request cache
	checkNoCache bool
)

var checkCmd = &cobra.Command{
	Use:   "check [item...]",
	Short: "Report available updates without installing",
	Long: `Fetch every item's release page and compare versions, without
downloading anything or changing the manifest.

Examples:
  lifter check        Check all items
  lifter check rg     Check only rg`,
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd, args, runOptions{
			workers: checkWorkers,
			noCache: checkNoCache,
			dryRun:  true,
		})
	},
}

func init() {
	checkCmd.Flags().IntVarP(&checkWorkers, "workers", "j", 0, "Items processed at once (default from settings)")
	checkCmd.Flags().BoolVar(&checkNoCache, "no-cache", false, "Do not use conditional request caching")

	rootCmd.AddCommand(checkCmd)
}
