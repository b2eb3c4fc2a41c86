package main

import (
	"fmt"
	"io"

	"github.com/obentoo/lifter/internal/common/config"
	"github.com/obentoo/lifter/internal/common/output"
	"github.com/obentoo/lifter/internal/history"
	"github.com/spf13/cobra"
)

var (
	// historyLimit caps the number of entries shown
	historyLimit int
	// historyPrune keeps only this many entries per item
	historyPrune int
)

var historyCmd = &cobra.Command{
	Use:   "history [item]",
	Short: "Show past installs and failures",
	Long: `Show the install ledger, newest first. Every install and every failed
sync attempt is recorded.

Examples:
  lifter history              Last 20 entries of all items
  lifter history rg -n 5      Last 5 entries of rg
  lifter history --prune 10   Keep only the 10 newest entries per item`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completeItemNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.HistoryPath()
		if err != nil {
			return err
		}
		ledger, err := history.Open(path)
		if err != nil {
			return err
		}
		defer ledger.Close()

		if cmd.Flags().Changed("prune") {
			removed, err := ledger.Prune(cmd.Context(), historyPrune)
			if err != nil {
				return err
			}
			output.PrintSuccess("Removed %d entr(ies)", removed)
			return nil
		}

		var item string
		if len(args) == 1 {
			item = args[0]
		}
		entries, err := ledger.List(cmd.Context(), item, historyLimit)
		if err != nil {
			return err
		}
		displayHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Delete all but the newest N entries of every item")

	rootCmd.AddCommand(historyCmd)
}

// displayHistory writes one line per ledger entry
func displayHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history recorded")
		return
	}

	for _, e := range entries {
		detail := fmt.Sprintf("%s -> %s", displayVersion(e.PreviousVersion), displayVersion(e.Version))
		if e.Error != "" {
			detail = e.Error
		}
		stamp := output.Sprintf(output.Dim, "%s (%s)", e.At.Format("2006-01-02 15:04"), output.FormatAge(e.At))
		output.ResultLine(w, e.Status, e.Item, detail+"  "+stamp)
	}
}
