package main

import (
	"fmt"

	"github.com/obentoo/lifter/internal/common/version"
	"github.com/spf13/cobra"
)

// versionShort prints only the version string
var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show lifter version information",
	Long:  `Show the lifter version, commit, build date and platform.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), version.Short())
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		return nil
	},
}

func init() {
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version")

	rootCmd.AddCommand(versionCmd)
}
