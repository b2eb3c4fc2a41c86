package main

import (
	"fmt"
	"io"

	"github.com/obentoo/lifter/internal/common/output"
	"github.com/obentoo/lifter/internal/manifest"
	"github.com/spf13/cobra"
)

// listTemplates also lists the manifest templates
var listTemplates bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked items and their recorded versions",
	Long: `List every manifest item with its method, recorded version and the
file it installs. Items whose configuration cannot be resolved are shown
with the reason.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		store, err := openManifest(s)
		if err != nil {
			return err
		}
		defer store.Close()

		displayItems(cmd.OutOrStdout(), store.Manifest())
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listTemplates, "templates", false, "Also list templates")

	rootCmd.AddCommand(listCmd)
}

// displayItems writes one block per item
func displayItems(w io.Writer, m *manifest.Manifest) {
	if len(m.Items) == 0 {
		fmt.Fprintln(w, "No items in manifest")
		return
	}

	for _, item := range m.Items {
		fmt.Fprintf(w, "%s\n", output.FormatItem(item.Name))

		r, err := manifest.Resolve(item, m)
		if err != nil {
			fmt.Fprintf(w, "    %s\n", output.Sprintf(output.Error, "%v", err))
			continue
		}

		fmt.Fprintf(w, "    Method:  %s\n", r.Method)
		fmt.Fprintf(w, "    Page:    %s\n", r.PageURL)
		fmt.Fprintf(w, "    Version: %s\n", displayVersion(r.RecordedVersion))
		fmt.Fprintf(w, "    File:    %s\n", r.DesiredFilename)
		if ref := item.TemplateRef(); ref != "" {
			fmt.Fprintf(w, "    Template: %s\n", ref)
		}
	}

	if listTemplates {
		fmt.Fprintln(w)
		output.Header.Fprintln(w, "Templates")
		for _, name := range m.TemplateNames() {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}

	fmt.Fprintln(w)
	output.Info.Fprintf(w, "Total: %d item(s)\n", len(m.Items))
}
