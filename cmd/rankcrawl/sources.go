package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/rankcrawl/internal/config"
)

// NewSourcesCmd creates the sources command.
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the sources that can be crawled",
		Long: `Sources lists the built-in ranking sources together with the sources
defined in the .rankcrawl configuration file, after merging file defaults
and overrides.

Examples:
  # List sources using .rankcrawl from the current or home directory
  rankcrawl sources

  # List sources of a specific configuration file
  rankcrawl sources -c myconfig.yaml`,
		Args: cobra.NoArgs,
		RunE: runSourcesCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .rankcrawl in current or home directory)")

	return cmd
}

// runSourcesCmd executes the sources command.
func runSourcesCmd(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	file, path, err := config.Load(configPath)
	if err != nil {
		return err
	}

	builtin := config.Builtin()

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Sources")
	tw.AppendHeader(table.Row{"Name", "Layout", "Filter", "Output", "Origin", "URL"})
	for _, name := range file.SourceNames() {
		src, _ := file.GetSource(name)
		layout, err := src.LayoutOrFlat()
		if err != nil {
			return fmt.Errorf("source %q: %w", name, err)
		}
		tw.AppendRow(table.Row{name, layout, src.Filter, src.Output, sourceOrigin(file, builtin, name), src.URL})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tw.Render())
	if path != "" {
		fmt.Fprintf(out, "\nConfiguration file: %s\n", path)
	} else {
		fmt.Fprintln(out, "\nNo configuration file found. Use 'rankcrawl init' to create one.")
	}
	return nil
}

// sourceOrigin describes where the definition of name comes from.
func sourceOrigin(file *config.File, builtin map[string]config.SourceConfig, name string) string {
	_, inBuiltin := builtin[name]
	_, inFile := file.Sources[name]
	switch {
	case inBuiltin && inFile:
		return "built-in, overridden"
	case inBuiltin:
		return "built-in"
	default:
		return "config"
	}
}
