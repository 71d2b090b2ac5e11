package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cncverse/internal/media"
	"cncverse/internal/provider"
	"cncverse/internal/ui"
)

var flagPage int

var catalogCmd = &cobra.Command{
	Use:   "catalog [section]",
	Short: "Print a page of the provider's catalog sections",
	Args:  cobra.MaximumNArgs(1),
	RunE:  catalogRun,
}

func init() {
	catalogCmd.Flags().IntVar(&flagPage, "page", 1, "Catalog page")
}

func catalogRun(cmd *cobra.Command, args []string) error {
	if flagPage < 1 {
		return fmt.Errorf("page must be at least 1, got %d", flagPage)
	}
	p, err := newProvider()
	if err != nil {
		return err
	}
	sections, err := p.MainPage(cmd.Context(), flagPage)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	if len(args) == 1 {
		sections = filterSections(sections, args[0])
		if len(sections) == 0 {
			return fmt.Errorf("no section %q on %s", args[0], p.Name())
		}
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		if sections == nil {
			sections = []media.Section{}
		}
		return printJSON(out, sections)
	}
	if len(sections) == 0 {
		fmt.Fprintln(out, "No catalog content found.")
		return nil
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(out)
		}
		heading := s.Name
		if s.HasNext {
			heading += fmt.Sprintf(" (more on page %d)", flagPage+1)
		}
		fmt.Fprintln(out, ui.Heading(out, heading))
		for _, r := range s.Items {
			fmt.Fprintf(out, "  %s\t%s\n", r.ID, provider.FormatDisplayTitle(r))
		}
	}
	return nil
}

// filterSections keeps the sections whose name matches, ignoring case.
func filterSections(sections []media.Section, name string) []media.Section {
	var out []media.Section
	for _, s := range sections {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			out = append(out, s)
		}
	}
	return out
}
