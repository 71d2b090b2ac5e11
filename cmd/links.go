package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cncverse/internal/media"
)

var flagProbe bool

var linksCmd = &cobra.Command{
	Use:   "links <data>",
	Short: "Resolve an episode's data string and print its stream links as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  linksRun,
}

func init() {
	linksCmd.Flags().BoolVar(&flagProbe, "probe", false, "Fill in missing HLS qualities by probing the playlists")
}

func linksRun(cmd *cobra.Command, args []string) error {
	p, err := newProvider()
	if err != nil {
		return err
	}
	links, err := p.LoadLinks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting links: %w", err)
	}
	links = expandLinks(cmd.Context(), links, flagProbe)
	if links == nil {
		links = []media.StreamLink{}
	}
	return printJSON(cmd.OutOrStdout(), links)
}
