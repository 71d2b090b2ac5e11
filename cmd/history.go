package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cncverse/internal/history"
	"cncverse/internal/media"
	"cncverse/internal/provider"
	"cncverse/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Resume or remove watch history entries",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func historyRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := history.Open(ctx, "")
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if flagJSON {
		if entries == nil {
			entries = []media.HistoryEntry{}
		}
		return printJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No history entries found.")
		return nil
	}

	idx, err := ui.Select("History", history.FormatForDisplay(entries))
	if err != nil {
		return err
	}
	selected := entries[idx]

	action, err := ui.Select(selected.Title, []string{"Resume", "Remove"})
	if err != nil {
		return err
	}
	if action == 1 {
		if err := store.Remove(ctx, selected.Provider, selected.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", selected.Title)
		return nil
	}
	store.Close()

	log.Debug().Str("title", selected.Title).Str("provider", selected.Provider).Msg("resuming")
	p, err := provider.New(selected.Provider, cfg, secrets)
	if err != nil {
		return err
	}
	return resolveAndPlay(ctx, p, selected.ID, selected.Title, selected.EpisodeData)
}
