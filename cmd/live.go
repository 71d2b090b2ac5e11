package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cncverse/internal/event"
	"cncverse/internal/provider"
	"cncverse/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List live sports events with their status",
	Args:  cobra.NoArgs,
	RunE:  eventsRun,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the SKLive playlist categories",
	Args:  cobra.NoArgs,
	RunE:  categoriesRun,
}

// eventRow is the JSON form of an event listing.
type eventRow struct {
	ID      int        `json:"id"`
	Title   string     `json:"title"`
	Slug    string     `json:"slug,omitempty"`
	Status  string     `json:"status"`
	Formats []string   `json:"formats,omitempty"`
	Info    event.Info `json:"info"`
}

func eventsRun(cmd *cobra.Command, args []string) error {
	live, err := provider.NewLiveEvents(cfg, secrets)
	if err != nil {
		return err
	}
	events, err := live.Events(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}

	now := time.Now()
	out := cmd.OutOrStdout()
	if flagJSON {
		rows := make([]eventRow, 0, len(events))
		for _, ev := range events {
			rows = append(rows, eventRow{
				ID:      ev.ID,
				Title:   ev.Title,
				Slug:    ev.Slug,
				Status:  ev.Info.Classify(now).String(),
				Formats: ev.Formats,
				Info:    ev.Info,
			})
		}
		return printJSON(out, rows)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events scheduled.")
		return nil
	}

	for _, ev := range events {
		status := ev.Info.Classify(now)
		title := ev.Info.DisplayTitle()
		if title == "" {
			title = ev.Title
		}
		when := "--"
		if !ev.Info.Start.IsZero() {
			when = ev.Info.Start.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(out, "%-10s %s  %-12s %s\n",
			ui.Badge(out, strings.ToUpper(status.String()), status == event.Live),
			when, ev.Info.Category, title)
	}
	return nil
}

func categoriesRun(cmd *cobra.Command, args []string) error {
	cats, err := provider.ListCategories(cmd.Context(), cfg, secrets)
	if err != nil {
		return fmt.Errorf("loading categories: %w", err)
	}
	out := cmd.OutOrStdout()
	if flagJSON {
		if cats == nil {
			cats = []provider.Category{}
		}
		return printJSON(out, cats)
	}
	for _, c := range cats {
		fmt.Fprintf(out, "%s\t%s\t%s\n", c.Name, c.Type, c.Playlist)
	}
	return nil
}
