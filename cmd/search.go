package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cncverse/internal/download"
	"cncverse/internal/extract"
	"cncverse/internal/history"
	"cncverse/internal/httputil"
	"cncverse/internal/media"
	"cncverse/internal/player"
	"cncverse/internal/probe"
	"cncverse/internal/provider"
	"cncverse/internal/ui"
)

// probeLimit bounds concurrent playlist probes when labelling links.
const probeLimit = 4

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the provider and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchPrint,
}

func searchPrint(cmd *cobra.Command, args []string) error {
	p, err := newProvider()
	if err != nil {
		return err
	}
	results, err := p.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if flagJSON {
		if results == nil {
			results = []media.SearchResult{}
		}
		return printJSON(cmd.OutOrStdout(), results)
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.ID, provider.FormatDisplayTitle(r))
	}
	return nil
}

// searchRun is the default command: cncverse [query]. Without a query the
// user is prompted; an empty prompt browses the catalog instead.
func searchRun(cmd *cobra.Command, args []string) error {
	p, err := newProvider()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	query := strings.Join(args, " ")
	if query == "" {
		query, err = ui.Input("Search (empty to browse)")
		if errors.Is(err, ui.ErrNoInput) {
			return browseFlow(ctx, p)
		}
		if err != nil {
			return err
		}
	}

	log.Debug().Str("query", query).Msg("searching")
	return playFlow(ctx, p, query)
}

// playFlow handles the full search -> select -> play flow.
func playFlow(ctx context.Context, p provider.Provider, query string) error {
	results, err := p.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no results for %q on %s", query, p.Name())
	}
	return pickAndPlay(ctx, p, "Select", results)
}

// browseFlow picks a section of the first catalog page, then an item.
func browseFlow(ctx context.Context, p provider.Provider) error {
	sections, err := p.MainPage(ctx, 1)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	if len(sections) == 0 {
		return fmt.Errorf("%s has no catalog sections", p.Name())
	}

	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = fmt.Sprintf("%s (%d)", s.Name, len(s.Items))
	}
	idx, err := ui.Select("Section", names)
	if err != nil {
		return err
	}
	return pickAndPlay(ctx, p, sections[idx].Name, sections[idx].Items)
}

func pickAndPlay(ctx context.Context, p provider.Provider, prompt string, results []media.SearchResult) error {
	items := make([]string, len(results))
	for i, r := range results {
		items[i] = provider.FormatDisplayTitle(r)
	}
	idx, err := ui.Select(prompt, items)
	if err != nil {
		return err
	}

	selected := results[idx]
	log.Debug().Str("title", selected.Title).Str("id", selected.ID).Msg("selected")
	return resolveAndPlay(ctx, p, selected.ID, selected.Title, "")
}

// resolveAndPlay loads an item, picks an episode and a link, then plays or
// downloads it. resumeData preselects the episode last watched.
func resolveAndPlay(ctx context.Context, p provider.Provider, id, title, resumeData string) error {
	det, err := p.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("loading %q: %w", title, err)
	}
	if det == nil {
		return fmt.Errorf("%s could not load %q", p.Name(), title)
	}
	if len(det.Episodes) == 0 {
		return fmt.Errorf("no episodes found for %q", det.Title)
	}

	ep, err := pickEpisode(det.Episodes, resumeData)
	if err != nil {
		return err
	}
	log.Debug().Str("episode", ep.Label()).Str("data", ep.Data).Msg("episode")

	links, err := p.LoadLinks(ctx, ep.Data)
	if err != nil {
		return fmt.Errorf("getting links: %w", err)
	}
	if len(links) == 0 {
		return fmt.Errorf("no links found for %q", ep.Label())
	}
	links = expandLinks(ctx, links, true)

	link := links[0]
	if len(links) > 1 {
		labels := make([]string, len(links))
		for i, l := range links {
			labels[i] = linkLabel(l)
		}
		idx, err := ui.Select("Link", labels)
		if err != nil {
			return err
		}
		link = links[idx]
	}
	log.Debug().Str("link", link.Name).Str("type", link.Type.String()).Msg("link")

	playTitle := det.Title
	if len(det.Episodes) > 1 {
		playTitle = det.Title + " " + ep.Label()
	}

	if flagJSON {
		return printJSON(os.Stdout, map[string]any{
			"title": playTitle,
			"link":  link,
		})
	}

	if flagDownload != "" {
		dir, err := downloadDir()
		if err != nil {
			return err
		}
		outputPath, err := download.Download(ctx, link, playTitle, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Downloaded: %s\n", outputPath)
	} else {
		pl := player.New(cfg.Player)
		if !pl.Available() {
			return fmt.Errorf("player %q not found in PATH", cfg.Player)
		}
		if err := pl.Play(ctx, link, playTitle); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
	}

	recordHistory(ctx, media.HistoryEntry{
		Provider:     p.Name(),
		ID:           id,
		Title:        det.Title,
		EpisodeData:  ep.Data,
		EpisodeLabel: ep.Label(),
		LinkURL:      link.URL,
	})
	return nil
}

// pickEpisode selects the only episode, offers to resume the one matching
// resumeData, or asks the user.
func pickEpisode(episodes []media.Episode, resumeData string) (media.Episode, error) {
	if len(episodes) == 1 {
		return episodes[0], nil
	}

	labels := make([]string, len(episodes))
	for i, ep := range episodes {
		labels[i] = ep.Label()
		if resumeData != "" && ep.Data == resumeData {
			ok, err := ui.Confirm("Resume " + ep.Label())
			if err != nil {
				return media.Episode{}, err
			}
			if ok {
				return ep, nil
			}
		}
	}

	idx, err := ui.Select("Episode", labels)
	if err != nil {
		return media.Episode{}, err
	}
	return episodes[idx], nil
}

// linkLabel is the picker text for a link.
func linkLabel(l media.StreamLink) string {
	label := l.Name
	if l.Quality > 0 {
		label += fmt.Sprintf(" [%dp]", l.Quality)
	}
	label += " (" + l.Type.String()
	if l.DRM != nil {
		label += ", ClearKey"
	}
	return label + ")"
}

// expandLinks resolves embed pages into streams and, when requested, probes
// HLS playlists for their best quality.
func expandLinks(ctx context.Context, links []media.StreamLink, probeHLS bool) []media.StreamLink {
	f := httputil.NewFetcher(httputil.Profile{Name: "media"})
	links = extract.New(f).Expand(ctx, links)
	if probeHLS {
		links = probe.Annotate(ctx, f, links, probeLimit)
	}
	return links
}

func recordHistory(ctx context.Context, e media.HistoryEntry) {
	if !cfg.History {
		return
	}
	store, err := history.Open(ctx, "")
	if err != nil {
		log.Debug().Err(err).Msg("opening history failed")
		return
	}
	defer store.Close()
	if err := store.Add(ctx, e); err != nil {
		log.Debug().Err(err).Msg("saving history failed")
	}
}
