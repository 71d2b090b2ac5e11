// Package extract resolves embed pages into playable stream URLs by scanning
// the page for player sources.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cncverse/internal/httputil"
	"cncverse/internal/logging"
	"cncverse/internal/media"
)

// embedSuffix marks links that point at an embed page rather than a stream.
const embedSuffix = " embed"

// expandLimit bounds concurrent embed fetches.
const expandLimit = 3

var qualityPattern = regexp.MustCompile(`(\d{3,4})p`)

// IsEmbed reports whether l is an unresolved embed page.
func IsEmbed(l media.StreamLink) bool {
	return l.Type == media.Progressive && strings.HasSuffix(l.Name, embedSuffix)
}

// Extractor fetches embed pages and lists the streams they reference.
type Extractor struct {
	fetcher *httputil.Fetcher
	log     zerolog.Logger
}

// New creates an Extractor on f.
func New(f *httputil.Fetcher) *Extractor {
	return &Extractor{fetcher: f, log: logging.Module("extract")}
}

// Extract fetches the embed page behind link and returns one link per
// stream found. The embed URL becomes the referer of every result.
func (e *Extractor) Extract(ctx context.Context, embed media.StreamLink) ([]media.StreamLink, error) {
	if err := httputil.ValidateURL(embed.URL); err != nil {
		return nil, fmt.Errorf("invalid embed URL: %w", err)
	}
	body, err := e.fetcher.Get(ctx, embed.URL, media.HeadersFromMap(embed.HeaderMap()))
	if err != nil {
		return nil, fmt.Errorf("fetching embed page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing embed page: %w", err)
	}
	sources := findSources(doc, string(body))
	if len(sources) == 0 {
		return nil, fmt.Errorf("no stream found in embed page %s", embed.URL)
	}

	base := strings.TrimSuffix(embed.Name, embedSuffix)
	host := embed.URL
	if u, err := url.Parse(embed.URL); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	links := make([]media.StreamLink, 0, len(sources))
	for _, src := range sources {
		abs := httputil.ResolveURL(embed.URL, src)
		if httputil.ValidateURL(abs) != nil {
			continue
		}
		l := media.NewStreamLink(embed.Source, base+" - "+host, abs, media.WithReferer(embed.URL))
		if m := qualityPattern.FindStringSubmatch(abs); m != nil {
			l.Quality, _ = strconv.Atoi(m[1])
		}
		links = append(links, l)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("no valid stream URL in embed page %s", embed.URL)
	}
	return links, nil
}

// Expand replaces every embed link with the streams it resolves to. Embeds
// that cannot be resolved are kept as they are. Order is preserved.
func (e *Extractor) Expand(ctx context.Context, links []media.StreamLink) []media.StreamLink {
	resolved := make([][]media.StreamLink, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expandLimit)
	for i, l := range links {
		if !IsEmbed(l) {
			resolved[i] = []media.StreamLink{l}
			continue
		}
		g.Go(func() error {
			out, err := e.Extract(gctx, l)
			if err != nil {
				e.log.Debug().Err(err).Str("embed", l.URL).Msg("embed not resolved")
				out = []media.StreamLink{l}
			}
			resolved[i] = out
			return nil
		})
	}
	g.Wait()

	var out []media.StreamLink
	for _, r := range resolved {
		out = append(out, r...)
	}
	return out
}
