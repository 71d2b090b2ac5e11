package provider

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"cncverse/internal/config"
	"cncverse/internal/httputil"
	"cncverse/internal/logging"
	"cncverse/internal/media"
	"cncverse/internal/playlist"
)

// iptvProfile mimics the player the playlist hosts expect.
var iptvProfile = httputil.Profile{
	Name:      "iptv",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; rv:78.0) Gecko/20100101 Firefox/78.0",
	Headers: media.Headers{
		{Name: "Accept", Value: "*/*"},
		{Name: "Cache-Control", Value: "no-cache, no-store"},
	},
}

// IPTV serves an M3U playlist, either configured directly or picked from
// the SKLive categories feed.
type IPTV struct {
	channelProvider
	fetcher     *httputil.Fetcher
	playlistURL string
	category    string
	feed        *skliveFeed

	mu       sync.Mutex
	resolved string
}

// NewIPTV creates the playlist provider. The SKLive secrets are only
// required when no playlist URL is configured.
func NewIPTV(cfg *config.Config, secrets *config.Secrets) (*IPTV, error) {
	p := &IPTV{
		fetcher:     httputil.NewFetcher(iptvProfile),
		playlistURL: strings.TrimSpace(cfg.IPTV.PlaylistURL),
		category:    strings.TrimSpace(cfg.IPTV.Category),
	}
	p.channelProvider = channelProvider{name: "iptv", source: p.entries, log: logging.Module("iptv")}

	if p.playlistURL != "" {
		if err := httputil.ValidateURL(p.playlistURL); err != nil {
			return nil, fmt.Errorf("iptv.playlist_url: %w", err)
		}
		return p, nil
	}
	f, err := newSKLiveFeed(cfg, secrets)
	if err != nil {
		return nil, err
	}
	p.feed = f
	return p, nil
}

// playlist returns the URL to serve, consulting the categories feed once.
func (p *IPTV) playlist(ctx context.Context) (string, error) {
	if p.playlistURL != "" {
		return p.playlistURL, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved != "" {
		return p.resolved, nil
	}

	cats, err := p.feed.Categories(ctx)
	if err != nil {
		return "", err
	}
	c, err := pickCategory(cats, p.category)
	if err != nil {
		return "", err
	}
	p.log.Info().Str("category", c.Name).Msg("using playlist category")
	p.resolved = c.Playlist
	return p.resolved, nil
}

// pickCategory returns the category named want, or the first one with a
// playlist when want is empty.
func pickCategory(cats []Category, want string) (Category, error) {
	for _, c := range cats {
		if c.Playlist == "" {
			continue
		}
		if want == "" || strings.EqualFold(c.Name, want) {
			return c, nil
		}
	}
	if want != "" {
		return Category{}, fmt.Errorf("category %q not found in feed", want)
	}
	return Category{}, fmt.Errorf("%w: feed has no playlist categories", ErrUnexpectedPayload)
}

func (p *IPTV) entries(ctx context.Context) ([]playlist.Entry, error) {
	u, err := p.playlist(ctx)
	if err != nil {
		return nil, err
	}
	body, err := p.fetcher.Get(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist: %w", err)
	}
	entries, err := playlist.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}
	return entries, nil
}

// ListCategories returns the playlist categories of the SKLive feed.
func ListCategories(ctx context.Context, cfg *config.Config, secrets *config.Secrets) ([]Category, error) {
	f, err := newSKLiveFeed(cfg, secrets)
	if err != nil {
		return nil, err
	}
	return f.Categories(ctx)
}
