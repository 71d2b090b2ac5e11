package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cncverse/internal/config"
	"cncverse/internal/feed"
	"cncverse/internal/httputil"
	"cncverse/internal/keys"
	"cncverse/internal/logging"
	"cncverse/internal/playlist"
)

// Cricify serves a channel list that is published encrypted under one of two
// rotating keys.
type Cricify struct {
	channelProvider
	fetcher   *httputil.Fetcher
	sourceURL string
	keys      feed.MultiKey
}

// NewCricify creates the provider. Both key secrets and cricify.source_url
// are required.
func NewCricify(cfg *config.Config, secrets *config.Secrets) (*Cricify, error) {
	if err := secrets.Require(config.CricifySecret1, config.CricifySecret2); err != nil {
		return nil, err
	}
	src := strings.TrimSpace(cfg.Cricify.SourceURL)
	if src == "" {
		return nil, errors.New("cricify.source_url is not set")
	}
	if err := httputil.ValidateURL(src); err != nil {
		return nil, fmt.Errorf("cricify.source_url: %w", err)
	}

	var candidates []keys.Named
	for i, name := range []string{config.CricifySecret1, config.CricifySecret2} {
		km, err := keys.ParsePair(secrets.Get(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		candidates = append(candidates, keys.Named{Name: fmt.Sprintf("key%d", i+1), Material: km})
	}

	c := &Cricify{
		fetcher:   httputil.NewFetcher(iptvProfile),
		sourceURL: src,
		keys:      feed.MultiKey{Candidates: candidates},
	}
	c.channelProvider = channelProvider{name: "cricify", source: c.entries, log: logging.Module("cricify")}
	return c, nil
}

// channelRecord is the JSON form some sources publish instead of M3U.
type channelRecord struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Logo  string `json:"logo"`
	Group string `json:"group"`
}

func (c *Cricify) entries(ctx context.Context) ([]playlist.Entry, error) {
	body, err := c.fetcher.Get(ctx, c.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching channel list: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if playlist.IsExtended(text) {
		return playlist.ParseString(text), nil
	}

	plain, key, err := c.keys.Decrypt(text)
	if err != nil {
		return nil, fmt.Errorf("decrypting channel list: %w", err)
	}
	c.log.Debug().Str("key", key).Str("preview", logging.Preview(plain, 120)).Msg("channel list decrypted")
	return parseChannelList(strings.TrimSpace(plain))
}

// parseChannelList accepts either playlist text or a JSON array of channel
// records.
func parseChannelList(plain string) ([]playlist.Entry, error) {
	if playlist.IsExtended(plain) {
		return playlist.ParseString(plain), nil
	}

	var records []channelRecord
	if err := decodeJSON([]byte(plain), &records); err != nil {
		return nil, fmt.Errorf("channel list: %w", err)
	}
	entries := make([]playlist.Entry, 0, len(records))
	for _, r := range records {
		if r.URL == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = playlist.DefaultTitle
		}
		attrs := map[string]string{}
		if r.Logo != "" {
			attrs["tvg-logo"] = r.Logo
		}
		if r.Group != "" {
			attrs["group-title"] = r.Group
		}
		entries = append(entries, playlist.Entry{Title: title, URL: r.URL, Attributes: attrs})
	}
	return entries, nil
}

// Compile-time interface checks.
var (
	_ Provider = (*IPTV)(nil)
	_ Provider = (*Cricify)(nil)
)
