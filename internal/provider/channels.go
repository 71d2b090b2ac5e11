package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"cncverse/internal/media"
	"cncverse/internal/playlist"
)

// channelData is the opaque id carried by channel results. It holds
// everything LoadLinks needs so no second playlist fetch is required.
type channelData struct {
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Poster     string            `json:"poster,omitempty"`
	Nation     string            `json:"nation,omitempty"`
	Key        string            `json:"key,omitempty"`
	KeyID      string            `json:"keyid,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Cookie     string            `json:"cookie,omitempty"`
	LicenseURL string            `json:"licenseUrl,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

func channelFromEntry(e playlist.Entry) channelData {
	return channelData{
		URL:        e.URL,
		Title:      e.Title,
		Poster:     e.Logo(),
		Nation:     e.Group(),
		Key:        e.Key,
		KeyID:      e.KeyID,
		UserAgent:  e.UserAgent,
		Cookie:     e.Cookie,
		LicenseURL: e.LicenseURL,
		Headers:    e.Headers,
	}
}

func (c channelData) encode() string {
	b, _ := json.Marshal(c)
	return string(b)
}

func decodeChannel(data string) (channelData, error) {
	var c channelData
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, fmt.Errorf("%w: channel data: %w", ErrUnexpectedPayload, err)
	}
	if c.URL == "" {
		return c, fmt.Errorf("%w: channel data has no url", ErrUnexpectedPayload)
	}
	return c, nil
}

// channelProvider serves a playlist of live channels. Concrete providers
// supply the entries.
type channelProvider struct {
	name   string
	source func(ctx context.Context) ([]playlist.Entry, error)
	log    zerolog.Logger
}

func (c *channelProvider) Name() string { return c.name }

func (c *channelProvider) result(e playlist.Entry) media.SearchResult {
	return media.SearchResult{
		ID:       channelFromEntry(e).encode(),
		Title:    e.Title,
		Type:     media.Live,
		Poster:   e.Logo(),
		Provider: c.name,
	}
}

// MainPage groups channels by group-title in first-seen order. Playlists
// have a single page.
func (c *channelProvider) MainPage(ctx context.Context, page int) ([]media.Section, error) {
	if page > 1 {
		return nil, nil
	}
	entries, err := c.source(ctx)
	if err != nil {
		return nil, err
	}

	var sections []media.Section
	index := make(map[string]int)
	for _, e := range entries {
		group := e.Group()
		if group == "" {
			group = "Other"
		}
		i, ok := index[group]
		if !ok {
			i = len(sections)
			index[group] = i
			sections = append(sections, media.Section{Name: group})
		}
		sections[i].Items = append(sections[i].Items, c.result(e))
	}
	c.log.Debug().Int("channels", len(entries)).Int("groups", len(sections)).Msg("main page built")
	return sections, nil
}

// Search matches channel titles case-insensitively.
func (c *channelProvider) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	entries, err := c.source(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	var results []media.SearchResult
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Title), q) {
			results = append(results, c.result(e))
		}
	}
	return results, nil
}

// Load returns a single-episode detail whose data is the channel itself.
func (c *channelProvider) Load(_ context.Context, id string) (*media.Detail, error) {
	ch, err := decodeChannel(id)
	if err != nil {
		return nil, err
	}
	return &media.Detail{
		ID:       id,
		Title:    ch.Title,
		Type:     media.Live,
		Plot:     ch.Nation,
		Poster:   ch.Poster,
		Episodes: []media.Episode{{Title: ch.Title, Data: id, Poster: ch.Poster}},
		Provider: c.name,
	}, nil
}

// LoadLinks turns the channel into one playable link.
func (c *channelProvider) LoadLinks(_ context.Context, data string) ([]media.StreamLink, error) {
	ch, err := decodeChannel(data)
	if err != nil {
		return nil, err
	}
	return []media.StreamLink{ch.link(c.name)}, nil
}

func (ch channelData) link(source string) media.StreamLink {
	headers := media.HeadersFromMap(ch.Headers)
	if ch.UserAgent != "" {
		headers.Set("User-Agent", ch.UserAgent)
	}
	if ch.Cookie != "" {
		headers.Set("Cookie", ch.Cookie)
	}
	opts := []media.LinkOption{media.WithHeaders(headers)}

	name := source
	switch {
	case strings.Contains(ch.URL, "mpd"):
		opts = append(opts, media.WithType(media.DASH))
		if hasKey(ch.Key) && hasKey(ch.KeyID) {
			opts = append(opts, media.WithDRM(media.DRM{
				KeyBase64:   ch.Key,
				KeyIDBase64: ch.KeyID,
				LicenseURL:  ch.LicenseURL,
			}))
		}
	case strings.Contains(ch.URL, "&e=.m3u"):
		opts = append(opts, media.WithType(media.HLS))
	default:
		name = ch.Title
	}
	return media.NewStreamLink(source, name, ch.URL, opts...)
}

func hasKey(s string) bool {
	return s != "" && s != "null"
}
