package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"cncverse/internal/config"
	"cncverse/internal/event"
	"cncverse/internal/feed"
	"cncverse/internal/httputil"
	"cncverse/internal/keys"
	"cncverse/internal/logging"
)

const skliveUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Category is one playlist published in the SKLive categories feed.
type Category struct {
	Name     string `json:"name"`
	Logo     string `json:"logo,omitempty"`
	Type     string `json:"type,omitempty"`
	Playlist string `json:"playlist"`
}

// Event is a published entry of the events feed.
type Event struct {
	ID      int
	Title   string
	Image   string
	Slug    string
	Formats []string
	Info    event.Info
}

type categoryRecord struct {
	Visible *bool  `json:"visible"`
	Name    string `json:"name"`
	Logo    string `json:"logo"`
	Type    string `json:"type"`
	API     string `json:"api"`
}

type eventRecord struct {
	Category  string   `json:"category"`
	EventName string   `json:"eventName"`
	EventLogo string   `json:"eventLogo"`
	TeamAName string   `json:"teamAName"`
	TeamBName string   `json:"teamBName"`
	TeamAFlag string   `json:"teamAFlag"`
	TeamBFlag string   `json:"teamBFlag"`
	Date      string   `json:"date"`
	Time      string   `json:"time"`
	EndDate   string   `json:"end_date"`
	EndTime   string   `json:"end_time"`
	Links     string   `json:"links"`
	LinkNames []string `json:"link_names"`
	Visible   *bool    `json:"visible"`
}

// skliveFeed reads the obfuscated categories and events feeds. The feed host
// is looked up once through remote config when available.
type skliveFeed struct {
	fetcher *httputil.Fetcher
	decoder *feed.Decoder
	base    string
	remote  *remoteConfig

	mu       sync.Mutex
	resolved string

	log zerolog.Logger
}

func newSKLiveFeed(cfg *config.Config, secrets *config.Secrets) (*skliveFeed, error) {
	if err := secrets.Require(config.SKLiveKey, config.SKLiveIV); err != nil {
		return nil, err
	}
	km, err := keys.FromHex(secrets.Get(config.SKLiveKey), secrets.Get(config.SKLiveIV))
	if err != nil {
		return nil, fmt.Errorf("sklive key: %w", err)
	}

	f := &skliveFeed{
		fetcher: httputil.NewFetcher(httputil.Profile{Name: "sklive", UserAgent: skliveUserAgent}),
		decoder: feed.NewDecoder(km),
		base:    strings.TrimRight(cfg.LiveEvents.FeedBaseURL, "/"),
		log:     logging.Module("sklive"),
	}
	if cfg.LiveEvents.RemoteConfig && secrets.Has(config.FirebaseAPIKey, config.FirebaseAppID, config.FirebaseProjectNumber) {
		f.remote = newRemoteConfig(secrets)
	}
	return f, nil
}

// baseURL returns the feed host, asking remote config on first use. A
// failed lookup falls back to the configured host for the process lifetime.
func (f *skliveFeed) baseURL(ctx context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.resolved != "" {
		return f.resolved
	}
	f.resolved = f.base
	if f.remote != nil {
		u, err := f.remote.APIURL(ctx)
		switch {
		case err != nil:
			f.log.Warn().Err(err).Msg("remote config unavailable, using configured feed host")
		case httputil.ValidateURL(u) != nil:
			f.log.Warn().Str("api_url", u).Msg("remote config returned an invalid host")
		default:
			f.resolved = u
		}
	}
	f.log.Debug().Str("base", f.resolved).Msg("feed host resolved")
	return f.resolved
}

// fetch downloads and decodes one feed file.
func (f *skliveFeed) fetch(ctx context.Context, name string) (string, error) {
	u := f.baseURL(ctx) + "/" + name
	body, err := f.fetcher.Get(ctx, u, nil)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", name, err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("%s: %w: empty body", name, ErrUnexpectedPayload)
	}
	plain, err := f.decoder.Decode(text)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", name, err)
	}
	return plain, nil
}

// unwrap parses a list of {field: "<json>"} wrappers and returns the inner
// documents. Wrappers that are not objects or lack the field are reported
// and skipped.
func (f *skliveFeed) unwrap(feedName, plain, field string) ([]string, error) {
	var wrappers []map[string]json.RawMessage
	if err := decodeJSON([]byte(plain), &wrappers); err != nil {
		return nil, fmt.Errorf("%s: %w", feedName, err)
	}

	docs := make([]string, 0, len(wrappers))
	for i, w := range wrappers {
		var inner string
		raw, ok := w[field]
		if !ok {
			f.skip(feedName, i, fmt.Errorf("missing %q", field))
			continue
		}
		if err := json.Unmarshal(raw, &inner); err != nil {
			f.skip(feedName, i, err)
			continue
		}
		docs = append(docs, inner)
	}
	return docs, nil
}

func (f *skliveFeed) skip(feedName string, i int, err error) {
	f.log.Warn().Err(&MalformedEntryError{Feed: feedName, Index: i, Err: err}).Msg("skipping entry")
}

// Categories returns the visible playlist categories.
func (f *skliveFeed) Categories(ctx context.Context) ([]Category, error) {
	plain, err := f.fetch(ctx, "categories.txt")
	if err != nil {
		return nil, err
	}
	docs, err := f.unwrap("categories", plain, "cat")
	if err != nil {
		return nil, err
	}

	var out []Category
	for i, doc := range docs {
		var rec categoryRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			f.skip("categories", i, err)
			continue
		}
		if rec.Visible != nil && !*rec.Visible {
			continue
		}
		out = append(out, Category{Name: rec.Name, Logo: rec.Logo, Type: rec.Type, Playlist: rec.API})
	}
	return out, nil
}

// Events returns the published events in feed order.
func (f *skliveFeed) Events(ctx context.Context) ([]Event, error) {
	plain, err := f.fetch(ctx, "events.txt")
	if err != nil {
		return nil, err
	}
	docs, err := f.unwrap("events", plain, "event")
	if err != nil {
		return nil, err
	}

	var out []Event
	for i, doc := range docs {
		var rec eventRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			f.skip("events", i, err)
			continue
		}
		if rec.Visible == nil || !*rec.Visible {
			continue
		}
		out = append(out, f.toEvent(i+1, rec))
	}
	return out, nil
}

func (f *skliveFeed) toEvent(id int, rec eventRecord) Event {
	title := rec.EventName
	if title == "" {
		title = "Unknown Event"
	}
	info := event.Info{
		TeamA:     rec.TeamAName,
		TeamB:     rec.TeamBName,
		TeamAFlag: rec.TeamAFlag,
		TeamBFlag: rec.TeamBFlag,
		Category:  rec.Category,
		Name:      rec.EventName,
		Logo:      rec.EventLogo,
	}
	if t, err := event.ParseFeedTime(rec.Date, rec.Time); err == nil {
		info.Start = t
	} else {
		f.log.Debug().Err(err).Str("event", title).Msg("no start time")
	}
	if t, err := event.ParseFeedTime(rec.EndDate, rec.EndTime); err == nil {
		info.End = t
	}
	return Event{
		ID:      id,
		Title:   title,
		Image:   rec.EventLogo,
		Slug:    slugOf(rec.Links),
		Formats: rec.LinkNames,
		Info:    info,
	}
}

// slugOf drops the last extension from a links value.
func slugOf(links string) string {
	if i := strings.LastIndex(links, "."); i >= 0 {
		return links[:i]
	}
	return links
}
