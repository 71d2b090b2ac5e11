// Package media defines shared types for the cncverse application.
package media

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// StreamType is the delivery format of a stream URL.
type StreamType int

const (
	Progressive StreamType = iota
	HLS
	DASH
)

func (s StreamType) String() string {
	switch s {
	case HLS:
		return "hls"
	case DASH:
		return "dash"
	default:
		return "progressive"
	}
}

// MarshalText renders the type by name in JSON output.
func (s StreamType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InferType guesses the stream type from the URL path.
func InferType(rawURL string) StreamType {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.ToLower(p)
	switch {
	case strings.Contains(p, ".m3u8"), strings.HasSuffix(p, ".m3u"):
		return HLS
	case strings.Contains(p, ".mpd"):
		return DASH
	default:
		return Progressive
	}
}

// ContentType represents what kind of content an item is.
type ContentType int

const (
	Movie ContentType = iota
	TVSeries
	Live
)

func (c ContentType) String() string {
	switch c {
	case Movie:
		return "movie"
	case TVSeries:
		return "tv"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (c ContentType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Header is a single HTTP header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered header list. Names compare case-insensitively.
type Headers []Header

// Get returns the value of the first header matching name.
func (h Headers) Get(name string) string {
	for _, hd := range h {
		if strings.EqualFold(hd.Name, name) {
			return hd.Value
		}
	}
	return ""
}

// Has reports whether a header with that name is present.
func (h Headers) Has(name string) bool {
	for _, hd := range h {
		if strings.EqualFold(hd.Name, name) {
			return true
		}
	}
	return false
}

// Set replaces the value of an existing header in place, or appends it.
func (h *Headers) Set(name, value string) {
	for i, hd := range *h {
		if strings.EqualFold(hd.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// HeadersFromMap builds a header list from a map, ordered by name.
func HeadersFromMap(m map[string]string) Headers {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	var h Headers
	for _, n := range names {
		h.Set(n, m[n])
	}
	return h
}

// DRM holds ClearKey material, both halves as unpadded base64url.
type DRM struct {
	KeyBase64   string `json:"key,omitempty"`
	KeyIDBase64 string `json:"key_id,omitempty"`
	LicenseURL  string `json:"license_url,omitempty"`
}

// StreamLink is a resolved playback option handed to the player.
type StreamLink struct {
	Source  string     `json:"source"`
	Name    string     `json:"name"`
	URL     string     `json:"url"`
	Type    StreamType `json:"type"`
	Quality int        `json:"quality,omitempty"`
	Referer string     `json:"referer,omitempty"`
	Headers Headers    `json:"headers,omitempty"`
	DRM     *DRM       `json:"drm,omitempty"`
}

// LinkOption customises a StreamLink at construction.
type LinkOption func(*StreamLink)

// WithType overrides the inferred stream type.
func WithType(t StreamType) LinkOption {
	return func(l *StreamLink) { l.Type = t }
}

// WithQuality sets the vertical resolution.
func WithQuality(q int) LinkOption {
	return func(l *StreamLink) { l.Quality = q }
}

// WithReferer sets the referer sent with every request.
func WithReferer(ref string) LinkOption {
	return func(l *StreamLink) { l.Referer = ref }
}

// WithHeaders adds a copy of h.
func WithHeaders(h Headers) LinkOption {
	return func(l *StreamLink) {
		for _, hd := range h {
			l.Headers.Set(hd.Name, hd.Value)
		}
	}
}

// WithHeader adds a single header.
func WithHeader(name, value string) LinkOption {
	return func(l *StreamLink) { l.Headers.Set(name, value) }
}

// WithDRM attaches ClearKey material.
func WithDRM(d DRM) LinkOption {
	return func(l *StreamLink) { l.DRM = &d }
}

// NewStreamLink builds a link. The type is inferred from the URL unless an
// option sets it.
func NewStreamLink(source, name, rawURL string, opts ...LinkOption) StreamLink {
	l := StreamLink{
		Source: source,
		Name:   name,
		URL:    rawURL,
		Type:   InferType(rawURL),
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// HeaderMap flattens the link headers and referer for consumers that take a
// plain map. An explicit Referer header wins over the Referer field.
func (l StreamLink) HeaderMap() map[string]string {
	m := make(map[string]string, len(l.Headers)+1)
	if l.Referer != "" {
		m["Referer"] = l.Referer
	}
	for _, h := range l.Headers {
		m[h.Name] = h.Value
	}
	return m
}

// StreamCandidate is one playback option before headers and DRM are
// materialised.
type StreamCandidate struct {
	Name        string
	RawURL      string
	Scheme      int
	DRMKeyIDHex string
	DRMKeyHex   string
	TokenSpec   string
}

// SearchResult represents a single catalog item.
type SearchResult struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	Year     string      `json:"year,omitempty"`
	Poster   string      `json:"poster,omitempty"`
	Quality  string      `json:"quality,omitempty"`
	Provider string      `json:"provider"`
}

// Section is one page of a catalog section.
type Section struct {
	Name    string         `json:"name"`
	Items   []SearchResult `json:"items"`
	HasNext bool           `json:"has_next"`
}

// Episode is one playable unit of a Detail. Movies and channels carry a
// single episode.
type Episode struct {
	Season  int    `json:"season,omitempty"`
	Number  int    `json:"number,omitempty"`
	Title   string `json:"title"`
	Data    string `json:"data"`
	Poster  string `json:"poster,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Label is the picker text for the episode.
func (e Episode) Label() string {
	if e.Season > 0 && e.Number > 0 {
		return fmt.Sprintf("S%02dE%02d %s", e.Season, e.Number, e.Title)
	}
	return e.Title
}

// CastMember is an actor credited on a Detail.
type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	Image     string `json:"image,omitempty"`
}

// Detail is a fully loaded catalog item.
type Detail struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Type     ContentType    `json:"type"`
	Year     string         `json:"year,omitempty"`
	Plot     string         `json:"plot,omitempty"`
	Poster   string         `json:"poster,omitempty"`
	Backdrop string         `json:"backdrop,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Score    float64        `json:"score,omitempty"`
	Duration int            `json:"duration,omitempty"`
	Actors   []CastMember   `json:"actors,omitempty"`
	Related  []SearchResult `json:"related,omitempty"`
	Episodes []Episode      `json:"episodes"`
	Provider string         `json:"provider"`
}

// HistoryEntry represents a single entry in the watch history.
type HistoryEntry struct {
	Provider     string
	ID           string
	Title        string
	EpisodeData  string
	EpisodeLabel string
	LinkURL      string
	WatchedAt    int64
}
