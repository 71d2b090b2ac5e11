package provider

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"cncverse/internal/config"
	"cncverse/internal/event"
	"cncverse/internal/keys"
	"cncverse/internal/logging"
	"cncverse/internal/media"
)

// LiveEvents lists scheduled sports events and resolves their servers.
type LiveEvents struct {
	feed       *skliveFeed
	streamBase string
	cardURL    string
	now        func() time.Time
	loc        *time.Location
	log        zerolog.Logger
}

// NewLiveEvents creates the provider. SKLIVE_KEY and SKLIVE_IV are required.
func NewLiveEvents(cfg *config.Config, secrets *config.Secrets) (*LiveEvents, error) {
	f, err := newSKLiveFeed(cfg, secrets)
	if err != nil {
		return nil, err
	}
	return &LiveEvents{
		feed:       f,
		streamBase: strings.TrimRight(cfg.LiveEvents.StreamBaseURL, "/"),
		cardURL:    cfg.LiveEvents.CardURL,
		now:        time.Now,
		loc:        time.Local,
		log:        logging.Module("live"),
	}, nil
}

func (l *LiveEvents) Name() string { return "live" }

// Events returns the published events in feed order.
func (l *LiveEvents) Events(ctx context.Context) ([]Event, error) {
	return l.feed.Events(ctx)
}

// eventLoad is the id carried by event results.
type eventLoad struct {
	EventID int        `json:"eventId"`
	Title   string     `json:"title"`
	Poster  string     `json:"poster,omitempty"`
	Slug    string     `json:"slug"`
	Formats []string   `json:"formats,omitempty"`
	Info    event.Info `json:"eventInfo"`
}

func decodeEventLoad(data string) (eventLoad, error) {
	var ld eventLoad
	if err := json.Unmarshal([]byte(data), &ld); err != nil {
		return ld, fmt.Errorf("%w: event data: %w", ErrUnexpectedPayload, err)
	}
	return ld, nil
}

func displayTitle(ev Event) string {
	if t := ev.Info.DisplayTitle(); t != "" {
		return t
	}
	return ev.Title
}

func (l *LiveEvents) result(ev Event, now time.Time) media.SearchResult {
	title := displayTitle(ev)
	poster := l.matchCard(ev, now)
	ld := eventLoad{
		EventID: ev.ID,
		Title:   title,
		Poster:  poster,
		Slug:    ev.Slug,
		Formats: ev.Formats,
		Info:    ev.Info,
	}
	id, _ := json.Marshal(ld)

	if badge := ev.Info.Classify(now).Badge(); badge != "" {
		title = badge + " " + title
	}
	return media.SearchResult{
		ID:       string(id),
		Title:    title,
		Type:     media.Live,
		Poster:   poster,
		Provider: l.Name(),
	}
}

// matchCard builds the poster URL rendered by the card service.
func (l *LiveEvents) matchCard(ev Event, now time.Time) string {
	if l.cardURL == "" {
		return ev.Image
	}
	info := ev.Info
	title := cmp.Or(info.Name, ev.Title)
	teamA := cmp.Or(info.TeamA, "Team A")
	teamB := cmp.Or(info.TeamB, "Team B")

	var b strings.Builder
	b.WriteString(l.cardURL)
	b.WriteString("?title=" + url.QueryEscape(title))
	b.WriteString("&teamA=" + url.QueryEscape(teamA))
	b.WriteString("&teamB=" + url.QueryEscape(teamB))
	if info.TeamAFlag != "" {
		b.WriteString("&teamAImg=" + url.QueryEscape(info.TeamAFlag))
	}
	if info.TeamBFlag != "" {
		b.WriteString("&teamBImg=" + url.QueryEscape(info.TeamBFlag))
	}
	if info.Logo != "" {
		b.WriteString("&eventLogo=" + url.QueryEscape(info.Logo))
	}
	if !info.Start.IsZero() {
		b.WriteString("&time=" + url.QueryEscape(info.Start.In(l.loc).Format("Jan 02, 2006 03:04 PM")))
	}
	b.WriteString("&isLive=" + strconv.FormatBool(info.Classify(now) == event.Live))
	return b.String()
}

func sportIcon(category string) string {
	switch strings.ToLower(category) {
	case "cricket":
		return "🏏"
	case "football":
		return "⚽"
	case "basketball":
		return "🏀"
	case "ice hockey":
		return "🏒"
	case "boxing":
		return "🥊"
	case "motorsport":
		return "🏎️"
	case "tennis":
		return "🎾"
	default:
		return "📺"
	}
}

func sectionRank(name string) int {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "cricket"):
		return 0
	case strings.Contains(name, "football"):
		return 1
	case strings.Contains(name, "basketball"):
		return 2
	default:
		return 10
	}
}

// MainPage groups events by sport. Live events lead each section.
func (l *LiveEvents) MainPage(ctx context.Context, page int) ([]media.Section, error) {
	if page > 1 {
		return nil, nil
	}
	events, err := l.feed.Events(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()

	var (
		order  []string
		groups = make(map[string][]Event)
	)
	for _, ev := range events {
		cat := cmp.Or(ev.Info.Category, "Other")
		if _, ok := groups[cat]; !ok {
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], ev)
	}

	sections := make([]media.Section, 0, len(order))
	for _, cat := range order {
		evs := groups[cat]
		slices.SortStableFunc(evs, func(a, b Event) int {
			return liveRank(a, now) - liveRank(b, now)
		})
		s := media.Section{Name: sportIcon(cat) + " " + cat}
		for _, ev := range evs {
			s.Items = append(s.Items, l.result(ev, now))
		}
		sections = append(sections, s)
	}
	slices.SortStableFunc(sections, func(a, b media.Section) int {
		return sectionRank(a.Name) - sectionRank(b.Name)
	})
	return sections, nil
}

func liveRank(ev Event, now time.Time) int {
	if ev.Info.Classify(now) == event.Live {
		return 0
	}
	return 1
}

// Search matches the query against titles, teams and category.
func (l *LiveEvents) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	events, err := l.feed.Events(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	q := strings.ToLower(strings.TrimSpace(query))

	var results []media.SearchResult
	for _, ev := range events {
		text := strings.Join([]string{ev.Title, ev.Info.TeamA, ev.Info.TeamB, ev.Info.Name, ev.Info.Category}, " ")
		if strings.Contains(strings.ToLower(text), q) {
			results = append(results, l.result(ev, now))
		}
	}
	return results, nil
}

// Load describes the event. Its single episode carries the event data.
func (l *LiveEvents) Load(_ context.Context, id string) (*media.Detail, error) {
	ld, err := decodeEventLoad(id)
	if err != nil {
		return nil, err
	}

	var plot strings.Builder
	if ld.Info.Category != "" {
		fmt.Fprintf(&plot, "📌 %s\n", ld.Info.Category)
	}
	if ld.Info.Name != "" {
		fmt.Fprintf(&plot, "🏆 %s\n", ld.Info.Name)
	}
	if !ld.Info.Start.IsZero() {
		fmt.Fprintf(&plot, "🕐 %s\n", ld.Info.Start.In(l.loc).Format("Jan 02, 2006 15:04"))
	}
	fmt.Fprintf(&plot, "\n📡 Available Servers: %d", len(ld.Formats))

	return &media.Detail{
		ID:       id,
		Title:    ld.Title,
		Type:     media.Live,
		Plot:     plot.String(),
		Poster:   ld.Poster,
		Episodes: []media.Episode{{Title: ld.Title, Data: id, Poster: ld.Poster}},
		Provider: l.Name(),
	}, nil
}

// streamRecord is one server entry of a channel file.
type streamRecord struct {
	Name     string `json:"name"`
	Link     string `json:"link"`
	Scheme   *int   `json:"scheme"`
	API      string `json:"api"`
	TokenAPI string `json:"tokenApi"`
}

func (r streamRecord) candidate() media.StreamCandidate {
	c := media.StreamCandidate{
		Name:      r.Name,
		RawURL:    r.Link,
		TokenSpec: r.TokenAPI,
	}
	if r.Scheme != nil {
		c.Scheme = *r.Scheme
	}
	if kid, key, ok := drmPair(r.API); ok {
		c.DRMKeyIDHex, c.DRMKeyHex = kid, key
	}
	return c
}

// drmPair splits a "kid:key" hex pair. Dashes are ignored.
func drmPair(api string) (kid, key string, ok bool) {
	parts := strings.Split(api, ":")
	if len(parts) != 2 {
		return "", "", false
	}
	kid = strings.ReplaceAll(strings.TrimSpace(parts[0]), "-", "")
	key = strings.ReplaceAll(strings.TrimSpace(parts[1]), "-", "")
	if _, err := keys.DecodeHex(kid); err != nil || kid == "" {
		return "", "", false
	}
	if _, err := keys.DecodeHex(key); err != nil || key == "" {
		return "", "", false
	}
	return kid, key, true
}

// LoadLinks fetches the channel file for the event and resolves every
// server. Servers that cannot be resolved are skipped.
func (l *LiveEvents) LoadLinks(ctx context.Context, data string) ([]media.StreamLink, error) {
	ld, err := decodeEventLoad(data)
	if err != nil {
		return nil, err
	}
	candidates, err := l.candidates(ctx, ld.Slug)
	if err != nil {
		return nil, err
	}

	links := make([]media.StreamLink, 0, len(candidates))
	for _, c := range candidates {
		link, err := l.resolve(ctx, c)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			l.log.Warn().Err(err).Str("server", c.Name).Msg("skipping server")
			continue
		}
		links = append(links, link)
	}
	return links, nil
}

func (l *LiveEvents) candidates(ctx context.Context, slug string) ([]media.StreamCandidate, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: event has no channel", ErrUnexpectedPayload)
	}
	body, err := l.feed.fetcher.Get(ctx, l.streamBase+"/"+slug+".txt", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching channel %s: %w", slug, err)
	}
	plain, err := l.feed.decoder.Decode(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("decoding channel %s: %w", slug, err)
	}
	l.log.Debug().Str("slug", slug).Str("preview", logging.Preview(plain, 200)).Msg("channel decoded")

	var records []streamRecord
	if err := decodeJSON([]byte(plain), &records); err != nil {
		return nil, fmt.Errorf("channel %s: %w", slug, err)
	}
	out := make([]media.StreamCandidate, len(records))
	for i, r := range records {
		out[i] = r.candidate()
	}
	return out, nil
}

func (l *LiveEvents) resolve(ctx context.Context, c media.StreamCandidate) (media.StreamLink, error) {
	raw := c.RawURL
	if raw == "" && c.TokenSpec != "" {
		var err error
		if raw, err = l.tokenLink(ctx, c.TokenSpec); err != nil {
			return media.StreamLink{}, err
		}
	}
	u, headers := parseStreamLink(raw)
	if u == "" {
		return media.StreamLink{}, errors.New("server has no link")
	}

	opts := []media.LinkOption{media.WithHeaders(headers), media.WithType(media.HLS)}
	if strings.Contains(u, ".mpd") {
		opts = append(opts, media.WithType(media.DASH))
		if c.DRMKeyHex != "" && c.DRMKeyIDHex != "" {
			opts = append(opts, media.WithDRM(media.DRM{
				KeyBase64:   keys.HexToBase64URL(c.DRMKeyHex),
				KeyIDBase64: keys.HexToBase64URL(c.DRMKeyIDHex),
			}))
		}
	}
	return media.NewStreamLink(l.Name(), cmp.Or(c.Name, "Server"), u, opts...), nil
}

// tokenLink calls the token API configured in tokenAPI and extracts the stream
// URL. The value under link_key wins; otherwise the whole body is the URL.
func (l *LiveEvents) tokenLink(ctx context.Context, tokenAPI string) (string, error) {
	api := gjson.Get(tokenAPI, "api").String()
	if api == "" {
		return "", fmt.Errorf("%w: token api has no url", ErrUnexpectedPayload)
	}
	body, err := l.feed.fetcher.Get(ctx, api, nil)
	if err != nil {
		return "", fmt.Errorf("token api: %w", err)
	}
	if key := gjson.Get(tokenAPI, "link_key").String(); key != "" {
		v := gjson.ParseBytes(body).Map()[key]
		if v.Type == gjson.String && v.String() != "" {
			return v.String(), nil
		}
	}
	return strings.TrimSpace(string(body)), nil
}

// parseStreamLink splits "url|k=v&k=v" into the URL and its headers.
func parseStreamLink(link string) (string, media.Headers) {
	u, params, ok := strings.Cut(link, "|")
	if !ok {
		return link, nil
	}
	var headers media.Headers
	for _, pair := range strings.Split(params, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		switch strings.ToLower(k) {
		case "user-agent":
			k = "User-Agent"
		case "referer":
			k = "Referer"
		case "origin":
			k = "Origin"
		case "cookie":
			k = "Cookie"
		}
		headers.Set(k, v)
	}
	return u, headers
}

var _ Provider = (*LiveEvents)(nil)
