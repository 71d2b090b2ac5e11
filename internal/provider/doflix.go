package provider

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cncverse/internal/config"
	"cncverse/internal/httputil"
	"cncverse/internal/logging"
	"cncverse/internal/media"
)

const doflixReferer = "https://molop.art/"

var doflixProfile = httputil.Profile{
	Name:      "doflix",
	UserAgent: "dooflix",
	Headers: media.Headers{
		{Name: "Connection", Value: "Keep-Alive"},
		{Name: "X-App-Version", Value: "304"},
		{Name: "X-Package-Name", Value: "com.king.moja"},
	},
}

type doflixSection struct {
	Name  string
	Kind  string // movie or tv
	Sort  string
	Media media.ContentType
}

var doflixSections = []doflixSection{
	{"📅 Recently Added Movies", "movie", "primary_release_date.desc", media.Movie},
	{"📅 Recently Added Series", "tv", "first_air_date.desc", media.TVSeries},
	{"🔥 Trending Movies", "movie", "popularity.desc", media.Movie},
	{"🔥 Trending Series", "tv", "popularity.desc", media.TVSeries},
}

// seasonLimit bounds concurrent season fetches.
const seasonLimit = 4

// DoFlix reads a TMDB-shaped catalog API.
type DoFlix struct {
	base    string
	region  string
	apiKey  string
	fetcher *httputil.Fetcher
	log     zerolog.Logger
}

// NewDoFlix creates the provider. DOFLIX_API_KEY is required.
func NewDoFlix(cfg *config.Config, secrets *config.Secrets) (*DoFlix, error) {
	if err := secrets.Require(config.DoFlixAPIKey); err != nil {
		return nil, err
	}
	return &DoFlix{
		base:    strings.TrimRight(cfg.DoFlix.BaseURL, "/"),
		region:  cfg.DoFlix.Region,
		apiKey:  secrets.Get(config.DoFlixAPIKey),
		fetcher: httputil.NewFetcher(doflixProfile),
		log:     logging.Module("doflix"),
	}, nil
}

func (d *DoFlix) Name() string { return "doflix" }

// get fetches an API path with the key added and decodes the JSON into v.
func (d *DoFlix) get(ctx context.Context, path string, params url.Values, v any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", d.apiKey)
	body, err := d.fetcher.Get(ctx, d.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := decodeJSON(body, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

type tmdbItem struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	PosterPath   string  `json:"poster_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
}

type tmdbPage struct {
	Page       int        `json:"page"`
	Results    []tmdbItem `json:"results"`
	TotalPages int        `json:"total_pages"`
}

type tmdbCredits struct {
	Cast []struct {
		Name        string `json:"name"`
		Character   string `json:"character"`
		ProfilePath string `json:"profile_path"`
	} `json:"cast"`
}

type tmdbGenre struct {
	Name string `json:"name"`
}

type tmdbDetails struct {
	tmdbItem
	Overview     string      `json:"overview"`
	Runtime      int         `json:"runtime"`
	BackdropPath string      `json:"backdrop_path"`
	Genres       []tmdbGenre `json:"genres"`
	Credits      tmdbCredits `json:"credits"`
	Similar      tmdbPage    `json:"similar"`
	Seasons      []struct {
		SeasonNumber int `json:"season_number"`
	} `json:"seasons"`
}

type tmdbSeason struct {
	Episodes []struct {
		EpisodeNumber int    `json:"episode_number"`
		Name          string `json:"name"`
		Overview      string `json:"overview"`
		StillPath     string `json:"still_path"`
	} `json:"episodes"`
}

type doflixLink struct {
	Host    string `json:"host"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
	Size    string `json:"size"`
}

func yearOf(dates ...string) string {
	for _, d := range dates {
		if y, _, _ := strings.Cut(d, "-"); y != "" {
			return y
		}
	}
	return ""
}

func (d *DoFlix) result(it tmdbItem, t media.ContentType) media.SearchResult {
	kind, title, year := "movie", cmp.Or(it.Title, it.Name, "Unknown"), yearOf(it.ReleaseDate, it.FirstAirDate)
	if t == media.TVSeries {
		kind, title, year = "tvseries", cmp.Or(it.Name, it.Title, "Unknown"), yearOf(it.FirstAirDate, it.ReleaseDate)
	}
	r := media.SearchResult{
		ID:       kind + "," + strconv.Itoa(it.ID),
		Title:    title,
		Type:     t,
		Year:     year,
		Poster:   it.PosterPath,
		Provider: d.Name(),
	}
	if it.VoteAverage >= 7 {
		r.Quality = "HD"
	}
	return r
}

func (d *DoFlix) results(items []tmdbItem, t media.ContentType) []media.SearchResult {
	out := make([]media.SearchResult, 0, len(items))
	for _, it := range items {
		out = append(out, d.result(it, t))
	}
	return out
}

// MainPage fetches the four discover sections concurrently.
func (d *DoFlix) MainPage(ctx context.Context, page int) ([]media.Section, error) {
	page = max(page, 1)
	names := make([]string, len(doflixSections))
	for i, s := range doflixSections {
		names[i] = s.Name
	}
	return collectSections(ctx, d.log, names, func(ctx context.Context, i int) (media.Section, error) {
		s := doflixSections[i]
		params := url.Values{
			"language": {"en"},
			"sort_by":  {s.Sort},
			"page":     {strconv.Itoa(page)},
		}
		if s.Kind == "movie" && d.region != "" {
			params.Set("watch_region", d.region)
		}
		var p tmdbPage
		if err := d.get(ctx, "/api/3/discover/"+s.Kind, params, &p); err != nil {
			return media.Section{}, err
		}
		return media.Section{
			Name:    s.Name,
			Items:   d.results(p.Results, s.Media),
			HasNext: p.TotalPages == 0 || page < p.TotalPages,
		}, nil
	})
}

// Search queries movies and series concurrently and returns movies first.
func (d *DoFlix) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	params := func() url.Values {
		return url.Values{"language": {"en"}, "page": {"1"}, "query": {query}}
	}

	var movies, series tmdbPage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.get(gctx, "/api/3/search/movie", params(), &movies) })
	g.Go(func() error { return d.get(gctx, "/api/3/search/tv", params(), &series) })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	return append(d.results(movies.Results, media.Movie), d.results(series.Results, media.TVSeries)...), nil
}

func parseDoflixID(id string) (string, string, error) {
	kind, num, ok := strings.Cut(id, ",")
	if !ok || (kind != "movie" && kind != "tvseries") {
		return "", "", fmt.Errorf("invalid doflix id %q", id)
	}
	if err := httputil.ValidateNumericID(num); err != nil {
		return "", "", fmt.Errorf("invalid doflix id %q: %w", id, err)
	}
	return kind, num, nil
}

// Load fetches details. Series episodes are collected from every season.
func (d *DoFlix) Load(ctx context.Context, id string) (*media.Detail, error) {
	kind, num, err := parseDoflixID(id)
	if err != nil {
		return nil, err
	}

	path := "/api/3/movie/" + num
	if kind == "tvseries" {
		path = "/api/3/tv/" + num
	}
	var det tmdbDetails
	if err := d.get(ctx, path, url.Values{"append_to_response": {"credits,similar"}}, &det); err != nil {
		return nil, err
	}

	out := &media.Detail{
		ID:       id,
		Plot:     det.Overview,
		Poster:   det.PosterPath,
		Backdrop: det.BackdropPath,
		Score:    det.VoteAverage,
		Duration: det.Runtime,
		Provider: d.Name(),
	}
	for _, g := range det.Genres {
		out.Tags = append(out.Tags, g.Name)
	}
	for _, c := range det.Credits.Cast[:min(10, len(det.Credits.Cast))] {
		out.Actors = append(out.Actors, media.CastMember{Name: c.Name, Character: c.Character, Image: c.ProfilePath})
	}
	similar := det.Similar.Results[:min(10, len(det.Similar.Results))]

	if kind == "movie" {
		out.Type = media.Movie
		out.Title = cmp.Or(det.Title, det.Name)
		out.Year = yearOf(det.ReleaseDate)
		out.Related = d.results(similar, media.Movie)
		out.Episodes = []media.Episode{{Title: out.Title, Data: num}}
		return out, nil
	}

	out.Type = media.TVSeries
	out.Title = cmp.Or(det.Name, det.Title)
	out.Year = yearOf(det.FirstAirDate)
	out.Related = d.results(similar, media.TVSeries)

	var seasons []int
	for _, s := range det.Seasons {
		if s.SeasonNumber > 0 {
			seasons = append(seasons, s.SeasonNumber)
		}
	}
	out.Episodes, err = d.episodes(ctx, num, seasons)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// episodes fetches seasons in parallel. A season that fails is skipped.
func (d *DoFlix) episodes(ctx context.Context, showID string, seasons []int) ([]media.Episode, error) {
	var (
		mu  sync.Mutex
		eps []media.Episode
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seasonLimit)
	for _, n := range seasons {
		g.Go(func() error {
			var s tmdbSeason
			path := fmt.Sprintf("/api/3/tv/%s/season/%d", showID, n)
			if err := d.get(gctx, path, url.Values{"language": {"en"}}, &s); err != nil {
				if !IsRecoverable(err) {
					return err
				}
				d.log.Warn().Err(err).Int("season", n).Msg("skipping season")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range s.Episodes {
				eps = append(eps, media.Episode{
					Season:  n,
					Number:  e.EpisodeNumber,
					Title:   e.Name,
					Data:    fmt.Sprintf("%s|%d|%d", showID, n, e.EpisodeNumber),
					Poster:  e.StillPath,
					Summary: e.Overview,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(eps, func(a, b media.Episode) int {
		return cmp.Or(cmp.Compare(a.Season, b.Season), cmp.Compare(a.Number, b.Number))
	})
	return eps, nil
}

// LoadLinks resolves "<id>" for movies or "<id>|<season>|<episode>".
func (d *DoFlix) LoadLinks(ctx context.Context, data string) ([]media.StreamLink, error) {
	parts := strings.Split(data, "|")
	for _, p := range parts {
		if err := httputil.ValidateNumericID(p); err != nil {
			return nil, fmt.Errorf("invalid doflix episode data %q: %w", data, err)
		}
	}

	var found []doflixLink
	switch len(parts) {
	case 1:
		var resp struct {
			Links []doflixLink `json:"links"`
		}
		if err := d.get(ctx, "/api/3/movie/"+parts[0]+"/links", nil, &resp); err != nil {
			return nil, err
		}
		found = resp.Links
	case 3:
		var resp struct {
			Results []doflixLink `json:"results"`
		}
		path := fmt.Sprintf("/api/3/tv/%s/season/%s/episode/%s/links", parts[0], parts[1], parts[2])
		if err := d.get(ctx, path, nil, &resp); err != nil {
			return nil, err
		}
		found = resp.Results
	default:
		return nil, fmt.Errorf("invalid doflix episode data %q", data)
	}

	links := make([]media.StreamLink, 0, len(found))
	for _, l := range found {
		if l.URL == "" {
			continue
		}
		links = append(links, media.NewStreamLink(d.Name(), l.Host+" - "+l.Quality, l.URL,
			media.WithType(media.HLS),
			media.WithReferer(doflixReferer),
			media.WithQuality(qualityValue(l.Quality)),
		))
	}
	return links, nil
}

// qualityValue maps a quality label to a vertical resolution, 0 if unknown.
func qualityValue(label string) int {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "4K", "2160P":
		return 2160
	case "FHD", "1080P":
		return 1080
	case "HD", "720P":
		return 720
	case "SD", "480P":
		return 480
	case "360P":
		return 360
	default:
		return 0
	}
}

var _ Provider = (*DoFlix)(nil)
