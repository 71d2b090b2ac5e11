package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"cncverse/internal/config"
	"cncverse/internal/httputil"
	"cncverse/internal/logging"
	"cncverse/internal/media"
)

// Moviezwap scrapes a WordPress movie catalog.
type Moviezwap struct {
	base       string
	categories []string
	fetcher    *httputil.Fetcher
	log        zerolog.Logger
}

// NewMoviezwap creates the provider. It needs no secrets.
func NewMoviezwap(cfg *config.Config) (*Moviezwap, error) {
	if len(cfg.Moviezwap.Categories) == 0 {
		return nil, fmt.Errorf("moviezwap.categories is empty")
	}
	return &Moviezwap{
		base:       strings.TrimRight(cfg.Moviezwap.BaseURL, "/"),
		categories: cfg.Moviezwap.Categories,
		fetcher:    httputil.NewFetcher(httputil.Profile{Name: "moviezwap"}),
		log:        logging.Module("moviezwap"),
	}, nil
}

func (m *Moviezwap) Name() string { return "moviezwap" }

// fetchDocument retrieves a URL and parses it as HTML.
func (m *Moviezwap) fetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, err := m.fetcher.Get(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// categoryName turns "telugu-movies" into "Telugu Movies".
func categoryName(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// MainPage fetches one page of every configured category.
func (m *Moviezwap) MainPage(ctx context.Context, page int) ([]media.Section, error) {
	page = max(page, 1)
	names := make([]string, len(m.categories))
	for i, c := range m.categories {
		names[i] = categoryName(c)
	}
	return collectSections(ctx, m.log, names, func(ctx context.Context, i int) (media.Section, error) {
		u := httputil.BuildURL(m.base, "category", m.categories[i])
		if page > 1 {
			u = httputil.BuildURL(u, "page", strconv.Itoa(page))
		}
		doc, err := m.fetchDocument(ctx, u)
		if err != nil {
			return media.Section{}, fmt.Errorf("category %s: %w", m.categories[i], err)
		}
		items := parseCards(doc, m.base, m.Name())
		return media.Section{Name: names[i], Items: items, HasNext: len(items) > 0}, nil
	})
}

// Search uses the site search.
func (m *Moviezwap) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	doc, err := m.fetchDocument(ctx, m.base+"/?"+url.Values{"s": {query}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}
	return parseCards(doc, m.base, m.Name()), nil
}

// pageURL checks that an id points at the catalog host.
func (m *Moviezwap) pageURL(id string) (string, error) {
	if err := httputil.ValidateURL(id); err != nil {
		return "", err
	}
	u, _ := url.Parse(id)
	b, _ := url.Parse(m.base)
	if b != nil && !strings.EqualFold(u.Host, b.Host) {
		return "", fmt.Errorf("url %q is not on %s", id, b.Host)
	}
	return id, nil
}

// Load scrapes a movie page.
func (m *Moviezwap) Load(ctx context.Context, id string) (*media.Detail, error) {
	u, err := m.pageURL(id)
	if err != nil {
		return nil, err
	}
	doc, err := m.fetchDocument(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", u, err)
	}
	d := parseDetail(doc, m.base, u, m.Name())
	if d == nil {
		return nil, fmt.Errorf("%s: %w: no title", u, ErrUnexpectedPayload)
	}
	return d, nil
}

// LoadLinks scrapes the playable links of a movie page.
func (m *Moviezwap) LoadLinks(ctx context.Context, data string) ([]media.StreamLink, error) {
	u, err := m.pageURL(data)
	if err != nil {
		return nil, err
	}
	doc, err := m.fetchDocument(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("loading links %s: %w", u, err)
	}
	return parseLinks(doc, m.base, m.Name(), "Moviezwap"), nil
}

var _ Provider = (*Moviezwap)(nil)
