package provider

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cncverse/internal/httputil"
	"cncverse/internal/media"
)

// Selectors cover the WordPress themes the catalog has used.
const (
	cardSelector = "article.post, article.type-post, article[class*='post'], " +
		"div.post, div.post-item, div.item, div.movie-item, div.movie, " +
		"div.video-block, div.video-item, div[class*='movie'], " +
		"li.post, li.movie-item, li[class*='movie']"
	cardTitleSelector = "h2, h3, .title, .movie-title, .post-title, .entry-title"

	detailTitleSelector  = "h1, .entry-title, .movie-title, .post-title, .film-title"
	detailPosterSelector = ".entry-content img, .movie-poster img, .wp-post-image, .film-poster img"
	detailPlotSelector   = ".entry-content p, .synopsis, .description, .movie-description, p.storyline, .plot"
	detailYearSelector   = ".year, .release-date, .date, time, .release"

	linkSelector = "a[href*='.mp4'], a[href*='.m3u8'], " +
		"iframe[src], iframe[data-src], " +
		"video source[src], video[src], " +
		"div.player iframe, div[class*='player'] iframe, " +
		".video-player iframe, .embed-responsive iframe"
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// firstAttr returns the first non-empty attribute of s among names.
func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseCards extracts post cards from a listing or search page. Nested
// matches of the same post are collapsed by URL.
func parseCards(doc *goquery.Document, base, source string) []media.SearchResult {
	var results []media.SearchResult
	seen := make(map[string]bool)

	doc.Find(cardSelector).Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find(cardTitleSelector).First().Text())
		if title == "" {
			return
		}
		href := firstAttr(s.Find("a").First(), "href")
		if href == "" {
			return
		}
		href = httputil.ResolveURL(base, href)
		if seen[href] {
			return
		}
		seen[href] = true

		poster := firstAttr(s.Find("img").First(), "data-src", "data-lazy-src", "data-original", "src")
		if poster != "" {
			poster = httputil.ResolveURL(base, poster)
		}

		results = append(results, media.SearchResult{
			ID:       href,
			Title:    title,
			Type:     media.Movie,
			Year:     yearPattern.FindString(title),
			Poster:   poster,
			Provider: source,
		})
	})

	return results
}

// parseDetail extracts the movie page metadata.
func parseDetail(doc *goquery.Document, base, pageURL, source string) *media.Detail {
	title := strings.TrimSpace(doc.Find(detailTitleSelector).First().Text())
	if title == "" {
		return nil
	}

	poster := firstAttr(doc.Find(detailPosterSelector).First(), "data-src", "data-lazy-src", "src")
	if poster != "" {
		poster = httputil.ResolveURL(base, poster)
	}

	yearSel := doc.Find(detailYearSelector).First()
	yearText := strings.TrimSpace(yearSel.Text())
	if yearText == "" {
		yearText = firstAttr(doc.Find("time").First(), "datetime")
	}

	return &media.Detail{
		ID:       pageURL,
		Title:    title,
		Type:     media.Movie,
		Year:     yearPattern.FindString(yearText),
		Plot:     strings.TrimSpace(doc.Find(detailPlotSelector).First().Text()),
		Poster:   poster,
		Episodes: []media.Episode{{Title: title, Data: pageURL}},
		Provider: source,
	}
}

// parseLinks collects direct video files and embeds. Direct files are
// typed by extension; embeds are passed on as progressive links for an
// external extractor.
func parseLinks(doc *goquery.Document, base, source, name string) []media.StreamLink {
	var links []media.StreamLink
	seen := make(map[string]bool)

	doc.Find(linkSelector).Each(func(_ int, s *goquery.Selection) {
		raw := firstAttr(s, "href", "src", "data-src")
		if raw == "" {
			return
		}
		u := httputil.ResolveURL(base, raw)
		if seen[u] {
			return
		}
		seen[u] = true

		switch {
		case strings.Contains(u, ".mp4"):
			links = append(links, media.NewStreamLink(source, name+" MP4", u,
				media.WithType(media.Progressive), media.WithReferer(base)))
		case strings.Contains(u, ".m3u8"):
			links = append(links, media.NewStreamLink(source, name+" M3U8", u,
				media.WithType(media.HLS), media.WithReferer(base)))
		default:
			links = append(links, media.NewStreamLink(source, name+" embed", u,
				media.WithType(media.Progressive), media.WithReferer(base)))
		}
	})

	return links
}
