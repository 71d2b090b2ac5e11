package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Script patterns tried in order after the markup sources:
// 0: file: "https://.../master.m3u8" (jwplayer and clones)
// 1: src = 'https://.../video.mp4'
// 2: any bare media URL
var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:file|source|hls|dash)\s*[:=]\s*["']([^"']+\.(?:m3u8|mpd|mp4)(?:\?[^"']*)?)["']`),
	regexp.MustCompile(`(?i)\bsrc\s*[:=]\s*["']([^"']+\.(?:m3u8|mpd|mp4)(?:\?[^"']*)?)["']`),
	regexp.MustCompile(`(?i)(https?://[^\s"'<>\\]+\.(?:m3u8|mpd|mp4)(?:\?[^\s"'<>\\]*)?)`),
}

// findSources returns the media URLs referenced by an embed page, markup
// sources first, deduplicated in discovery order.
func findSources(doc *goquery.Document, html string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	doc.Find("video source[src], video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(src)
	})

	// Scripts often escape slashes inside JSON strings.
	text := strings.ReplaceAll(html, `\/`, `/`)
	for _, re := range scriptPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}
	return out
}
