// Package probe inspects HLS playlists to report the renditions behind a
// stream link.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
	"golang.org/x/sync/errgroup"

	"cncverse/internal/httputil"
	"cncverse/internal/logging"
	"cncverse/internal/media"
)

// ErrNotHLS is returned for links that are not HLS playlists.
var ErrNotHLS = errors.New("not an HLS link")

// Variant is one rendition of an HLS stream.
type Variant struct {
	URL        string `json:"url"`
	Bandwidth  uint32 `json:"bandwidth,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
	Quality    int    `json:"quality,omitempty"`
}

// Variants fetches link with its headers and lists the renditions. A master
// playlist yields its variants sorted by bandwidth, highest first. A media
// playlist yields a single variant for the link itself.
func Variants(ctx context.Context, f *httputil.Fetcher, link media.StreamLink) ([]Variant, error) {
	if link.Type != media.HLS {
		return nil, fmt.Errorf("%w: %s", ErrNotHLS, link.URL)
	}
	body, err := f.Get(ctx, link.URL, media.HeadersFromMap(link.HeaderMap()))
	if err != nil {
		return nil, err
	}

	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, fmt.Errorf("decoding playlist %s: %w", link.URL, err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := pl.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected master playlist type %T", pl)
		}
		var out []Variant
		for _, v := range master.Variants {
			if v == nil || v.Iframe || v.URI == "" {
				continue
			}
			out = append(out, Variant{
				URL:        httputil.ResolveURL(link.URL, v.URI),
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
				Quality:    Quality(v.Resolution),
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Bandwidth > out[j].Bandwidth })
		return out, nil
	case m3u8.MEDIA:
		return []Variant{{URL: link.URL, Quality: link.Quality}}, nil
	default:
		return nil, fmt.Errorf("decoding playlist %s: unknown playlist type", link.URL)
	}
}

// Quality returns the height of a WIDTHxHEIGHT resolution, or 0.
func Quality(resolution string) int {
	_, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(resolution)), "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Annotate probes HLS links that carry no quality and fills it in from the
// best variant, running at most limit probes at a time. Probe failures leave
// the link unchanged.
func Annotate(ctx context.Context, f *httputil.Fetcher, links []media.StreamLink, limit int) []media.StreamLink {
	log := logging.Module("probe")
	out := make([]media.StreamLink, len(links))
	copy(out, links)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range out {
		if out[i].Type != media.HLS || out[i].Quality != 0 {
			continue
		}
		g.Go(func() error {
			vs, err := Variants(gctx, f, out[i])
			if err != nil {
				log.Debug().Err(err).Str("link", out[i].Name).Msg("probe failed")
				return nil
			}
			for _, v := range vs {
				if v.Quality > out[i].Quality {
					out[i].Quality = v.Quality
				}
			}
			return nil
		})
	}
	g.Wait()
	return out
}
