package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cncverse/internal/httputil"
	"cncverse/internal/media"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="avc1.640028,mp4a.40.2"
https://cdn.test/hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
mid/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
seg0.ts
#EXTINF:6.000,
seg1.ts
#EXT-X-ENDLIST
`

func newProbeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/live/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://site.test/" || r.Header.Get("X-Token") != "abc" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		io.WriteString(w, masterPlaylist)
	})
	mux.HandleFunc("/live/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, mediaPlaylist)
	})
	mux.HandleFunc("/live/broken.m3u8", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not a playlist</html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestVariantsMaster(t *testing.T) {
	srv := newProbeServer(t)
	f := httputil.NewFetcher(httputil.Profile{Name: "test"})
	link := media.NewStreamLink("test", "Main", srv.URL+"/live/master.m3u8",
		media.WithReferer("https://site.test/"), media.WithHeader("X-Token", "abc"))

	vs, err := Variants(context.Background(), f, link)
	if err != nil {
		t.Fatalf("Variants: %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(vs))
	}
	want := []struct {
		url     string
		quality int
	}{
		{"https://cdn.test/hd/index.m3u8", 1080},
		{srv.URL + "/live/mid/index.m3u8", 720},
		{srv.URL + "/live/low/index.m3u8", 360},
	}
	for i, w := range want {
		if vs[i].URL != w.url || vs[i].Quality != w.quality {
			t.Errorf("variant[%d] = %+v, want url %s quality %d", i, vs[i], w.url, w.quality)
		}
	}
	if vs[0].Bandwidth != 5000000 {
		t.Errorf("bandwidth = %d", vs[0].Bandwidth)
	}
}

func TestVariantsHeadersRequired(t *testing.T) {
	srv := newProbeServer(t)
	f := httputil.NewFetcher(httputil.Profile{})
	link := media.NewStreamLink("test", "Main", srv.URL+"/live/master.m3u8")

	_, err := Variants(context.Background(), f, link)
	var ue *httputil.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusForbidden {
		t.Errorf("err = %v, want 403 upstream error", err)
	}
}

func TestVariantsMedia(t *testing.T) {
	srv := newProbeServer(t)
	f := httputil.NewFetcher(httputil.Profile{})
	link := media.NewStreamLink("test", "Main", srv.URL+"/live/media.m3u8", media.WithQuality(480))

	vs, err := Variants(context.Background(), f, link)
	if err != nil {
		t.Fatalf("Variants: %v", err)
	}
	if len(vs) != 1 || vs[0].URL != link.URL || vs[0].Quality != 480 {
		t.Errorf("variants = %+v", vs)
	}
}

func TestVariantsErrors(t *testing.T) {
	srv := newProbeServer(t)
	f := httputil.NewFetcher(httputil.Profile{})

	if _, err := Variants(context.Background(), f, media.NewStreamLink("t", "x", srv.URL+"/movie.mp4")); !errors.Is(err, ErrNotHLS) {
		t.Errorf("mp4: err = %v, want ErrNotHLS", err)
	}
	if _, err := Variants(context.Background(), f, media.NewStreamLink("t", "x", srv.URL+"/live/broken.m3u8")); err == nil {
		t.Error("broken playlist: expected error")
	}
}

func TestQuality(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1920x1080", 1080},
		{"1280X720", 720},
		{" 640x360 ", 360},
		{"", 0},
		{"720p", 0},
		{"axb", 0},
	}
	for _, tt := range tests {
		if got := Quality(tt.in); got != tt.want {
			t.Errorf("Quality(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAnnotate(t *testing.T) {
	srv := newProbeServer(t)
	f := httputil.NewFetcher(httputil.Profile{})
	links := []media.StreamLink{
		media.NewStreamLink("t", "master", srv.URL+"/live/master.m3u8",
			media.WithReferer("https://site.test/"), media.WithHeader("X-Token", "abc")),
		media.NewStreamLink("t", "known", srv.URL+"/live/master.m3u8", media.WithQuality(540)),
		media.NewStreamLink("t", "broken", srv.URL+"/live/broken.m3u8"),
		media.NewStreamLink("t", "file", srv.URL+"/movie.mp4"),
	}

	out := Annotate(context.Background(), f, links, 2)
	if out[0].Quality != 1080 {
		t.Errorf("master quality = %d, want 1080", out[0].Quality)
	}
	if out[1].Quality != 540 || out[2].Quality != 0 || out[3].Quality != 0 {
		t.Errorf("unexpected qualities: %d %d %d", out[1].Quality, out[2].Quality, out[3].Quality)
	}
	if links[0].Quality != 0 {
		t.Error("Annotate modified its input")
	}
}
