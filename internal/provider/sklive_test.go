package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cncverse/internal/config"
	"cncverse/internal/feed"
	"cncverse/internal/httputil"
)

func visible(v bool) *bool { return &v }

func newTestFeed(t *testing.T, handler http.Handler) *skliveFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.LiveEvents.FeedBaseURL = srv.URL
	cfg.LiveEvents.RemoteConfig = false
	f, err := newSKLiveFeed(cfg, feedSecrets(nil))
	if err != nil {
		t.Fatalf("newSKLiveFeed: %v", err)
	}
	return f
}

func TestNewSKLiveFeedMissingSecret(t *testing.T) {
	_, err := newSKLiveFeed(config.Default(), config.NewSecrets(nil))
	if !errors.Is(err, config.ErrMissingSecret) {
		t.Fatalf("err = %v, want ErrMissingSecret", err)
	}
	var mse *config.MissingSecretError
	if !errors.As(err, &mse) || len(mse.Names) != 2 {
		t.Errorf("missing names = %v, want both key and iv", mse)
	}
}

func TestNewSKLiveFeedBadKey(t *testing.T) {
	secrets := config.NewSecrets(map[string]string{config.SKLiveKey: "zz", config.SKLiveIV: "00"})
	if _, err := newSKLiveFeed(config.Default(), secrets); err == nil {
		t.Error("expected error for non-hex key")
	}
}

func TestSKLiveCategories(t *testing.T) {
	plain := wrapFeed(t, "cat",
		categoryRecord{Name: "Sports", API: "https://lists.test/sports.m3u", Visible: visible(true)},
		categoryRecord{Name: "Hidden", API: "https://lists.test/hidden.m3u", Visible: visible(false)},
		categoryRecord{Name: "News", API: "https://lists.test/news.m3u", Logo: "https://img.test/news.png"},
	)
	// A wrapper without the field and one with a non-string value are skipped.
	plain = plain[:len(plain)-1] + `,{"other":"x"},{"cat":42},{"cat":"not json"}]`

	blob := encodeFeed(t, plain)
	f := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/categories.txt" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, blob+"\n")
	}))

	cats, err := f.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 visible categories, got %d: %+v", len(cats), cats)
	}
	if cats[0].Name != "Sports" || cats[0].Playlist != "https://lists.test/sports.m3u" {
		t.Errorf("cats[0] = %+v", cats[0])
	}
	if cats[1].Name != "News" || cats[1].Logo != "https://img.test/news.png" {
		t.Errorf("cats[1] = %+v", cats[1])
	}
}

func TestSKLiveEvents(t *testing.T) {
	plain := wrapFeed(t, "event",
		eventRecord{
			Category: "Cricket", EventName: "World Cup Final", EventLogo: "https://img.test/wc.png",
			TeamAName: "India", TeamBName: "Australia",
			Date: "19/11/2023", Time: "08:30", EndDate: "19/11/2023", EndTime: "17:00:00",
			Links: "wc-final.txt", LinkNames: []string{"HD", "SD"}, Visible: visible(true),
		},
		eventRecord{EventName: "Hidden", Visible: visible(false)},
		eventRecord{EventName: "No flag"},
		eventRecord{Links: "mystery.v2.txt", Visible: visible(true)},
	)

	blob := encodeFeed(t, plain)
	f := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, blob)
	}))

	events, err := f.Events(context.Background())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 visible events, got %d", len(events))
	}

	e := events[0]
	if e.ID != 1 || e.Title != "World Cup Final" || e.Slug != "wc-final" {
		t.Errorf("event = %d %q %q", e.ID, e.Title, e.Slug)
	}
	wantStart := time.Date(2023, 11, 19, 8, 30, 0, 0, time.UTC)
	if !e.Info.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", e.Info.Start, wantStart)
	}
	if e.Info.End.IsZero() || e.Info.Category != "Cricket" || e.Info.TeamB != "Australia" {
		t.Errorf("Info = %+v", e.Info)
	}
	if len(e.Formats) != 2 {
		t.Errorf("Formats = %v", e.Formats)
	}

	u := events[1]
	if u.ID != 4 || u.Title != "Unknown Event" || u.Slug != "mystery.v2" {
		t.Errorf("untitled event = %d %q %q", u.ID, u.Title, u.Slug)
	}
	if !u.Info.Start.IsZero() {
		t.Errorf("Start = %v, want zero", u.Info.Start)
	}
}

func TestSKLiveFeedErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want error
	}{
		{"upstream down", "", http.StatusServiceUnavailable, httputil.ErrUpstreamUnavailable},
		{"empty body", "  \n", http.StatusOK, ErrUnexpectedPayload},
		{"garbage", "!!!not-a-feed!!!", http.StatusOK, feed.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				io.WriteString(w, tt.body)
			}))
			_, err := f.Events(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !IsRecoverable(err) {
				t.Errorf("IsRecoverable(%v) = false", err)
			}
		})
	}

	t.Run("not a list", func(t *testing.T) {
		blob := encodeFeed(t, `{"event":"x"}`)
		f := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, blob)
		}))
		if _, err := f.Events(context.Background()); !errors.Is(err, ErrUnexpectedPayload) {
			t.Errorf("err = %v, want ErrUnexpectedPayload", err)
		}
	})
}

func TestSlugOf(t *testing.T) {
	tests := []struct{ in, want string }{
		{"match.txt", "match"},
		{"a.b.txt", "a.b"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := slugOf(tt.in); got != tt.want {
			t.Errorf("slugOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRemoteConfigAPIURL(t *testing.T) {
	var req fetchRequest
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&req)
		io.WriteString(w, `{"entries":{"api_url":"https://feeds.test/"},"state":"UPDATE"}`)
	}))
	defer srv.Close()

	rc := &remoteConfig{
		fetcher:  httputil.NewFetcherWithClient(srv.Client(), httputil.Profile{Name: "firebase"}),
		endpoint: srv.URL,
		apiKey:   "api-key",
		appID:    "1:234:android:abc",
		newID:    func() string { return "instance" },
	}
	u, err := rc.APIURL(context.Background())
	if err != nil {
		t.Fatalf("APIURL: %v", err)
	}
	if u != "https://feeds.test" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", u)
	}
	if got.Get("X-Goog-Api-Key") != "api-key" || got.Get("X-Android-Package") != sktechPackage {
		t.Errorf("headers = %v", got)
	}
	if req.AppInstanceID != "instance" || req.AppID != "1:234:android:abc" || req.PackageName != sktechPackage {
		t.Errorf("request = %+v", req)
	}
}

func TestRemoteConfigMissingEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"state":"NO_TEMPLATE"}`)
	}))
	defer srv.Close()

	rc := &remoteConfig{
		fetcher:  httputil.NewFetcherWithClient(srv.Client(), httputil.Profile{}),
		endpoint: srv.URL,
		newID:    func() string { return "x" },
	}
	if _, err := rc.APIURL(context.Background()); !errors.Is(err, ErrUnexpectedPayload) {
		t.Errorf("err = %v, want ErrUnexpectedPayload", err)
	}
}

func TestSKLiveBaseURLFromRemoteConfig(t *testing.T) {
	var feedHits atomic.Int32
	empty := encodeFeed(t, "[]")
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feedHits.Add(1)
		io.WriteString(w, empty)
	}))
	defer feedSrv.Close()

	var rcHits atomic.Int32
	rcBody := mustJSON(t, map[string]any{"entries": map[string]string{"api_url": feedSrv.URL + "/"}})
	rcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rcHits.Add(1)
		io.WriteString(w, rcBody)
	}))
	defer rcSrv.Close()

	cfg := config.Default()
	cfg.LiveEvents.FeedBaseURL = "http://127.0.0.1:1"
	f, err := newSKLiveFeed(cfg, feedSecrets(nil))
	if err != nil {
		t.Fatalf("newSKLiveFeed: %v", err)
	}
	f.remote = &remoteConfig{
		fetcher:  httputil.NewFetcherWithClient(rcSrv.Client(), httputil.Profile{}),
		endpoint: rcSrv.URL,
		newID:    func() string { return "x" },
	}

	for range 2 {
		if _, err := f.Events(context.Background()); err != nil {
			t.Fatalf("Events: %v", err)
		}
	}
	if rcHits.Load() != 1 {
		t.Errorf("remote config hit %d times, want 1", rcHits.Load())
	}
	if feedHits.Load() != 2 {
		t.Errorf("feed hit %d times, want 2", feedHits.Load())
	}
}

func TestSKLiveBaseURLFallback(t *testing.T) {
	empty := encodeFeed(t, "[]")
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, empty)
	}))
	defer feedSrv.Close()
	rcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"entries":{"api_url":"not a url"}}`)
	}))
	defer rcSrv.Close()

	cfg := config.Default()
	cfg.LiveEvents.FeedBaseURL = feedSrv.URL
	f, err := newSKLiveFeed(cfg, feedSecrets(nil))
	if err != nil {
		t.Fatalf("newSKLiveFeed: %v", err)
	}
	f.remote = &remoteConfig{
		fetcher:  httputil.NewFetcherWithClient(rcSrv.Client(), httputil.Profile{}),
		endpoint: rcSrv.URL,
		newID:    func() string { return "x" },
	}

	if got := f.baseURL(context.Background()); got != feedSrv.URL {
		t.Errorf("baseURL = %q, want configured %q", got, feedSrv.URL)
	}
}
