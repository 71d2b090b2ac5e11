package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"cncverse/internal/config"
	"cncverse/internal/media"
)

func serveFixture(t *testing.T, name string) http.HandlerFunc {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", name, err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	}
}

func newTestMoviezwap(t *testing.T) (*Moviezwap, *httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	listing := serveFixture(t, "moviezwap_listing.html")
	mux := http.NewServeMux()
	mux.Handle("/category/telugu-movies", listing)
	mux.Handle("/category/telugu-movies/page/2", serveFixture(t, "moviezwap_empty.html"))
	mux.HandleFunc("/category/tamil-movies", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	mux.Handle("/movie/pushpa-2-2024.html", serveFixture(t, "moviezwap_detail.html"))
	mux.Handle("/movie/gone.html", serveFixture(t, "moviezwap_empty.html"))
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("s"))
		listing(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Moviezwap.BaseURL = srv.URL + "/"
	cfg.Moviezwap.Categories = []string{"telugu-movies", "tamil-movies"}
	m, err := NewMoviezwap(cfg)
	if err != nil {
		t.Fatalf("NewMoviezwap: %v", err)
	}
	return m, srv, &queries
}

func TestNewMoviezwapNoCategories(t *testing.T) {
	cfg := config.Default()
	cfg.Moviezwap.Categories = nil
	if _, err := NewMoviezwap(cfg); err == nil {
		t.Error("expected error for empty categories")
	}
}

func TestMoviezwapMainPage(t *testing.T) {
	m, srv, _ := newTestMoviezwap(t)

	sections, err := m.MainPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("MainPage: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected the failing category to be skipped, got %d sections", len(sections))
	}
	s := sections[0]
	if s.Name != "Telugu Movies" {
		t.Errorf("section name = %q, want 'Telugu Movies'", s.Name)
	}
	if !s.HasNext {
		t.Error("HasNext = false, want true for a non-empty page")
	}
	if len(s.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(s.Items))
	}
	if s.Items[0].ID != srv.URL+"/movie/pushpa-2-2024.html" {
		t.Errorf("item ID = %q", s.Items[0].ID)
	}

	sections, err = m.MainPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("MainPage(2): %v", err)
	}
	if len(sections) != 0 {
		t.Errorf("expected no sections on an empty page, got %d", len(sections))
	}
}

func TestMoviezwapSearch(t *testing.T) {
	m, _, queries := newTestMoviezwap(t)

	results, err := m.Search(context.Background(), "  pushpa 2 ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
	if len(*queries) != 1 || (*queries)[0] != "pushpa 2" {
		t.Errorf("search queries = %q, want [\"pushpa 2\"]", *queries)
	}

	results, err = m.Search(context.Background(), "   ")
	if err != nil || results != nil {
		t.Errorf("blank search = %v, %v; want nil, nil", results, err)
	}
}

func TestMoviezwapLoadAndLinks(t *testing.T) {
	m, srv, _ := newTestMoviezwap(t)
	page := srv.URL + "/movie/pushpa-2-2024.html"

	d, err := m.Load(context.Background(), page)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Title != "Pushpa 2 (2024)" || d.Type != media.Movie {
		t.Errorf("detail = %q %v", d.Title, d.Type)
	}
	if len(d.Episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(d.Episodes))
	}

	links, err := m.LoadLinks(context.Background(), d.Episodes[0].Data)
	if err != nil {
		t.Fatalf("LoadLinks: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(links))
	}
	if links[0].URL != srv.URL+"/dl/pushpa2.mp4" || links[0].Referer != srv.URL {
		t.Errorf("links[0] = %q referer %q", links[0].URL, links[0].Referer)
	}
}

func TestMoviezwapLoadErrors(t *testing.T) {
	m, srv, _ := newTestMoviezwap(t)

	tests := []struct {
		name        string
		id          string
		recoverable bool
	}{
		{"not a url", "pushpa", false},
		{"foreign host", "https://example.org/movie/pushpa.html", false},
		{"no title", srv.URL + "/movie/gone.html", true},
		{"missing page", srv.URL + "/movie/missing.html", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Load(context.Background(), tt.id)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsRecoverable(err); got != tt.recoverable {
				t.Errorf("IsRecoverable(%v) = %v, want %v", err, got, tt.recoverable)
			}
		})
	}

	if _, err := m.LoadLinks(context.Background(), "ftp://"+srv.Listener.Addr().String()+"/x"); err == nil {
		t.Error("expected error for non-http data")
	}
	if _, err := m.Load(context.Background(), srv.URL+"/movie/gone.html"); !errors.Is(err, ErrUnexpectedPayload) {
		t.Errorf("err = %v, want ErrUnexpectedPayload", err)
	}
}
