package httputil

import (
	"path/filepath"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://cdn.sklive.test/streams/star-1.m3u8", false},
		{"http://103.21.4.9:8080/live/ch1/index.m3u8", false},
		{"HTTPS://cdn.test/a.mpd?token=x&e=1", false},
		{"rtmp://live.test/app/stream", true},
		{"javascript:alert(1)", true},
		{"data:text/html,<h1>Hi</h1>", true},
		{"/relative/path.m3u8", true},
		{"https://", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNumericID(t *testing.T) {
	for _, id := range []string{"693134", "0", "20251019"} {
		if err := ValidateNumericID(id); err != nil {
			t.Errorf("ValidateNumericID(%q) = %v", id, err)
		}
	}
	for _, id := range []string{"", "tt1160419", "123,1", "-1", "1.5", " 42"} {
		if err := ValidateNumericID(id); err == nil {
			t.Errorf("ValidateNumericID(%q) accepted", id)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"movie", "Dune Part Two.mkv", "Dune Part Two.mkv"},
		{"episode with colon", "Shogun S01E05: Broken to the Fist.mkv", "Shogun S01E05_ Broken to the Fist.mkv"},
		{"channel with pipe", "Star Sports 1 | HD.mkv", "Star Sports 1 _ HD.mkv"},
		{"whitespace runs", "India  vs\tAustralia.mkv", "India vs Australia.mkv"},
		{"trailing dot", "Live Cricket. ", "Live Cricket"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"backslash traversal", "..\\..\\windows\\system32", "____windows_system32"},
		{"null byte", "news\x00.mkv", "news.mkv"},
		{"quotes and stars", `"Best" *Of*?.mkv`, "_Best_ _Of__.mkv"},
		{"empty", "", "untitled"},
		{"dot", ".", "untitled"},
		{"dots", "..", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeDownloadPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		filename string
		want     string
	}{
		{"WC Final.mkv", "WC Final.mkv"},
		{"../../etc/passwd", "passwd"},
		{"$(whoami).mkv", "$(whoami).mkv"},
		{"..", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := SafeDownloadPath(dir, tt.filename)
			if err != nil {
				t.Fatalf("SafeDownloadPath(%q) error = %v", tt.filename, err)
			}
			if want := filepath.Join(dir, tt.want); got != want {
				t.Errorf("SafeDownloadPath(%q) = %q, want %q", tt.filename, got, want)
			}
		})
	}

	if _, err := SafeDownloadPath(" ", "a.mkv"); err == nil {
		t.Error("empty directory accepted")
	}
}

func TestBuildURL(t *testing.T) {
	got := BuildURL("https://www.moviezwap.test/", "category", "telugu movies")
	if got != "https://www.moviezwap.test/category/telugu%20movies" {
		t.Errorf("BuildURL = %q", got)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://site.test/movie/x/", "/files/a.mp4", "https://site.test/files/a.mp4"},
		{"https://site.test/movie/x/", "b.m3u8", "https://site.test/movie/x/b.m3u8"},
		{"https://site.test/", "//cdn.test/embed/1", "https://cdn.test/embed/1"},
		{"https://site.test/", "https://other.test/v.mp4", "https://other.test/v.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := ResolveURL(tt.base, tt.ref); got != tt.want {
				t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
			}
		})
	}
}
