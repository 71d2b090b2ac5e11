package httputil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var numericIDPattern = regexp.MustCompile(`^[0-9]+$`)

// ValidateURL checks that a URL is absolute http(s) with a host. Feeds
// publish both schemes.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateNumericID checks an upstream catalog id such as a vod or TMDB id.
func ValidateNumericID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !numericIDPattern.MatchString(id) {
		return fmt.Errorf("expected a numeric id, got %q", id)
	}
	return nil
}

// filenameReplacer maps characters that some filesystems reject.
var filenameReplacer = strings.NewReplacer(
	"..", "_",
	"\\", "_",
	"\x00", "",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeFilename turns a title into a single safe path element. Directory
// components are dropped, runs of whitespace collapse to one space, and
// leading or trailing dots and spaces are trimmed.
func SanitizeFilename(name string) string {
	name = filenameReplacer.Replace(filepath.Base(name))
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " .")
	if name == "" {
		return "untitled"
	}
	return name
}

// SafeDownloadPath joins the sanitized filename onto dir and checks that the
// result stays inside dir.
func SafeDownloadPath(dir, filename string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("download directory is empty")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	full := filepath.Join(absDir, SanitizeFilename(filename))
	if !strings.HasPrefix(full, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", full, absDir)
	}
	return full, nil
}

// BuildURL appends path-escaped segments to base.
func BuildURL(base string, pathSegments ...string) string {
	u := strings.TrimRight(base, "/")
	for _, seg := range pathSegments {
		u += "/" + url.PathEscape(seg)
	}
	return u
}

// ResolveURL resolves ref against base. Unparseable input is returned as is.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
