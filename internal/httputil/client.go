// Package httputil provides a security-hardened HTTP client with per-provider
// header profiles, plus input sanitization utilities.
package httputil

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"cncverse/internal/media"
)

// DefaultUserAgent is sent when a profile does not name its own.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

// maxBody caps decoded response bodies.
const maxBody = 10 * 1024 * 1024

// ErrUpstreamUnavailable marks transport failures and non-2xx responses.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrBodyTooLarge is returned instead of a truncated body.
var ErrBodyTooLarge = errors.New("response too large")

// UpstreamError describes a failed upstream request.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamUnavailable}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Proxy:               http.ProxyFromEnvironment,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			DisableCompression:  true,
			MaxIdleConnsPerHost: 5,
		},
	}
}

// Profile is the header set a provider sends with every request.
type Profile struct {
	Name      string
	UserAgent string
	Headers   media.Headers
}

// profileTransport stamps profile headers onto outgoing requests, replacing
// any header of the same name.
type profileTransport struct {
	base    http.RoundTripper
	profile Profile
}

func (t *profileTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	ua := t.profile.UserAgent
	if ua == "" && r.Header.Get("User-Agent") == "" {
		ua = DefaultUserAgent
	}
	if ua != "" {
		r.Header.Set("User-Agent", ua)
	}
	for _, h := range t.profile.Headers {
		r.Header.Set(h.Name, h.Value)
	}
	if r.Header.Get("Accept-Encoding") == "" {
		r.Header.Set("Accept-Encoding", "gzip, br")
	}
	return t.base.RoundTrip(r)
}

// Fetcher issues requests through a profile.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher on a fresh hardened client.
func NewFetcher(p Profile) *Fetcher {
	return NewFetcherWithClient(NewClient(), p)
}

// NewFetcherWithClient wraps an existing client's transport with the profile.
// The client itself is not modified.
func NewFetcherWithClient(c *http.Client, p Profile) *Fetcher {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c
	wrapped.Transport = &profileTransport{base: base, profile: p}
	return &Fetcher{client: &wrapped}
}

// Get performs a GET request.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers media.Headers) ([]byte, error) {
	return f.do(ctx, http.MethodGet, rawURL, nil, "", headers)
}

// PostForm performs a POST with a form-encoded body.
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values, headers media.Headers) ([]byte, error) {
	return f.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", headers)
}

// PostJSON performs a POST with v encoded as the JSON body.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, v any, headers media.Headers) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return f.do(ctx, http.MethodPost, rawURL, bytes.NewReader(payload), "application/json", headers)
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, headers media.Headers) ([]byte, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	r, err := decodeBody(resp)
	if err != nil {
		return nil, &UpstreamError{URL: rawURL, Err: err}
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBody+1))
	if err != nil {
		return nil, &UpstreamError{URL: rawURL, Err: fmt.Errorf("reading response: %w", err)}
	}
	if len(data) > maxBody {
		return nil, &UpstreamError{URL: rawURL, Err: fmt.Errorf("%w: response exceeds %d bytes", ErrBodyTooLarge, maxBody)}
	}
	return data, nil
}

// decodeBody unwraps the Content-Encoding of a response.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		return zr, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}
