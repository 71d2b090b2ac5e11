// Package playlist parses extended M3U playlists as published by IPTV
// aggregators, including the non-standard tags they use to carry HTTP
// headers and ClearKey DRM material for each channel.
//
// Tag lines fill a pending entry. The URL line that follows emits the entry
// and clears everything buffered, so metadata never leaks between channels.
package playlist

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"cncverse/internal/keys"
)

const (
	tagHeader     = "#EXTM3U"
	tagInfo       = "#EXTINF"
	tagHTTP       = "#EXTHTTP:"
	tagVLCOpt     = "#EXTVLCOPT"
	tagLicenseKey = "#KODIPROP:inputstream.adaptive.license_key="

	// DefaultTitle names entries whose #EXTINF line is missing.
	DefaultTitle = "Unknown Channel"
)

// Entry is one playable channel.
type Entry struct {
	Title      string            `json:"title"`
	Attributes map[string]string `json:"attributes,omitempty"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Cookie     string            `json:"cookie,omitempty"`
	Key        string            `json:"key,omitempty"`
	KeyID      string            `json:"key_id,omitempty"`
	LicenseURL string            `json:"license_url,omitempty"`
}

// Group returns the group-title attribute.
func (e Entry) Group() string { return e.Attributes["group-title"] }

// Logo returns the tvg-logo attribute.
func (e Entry) Logo() string { return e.Attributes["tvg-logo"] }

var (
	extInfPrefix = regexp.MustCompile(`(?i)#EXTINF:.?[0-9]+`)
	attribute    = regexp.MustCompile(`(\w[-\w]*)\s*=\s*(?:"([^"]*)"|([^\s,]+))`)

	vlcOptions = map[string]*regexp.Regexp{
		"http-user-agent": regexp.MustCompile(`(?i)http-user-agent=(.*)`),
		"http-referrer":   regexp.MustCompile(`(?i)http-referrer=(.*)`),
	}
)

// pending accumulates tag data until a URL line arrives. Nil pointers mean
// "not set", which matters for the adopt-if-unset rules.
type pending struct {
	title      *string
	attributes map[string]string
	headers    map[string]string
	userAgent  *string
	cookie     *string
	key        *string
	keyID      *string
	licenseURL *string
}

// IsExtended reports whether content starts like an extended playlist.
func IsExtended(content string) bool {
	s := strings.TrimSpace(content)
	return strings.HasPrefix(s, tagHeader) || strings.HasPrefix(s, tagInfo) || strings.HasPrefix(s, "#KODIPROP")
}

// ParseString parses playlist text.
func ParseString(content string) []Entry {
	entries, _ := Parse(strings.NewReader(content))
	return entries
}

// Parse reads a playlist. Only read errors are returned; malformed lines are
// skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var (
		entries []Entry
		p       pending
	)
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case line == "":
		case strings.HasPrefix(line, tagInfo):
			p.info(line)
		case strings.HasPrefix(line, tagHTTP):
			p.httpOptions(strings.TrimSpace(strings.TrimPrefix(line, tagHTTP)))
		case strings.HasPrefix(line, tagVLCOpt):
			p.vlcOption(line)
		case strings.HasPrefix(line, tagLicenseKey):
			p.licenseKey(strings.TrimSpace(strings.TrimPrefix(line, tagLicenseKey)))
		case strings.HasPrefix(line, "#"):
		default:
			full := line
			for i+1 < len(lines) && lines[i+1] != "" && !strings.HasPrefix(lines[i+1], "#") {
				i++
				full += lines[i]
			}
			entries = append(entries, p.emit(full))
			p = pending{}
		}
	}
	return entries, nil
}

func (p *pending) info(line string) {
	title := infoTitle(line)
	p.title = &title
	p.attributes = infoAttributes(line)

	if p.key == nil {
		if v, ok := firstAttr(p.attributes, "key", "drm-key"); ok {
			p.key = &v
		}
	}
	if p.keyID == nil {
		if v, ok := firstAttr(p.attributes, "keyid", "drm-keyid", "kid"); ok {
			p.keyID = &v
		}
	}
}

func (p *pending) httpOptions(payload string) {
	if !gjson.Valid(payload) {
		return
	}
	opts := gjson.Parse(payload)
	if !opts.IsObject() {
		return
	}
	if v := opts.Get("cookie"); v.Exists() {
		s := v.String()
		p.cookie = &s
	}
	if v := opts.Get("user-agent"); v.Exists() {
		s := v.String()
		p.userAgent = &s
	}
}

func (p *pending) vlcOption(line string) {
	if ua, ok := tagValue(line, "http-user-agent"); ok {
		p.userAgent = &ua
	}
	if ref, ok := tagValue(line, "http-referrer"); ok {
		p.setHeader("referrer", ref)
	}
}

func (p *pending) licenseKey(value string) {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		p.licenseURL = &value
		return
	}

	var parts []string
	switch {
	case strings.Contains(value, ":"):
		parts = strings.Split(value, ":")
	case strings.Contains(value, ","):
		parts = strings.Split(value, ",")
	default:
		parts = []string{value}
	}

	if kid := keys.HexToBase64URL(parts[0]); kid != "" {
		p.keyID = &kid
	}
	if len(parts) > 1 {
		if key := keys.HexToBase64URL(parts[1]); key != "" {
			p.key = &key
		}
	}
}

func (p *pending) setHeader(name, value string) {
	if p.headers == nil {
		p.headers = make(map[string]string)
	}
	p.headers[name] = value
}

// emit builds the entry for a URL line. Pipe parameters win over buffered
// tag values.
func (p *pending) emit(line string) Entry {
	params := pipeParams(line)

	if v, ok := params.get("referer"); ok {
		p.setHeader("referrer", v)
	}
	if v, ok := params.get("origin"); ok {
		p.setHeader("origin", v)
	}

	e := Entry{
		Title:      DefaultTitle,
		Attributes: p.attributes,
		URL:        stripQuotes(strings.SplitN(line, "|", 2)[0]),
		Headers:    p.headers,
		UserAgent:  pick(params, "user-agent", p.userAgent),
		Cookie:     pick(params, "cookie", p.cookie),
		Key:        pick(params, "key", p.key),
		KeyID:      pick(params, "keyid", p.keyID),
		LicenseURL: pick(params, "licenseUrl", p.licenseURL),
	}
	if p.title != nil {
		e.Title = *p.title
	}
	if e.Attributes == nil {
		e.Attributes = map[string]string{}
	}
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	return e
}

func pick(params pipeParameters, name string, buffered *string) string {
	if v, ok := params.get(name); ok {
		return v
	}
	if buffered != nil {
		return *buffered
	}
	return ""
}

type pipeParameters [][2]string

func (pp pipeParameters) get(name string) (string, bool) {
	for _, kv := range pp {
		if strings.EqualFold(kv[0], name) {
			return kv[1], true
		}
	}
	return "", false
}

// pipeParams parses the k=v&k=v list after the last "|" of a URL line.
// Lines without a pipe carry no parameters.
func pipeParams(line string) pipeParameters {
	idx := strings.LastIndex(line, "|")
	if idx < 0 {
		return nil
	}
	var pp pipeParameters
	for _, part := range strings.Split(stripQuotes(line[idx+1:]), "&") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		pp = append(pp, [2]string{strings.TrimSpace(k), stripQuotes(v)})
	}
	return pp
}

// lastUnquotedComma returns the index of the last comma outside double
// quotes, or -1.
func lastUnquotedComma(s string) int {
	idx, quoted := -1, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				idx = i
			}
		}
	}
	return idx
}

func infoTitle(line string) string {
	rest := strings.TrimSpace(extInfPrefix.ReplaceAllString(line, ""))
	if idx := lastUnquotedComma(rest); idx != -1 && idx < len(rest)-1 {
		return stripQuotes(rest[idx+1:])
	}
	parts := strings.Split(rest, ",")
	return stripQuotes(parts[len(parts)-1])
}

func infoAttributes(line string) map[string]string {
	rest := strings.TrimSpace(extInfPrefix.ReplaceAllString(line, ""))
	if idx := lastUnquotedComma(rest); idx != -1 {
		rest = strings.TrimSpace(rest[:idx])
	}

	attrs := make(map[string]string)
	for _, m := range attribute.FindAllStringSubmatchIndex(rest, -1) {
		name := rest[m[2]:m[3]]
		var value string
		switch {
		case m[4] >= 0:
			value = rest[m[4]:m[5]]
		case m[6] >= 0:
			value = rest[m[6]:m[7]]
		}
		attrs[name] = strings.TrimSpace(value)
	}
	return attrs
}

func firstAttr(attrs map[string]string, names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := attrs[n]; ok {
			return v, true
		}
	}
	return "", false
}

// tagValue returns everything after "name=" in a tag line, matched
// case-insensitively.
func tagValue(line, name string) (string, bool) {
	re, ok := vlcOptions[name]
	if !ok {
		re = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name) + `=(.*)`)
	}
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return stripQuotes(m[1]), true
}

func stripQuotes(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}
