package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"cncverse/internal/config"
	"cncverse/internal/httputil"
	"cncverse/internal/keys"
	"cncverse/internal/logging"
	"cncverse/internal/media"
	"cncverse/internal/sign"
	"cncverse/internal/symmetric"
)

// cinetvSections maps section ids to names. "1" is the recommendation feed,
// the others are topic ids.
var cinetvSections = []struct{ ID, Name string }{
	{"1", "Recommended"},
	{"4008", "Trending Now"},
	{"4464", "Most Popular"},
	{"4009", "Hottest International Films"},
	{"4134", "This Month: You Can't Miss"},
	{"4004", "Top Series This Week"},
}

// CineTv talks to a signed mobile API whose responses are AES encrypted.
type CineTv struct {
	base     string
	fetcher  *httputil.Fetcher
	deviceID string
	secret   string
	aes      keys.KeyMaterial
	salt     string
	signer   *sign.Signer
	now      func() time.Time
	log      zerolog.Logger

	mu    sync.Mutex
	token string
}

// NewCineTv decrypts the request-signing secret and prepares the client.
// Every CINETV_* secret is required.
func NewCineTv(cfg *config.Config, secrets *config.Secrets) (*CineTv, error) {
	err := secrets.Require(
		config.CineTvSecretKeyEncrypted, config.CineTvDESKey, config.CineTvDESIV,
		config.CineTvAESKey, config.CineTvAESIV, config.CineTvWSSecret, config.CineTvP2PSalt,
	)
	if err != nil {
		return nil, err
	}

	aesKey := keys.FromText(secrets.Get(config.CineTvAESKey), secrets.Get(config.CineTvAESIV), 0)
	switch len(aesKey.Key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: key length %d, want 16, 24 or 32", config.CineTvAESKey, len(aesKey.Key))
	}
	if len(aesKey.IV) != symmetric.BlockSize(symmetric.AES) {
		return nil, fmt.Errorf("%s: iv length %d, want %d", config.CineTvAESIV, len(aesKey.IV), symmetric.BlockSize(symmetric.AES))
	}

	ct, err := base64.StdEncoding.DecodeString(secrets.Get(config.CineTvSecretKeyEncrypted))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.CineTvSecretKeyEncrypted, err)
	}
	des := keys.FromText(secrets.Get(config.CineTvDESKey), secrets.Get(config.CineTvDESIV), 24)
	secret, err := symmetric.Decrypt(ct, des, symmetric.TripleDES)
	if err != nil {
		return nil, fmt.Errorf("decrypting signing secret: %w", err)
	}

	return &CineTv{
		base:     strings.TrimRight(cfg.CineTv.BaseURL, "/"),
		fetcher:  httputil.NewFetcher(httputil.Profile{Name: "cinetv", UserAgent: "okhttp/4.11.0"}),
		deviceID: cfg.DeviceID,
		secret:   string(secret),
		aes:      aesKey,
		salt:     secrets.Get(config.CineTvP2PSalt),
		signer:   sign.NewSigner(secrets.Get(config.CineTvWSSecret)),
		now:      time.Now,
		log:      logging.Module("cinetv"),
	}, nil
}

func (c *CineTv) Name() string { return "cinetv" }

// headers returns the fixed client fingerprint plus the signature for
// curTime.
func (c *CineTv) headers(curTime, token string) media.Headers {
	return media.Headers{
		{Name: "Accept-Encoding", Value: "identity"},
		{Name: "androidid", Value: c.deviceID},
		{Name: "app_id", Value: "cinetvin"},
		{Name: "app_language", Value: "en"},
		{Name: "channel_code", Value: "cinetvin_3001"},
		{Name: "Connection", Value: "Keep-Alive"},
		{Name: "cur_time", Value: curTime},
		{Name: "device_id", Value: c.deviceID},
		{Name: "en_al", Value: "0"},
		{Name: "gaid", Value: ""},
		{Name: "is_display", Value: "GMT+05:30"},
		{Name: "is_language", Value: "en"},
		{Name: "is_vvv", Value: "0"},
		{Name: "log-header", Value: "I am the log request header."},
		{Name: "mob_mfr", Value: "google"},
		{Name: "mobmodel", Value: "Pixel 5"},
		{Name: "package_name", Value: "com.cti.cinetvin"},
		{Name: "sign", Value: sign.RequestSign(c.secret, c.deviceID, curTime)},
		{Name: "sys_platform", Value: "2"},
		{Name: "sysrelease", Value: "13"},
		{Name: "token", Value: token},
		{Name: "version", Value: "30000"},
	}
}

// authToken returns the device token, registering the device on first use.
// An empty token is not cached so the next call retries.
func (c *CineTv) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	curTime := sign.Timestamp(c.now())
	form := url.Values{"invited_by": {""}, "is_install": {"1"}}
	body, err := c.fetcher.PostForm(ctx, c.base+"/api/public/init", form, c.headers(curTime, ""))
	if err != nil {
		return "", fmt.Errorf("registering device: %w", err)
	}

	text := bytes.TrimSpace(body)
	if len(text) > 0 && text[0] != '{' {
		if text, err = c.decrypt(text); err != nil {
			return "", fmt.Errorf("registering device: %w", err)
		}
	}
	token := gjson.GetBytes(text, "result.user_info.token").String()
	if token == "" {
		c.log.Warn().Msg("init returned no token")
		return "", nil
	}
	c.token = token
	c.log.Debug().Msg("device token cached")
	return token, nil
}

// decrypt opens a base64 AES response body.
func (c *CineTv) decrypt(body []byte) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: response is not base64: %w", ErrUnexpectedPayload, err)
	}
	plain, err := symmetric.Decrypt(ct, c.aes, symmetric.AES)
	if err != nil {
		return nil, fmt.Errorf("decrypting response: %w", err)
	}
	return plain, nil
}

// call posts a signed form and returns the decrypted JSON.
func (c *CineTv) call(ctx context.Context, path string, form url.Values, curTime string) ([]byte, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}
	if curTime == "" {
		curTime = sign.Timestamp(c.now())
	}
	body, err := c.fetcher.PostForm(ctx, c.base+path, form, c.headers(curTime, token))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	plain, err := c.decrypt(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.log.Debug().Str("path", path).Str("preview", logging.Preview(string(plain), 200)).Msg("response decrypted")
	return plain, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type vodItem struct {
	ID      flexString `json:"id"`
	Name    string     `json:"vod_name"`
	Pic     string     `json:"vod_pic"`
	Year    flexString `json:"vod_year"`
	TypePid int        `json:"type_pid"`
}

type vodCollection struct {
	Title      flexString `json:"title"`
	VodURL     string     `json:"vod_url"`
	DownURL    string     `json:"down_url"`
	Collection *int       `json:"collection"`
}

func (v vodCollection) number() int {
	if v.Collection == nil {
		return 1
	}
	return *v.Collection
}

type vodInfo struct {
	vodItem
	Blurb       string          `json:"vod_blurb"`
	Score       float64         `json:"vod_douban_score"`
	Tag         string          `json:"vod_tag"`
	Actor       string          `json:"vod_actor"`
	Collections []vodCollection `json:"vod_collection"`
}

func (c *CineTv) results(items []vodItem) []media.SearchResult {
	out := make([]media.SearchResult, 0, len(items))
	for _, v := range items {
		var t media.ContentType
		switch v.TypePid {
		case 1:
			t = media.Movie
		case 2:
			t = media.TVSeries
		default:
			continue
		}
		out = append(out, media.SearchResult{
			ID:       fmt.Sprintf("%s,%d", v.ID, v.TypePid),
			Title:    v.Name,
			Type:     t,
			Year:     string(v.Year),
			Poster:   v.Pic,
			Provider: c.Name(),
		})
	}
	return out
}

func (c *CineTv) section(ctx context.Context, id string, page int) ([]vodItem, error) {
	pn := strconv.Itoa(page)
	if id == "1" {
		body, err := c.call(ctx, "/api/search/recommend", url.Values{"pn": {pn}}, "")
		if err != nil {
			return nil, err
		}
		var resp struct {
			Result []vodItem `json:"result"`
		}
		if err := decodeJSON(body, &resp); err != nil {
			return nil, fmt.Errorf("recommend: %w", err)
		}
		return resp.Result, nil
	}

	body, err := c.call(ctx, "/api/topic/vod_list", url.Values{"topic_id": {id}, "pn": {pn}}, "")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			VodList []vodItem `json:"vod_list"`
		} `json:"result"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("topic %s: %w", id, err)
	}
	return resp.Result.VodList, nil
}

// MainPage fetches every section of a page concurrently.
func (c *CineTv) MainPage(ctx context.Context, page int) ([]media.Section, error) {
	page = max(page, 1)
	names := make([]string, len(cinetvSections))
	for i, s := range cinetvSections {
		names[i] = s.Name
	}
	return collectSections(ctx, c.log, names, func(ctx context.Context, i int) (media.Section, error) {
		items, err := c.section(ctx, cinetvSections[i].ID, page)
		if err != nil {
			return media.Section{}, err
		}
		return media.Section{Name: cinetvSections[i].Name, Items: c.results(items), HasNext: true}, nil
	})
}

// Search queries the catalog. A blank query returns nothing.
func (c *CineTv) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	body, err := c.call(ctx, "/api/search/result", url.Values{"kw": {query}, "pn": {"1"}}, "")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []vodItem `json:"result"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return c.results(resp.Result), nil
}

func (c *CineTv) info(ctx context.Context, vodID string) (*vodInfo, error) {
	if err := httputil.ValidateNumericID(vodID); err != nil {
		return nil, fmt.Errorf("invalid vod id: %w", err)
	}
	curTime := sign.Timestamp(c.now())
	form := url.Values{
		"sign":       {sign.PlaybackToken(c.salt, c.deviceID, vodID, curTime)},
		"vod_id":     {vodID},
		"cur_time":   {curTime},
		"audio_type": {"0"},
	}
	body, err := c.call(ctx, "/api/vod/info_new", form, curTime)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result *vodInfo `json:"result"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("vod info: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("vod %s: %w: no result", vodID, ErrUnexpectedPayload)
	}
	return resp.Result, nil
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load fetches playback info for an id of the form "vodID,typePid".
func (c *CineTv) Load(ctx context.Context, id string) (*media.Detail, error) {
	vodID, typePid, ok := strings.Cut(id, ",")
	if !ok {
		return nil, fmt.Errorf("invalid cinetv id %q", id)
	}

	info, err := c.info(ctx, vodID)
	if err != nil {
		return nil, err
	}

	d := &media.Detail{
		ID:       id,
		Title:    info.Name,
		Year:     string(info.Year),
		Plot:     info.Blurb,
		Poster:   info.Pic,
		Score:    info.Score,
		Tags:     splitTrim(info.Tag, "/"),
		Provider: c.Name(),
	}
	for _, a := range splitTrim(info.Actor, ",") {
		d.Actors = append(d.Actors, media.CastMember{Name: a})
	}

	switch typePid {
	case "1":
		d.Type = media.Movie
		n := 1
		if len(info.Collections) > 0 {
			n = info.Collections[0].number()
		}
		d.Episodes = []media.Episode{{Title: info.Name, Data: fmt.Sprintf("%s|%d", vodID, n)}}
	case "2":
		d.Type = media.TVSeries
		for _, col := range info.Collections {
			d.Episodes = append(d.Episodes, media.Episode{
				Season: 1,
				Number: col.number(),
				Title:  "Episode " + string(col.Title),
				Data:   fmt.Sprintf("%s|%d", vodID, col.number()),
			})
		}
	default:
		return nil, fmt.Errorf("cinetv id %q: unsupported type %q", id, typePid)
	}
	return d, nil
}

// LoadLinks signs the media URL of one collection.
func (c *CineTv) LoadLinks(ctx context.Context, data string) ([]media.StreamLink, error) {
	vodID, colStr, ok := strings.Cut(data, "|")
	if !ok {
		return nil, fmt.Errorf("invalid cinetv episode data %q", data)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return nil, fmt.Errorf("invalid collection %q: %w", colStr, err)
	}

	info, err := c.info(ctx, vodID)
	if err != nil {
		return nil, err
	}
	for _, v := range info.Collections {
		if v.number() != col {
			continue
		}
		raw := v.VodURL
		if raw == "" {
			raw = v.DownURL
		}
		if raw == "" {
			break
		}
		signed, err := c.signer.SignURL(raw)
		if err != nil {
			return nil, fmt.Errorf("signing media url: %w", err)
		}
		return []media.StreamLink{media.NewStreamLink(c.Name(), "CineTv", signed,
			media.WithType(media.Progressive),
			media.WithReferer(c.base),
		)}, nil
	}
	return nil, fmt.Errorf("vod %s: %w: collection %d has no media", vodID, ErrUnexpectedPayload, col)
}

var _ Provider = (*CineTv)(nil)
