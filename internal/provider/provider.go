// Package provider defines the interface for media content providers
// and their implementations.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cncverse/internal/config"
	"cncverse/internal/feed"
	"cncverse/internal/httputil"
	"cncverse/internal/logging"
	"cncverse/internal/media"
	"cncverse/internal/symmetric"
)

// Provider is the interface that content providers must implement.
type Provider interface {
	// Name is the registry name of the provider.
	Name() string

	// MainPage returns every catalog section for a page, starting at 1.
	MainPage(ctx context.Context, page int) ([]media.Section, error)

	// Search returns matching results for a query.
	Search(ctx context.Context, query string) ([]media.SearchResult, error)

	// Load returns detailed metadata and episodes for a result ID.
	Load(ctx context.Context, id string) (*media.Detail, error)

	// LoadLinks resolves the playable streams for an episode's data.
	LoadLinks(ctx context.Context, data string) ([]media.StreamLink, error)
}

var (
	// ErrMalformedEntry is matched by every MalformedEntryError.
	ErrMalformedEntry = errors.New("malformed feed entry")

	// ErrUnexpectedPayload marks upstream responses that do not have the
	// expected shape.
	ErrUnexpectedPayload = errors.New("unexpected upstream payload")

	// ErrUnknownProvider is returned by New for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")
)

// MalformedEntryError reports a single feed entry that could not be parsed.
// The rest of the feed is still usable.
type MalformedEntryError struct {
	Feed  string
	Index int
	Err   error
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("%s entry %d: %v", e.Feed, e.Index, e.Err)
}

func (e *MalformedEntryError) Unwrap() []error { return []error{ErrMalformedEntry, e.Err} }

// IsRecoverable reports whether err means "no data right now" rather than a
// bug or a configuration problem.
func IsRecoverable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, config.ErrMissingSecret) {
		return false
	}
	return errors.Is(err, feed.ErrDecode) ||
		errors.Is(err, symmetric.ErrCipher) ||
		errors.Is(err, httputil.ErrUpstreamUnavailable) ||
		errors.Is(err, ErrMalformedEntry) ||
		errors.Is(err, ErrUnexpectedPayload)
}

// New returns the named provider wrapped in Guard. Missing secrets are
// reported here so a misconfigured provider fails at startup.
func New(name string, cfg *config.Config, secrets *config.Secrets) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(name) {
	case "iptv":
		p, err = NewIPTV(cfg, secrets)
	case "live":
		p, err = NewLiveEvents(cfg, secrets)
	case "cinetv":
		p, err = NewCineTv(cfg, secrets)
	case "cricify":
		p, err = NewCricify(cfg, secrets)
	case "doflix":
		p, err = NewDoFlix(cfg, secrets)
	case "moviezwap":
		p, err = NewMoviezwap(cfg)
	default:
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownProvider, name, strings.Join(config.Providers, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", name, err)
	}
	return Guard(p), nil
}

// guarded converts recoverable failures into empty results.
type guarded struct {
	inner Provider
	log   zerolog.Logger
}

// Guard wraps p so recoverable errors are logged and returned as empty
// results with a nil error. Other errors propagate unchanged.
func Guard(p Provider) Provider {
	if g, ok := p.(*guarded); ok {
		return g
	}
	return &guarded{inner: p, log: logging.Module("provider").With().Str("provider", p.Name()).Logger()}
}

func (g *guarded) Name() string { return g.inner.Name() }

func (g *guarded) swallow(op string, err error) error {
	if !IsRecoverable(err) {
		return err
	}
	g.log.Warn().Err(err).Str("op", op).Msg("returning empty result")
	return nil
}

func (g *guarded) MainPage(ctx context.Context, page int) ([]media.Section, error) {
	sections, err := g.inner.MainPage(ctx, page)
	if err != nil {
		return nil, g.swallow("main page", err)
	}
	return sections, nil
}

func (g *guarded) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	results, err := g.inner.Search(ctx, query)
	if err != nil {
		return nil, g.swallow("search", err)
	}
	return results, nil
}

func (g *guarded) Load(ctx context.Context, id string) (*media.Detail, error) {
	detail, err := g.inner.Load(ctx, id)
	if err != nil {
		return nil, g.swallow("load", err)
	}
	return detail, nil
}

func (g *guarded) LoadLinks(ctx context.Context, data string) ([]media.StreamLink, error) {
	links, err := g.inner.LoadLinks(ctx, data)
	if err != nil {
		return nil, g.swallow("load links", err)
	}
	return links, nil
}

// decodeJSON unmarshals an upstream payload, marking failures as
// ErrUnexpectedPayload.
func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedPayload, err)
	}
	return nil
}

// sectionLimit bounds concurrent section fetches.
const sectionLimit = 4

// collectSections fetches the named sections concurrently and returns those
// that succeeded, in order. A failed section is logged and left out.
func collectSections(ctx context.Context, log zerolog.Logger, names []string, fetch func(ctx context.Context, i int) (media.Section, error)) ([]media.Section, error) {
	out := make([]media.Section, len(names))
	ok := make([]bool, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sectionLimit)
	for i := range names {
		g.Go(func() error {
			s, err := fetch(ctx, i)
			if err != nil {
				if !IsRecoverable(err) {
					return err
				}
				log.Warn().Err(err).Str("section", names[i]).Msg("skipping section")
				return nil
			}
			out[i], ok[i] = s, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sections := make([]media.Section, 0, len(names))
	for i, s := range out {
		if ok[i] && len(s.Items) > 0 {
			sections = append(sections, s)
		}
	}
	return sections, nil
}

// FormatDisplayTitle creates a display string for the picker.
func FormatDisplayTitle(r media.SearchResult) string {
	parts := []string{r.Title}
	if r.Year != "" {
		parts = append(parts, fmt.Sprintf("(%s)", r.Year))
	}
	switch r.Type {
	case media.TVSeries:
		parts = append(parts, "[TV]")
	case media.Live:
		parts = append(parts, "[Live]")
	default:
		parts = append(parts, "[Movie]")
	}
	return strings.Join(parts, " ")
}
