// Package player launches external media players. All invocations use
// exec.Command with explicit argument slices; stream URLs and headers are
// never passed through a shell.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"cncverse/internal/keys"
	"cncverse/internal/media"
)

// ErrDRMUnsupported is returned by players that cannot decrypt ClearKey
// streams.
var ErrDRMUnsupported = errors.New("player cannot play ClearKey streams")

// Player is the interface for media player implementations.
type Player interface {
	// Play blocks until the player exits.
	Play(ctx context.Context, link media.StreamLink, title string) error

	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string) Player {
	switch strings.ToLower(name) {
	case "vlc":
		return &VLC{}
	case "iina", "celluloid":
		return &Generic{name: strings.ToLower(name)}
	default:
		return &MPV{}
	}
}

// requestHeaders splits a link's headers into the user agent, the referer
// and the remaining "Name: Value" lines in name order.
func requestHeaders(link media.StreamLink) (ua, referer string, rest []string) {
	m := link.HeaderMap()
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		switch {
		case strings.EqualFold(n, "User-Agent"):
			ua = m[n]
		case strings.EqualFold(n, "Referer"):
			referer = m[n]
		default:
			rest = append(rest, n+": "+m[n])
		}
	}
	return ua, referer, rest
}

// clearKeyHex returns the ClearKey content key as hex, or "" when the link
// carries none.
func clearKeyHex(link media.StreamLink) (string, error) {
	if link.DRM == nil || link.DRM.KeyBase64 == "" {
		return "", nil
	}
	h, err := keys.Base64URLToHex(link.DRM.KeyBase64)
	if err != nil {
		return "", fmt.Errorf("reading ClearKey for %s: %w", link.Name, err)
	}
	return h, nil
}

// run starts bin attached to the terminal. Players exit non-zero when the
// user quits, which is not reported as an error.
func run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil
		}
		return fmt.Errorf("running %s: %w", bin, err)
	}
	return nil
}
