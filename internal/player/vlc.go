package player

import (
	"context"
	"fmt"
	"os/exec"

	"cncverse/internal/media"
)

// VLC implements the Player interface for VLC media player.
type VLC struct{}

func (v *VLC) Name() string { return "vlc" }

func (v *VLC) Available() bool {
	_, err := exec.LookPath("vlc")
	return err == nil
}

// Play launches VLC. VLC takes only the user agent and referer; other
// headers are dropped and ClearKey streams are refused.
func (v *VLC) Play(ctx context.Context, link media.StreamLink, title string) error {
	args, err := vlcArgs(link, title)
	if err != nil {
		return err
	}
	return run(ctx, "vlc", args)
}

func vlcArgs(link media.StreamLink, title string) ([]string, error) {
	if link.DRM != nil {
		return nil, fmt.Errorf("%w: %s", ErrDRMUnsupported, link.Name)
	}
	args := []string{
		link.URL,
		"--meta-title", title,
		"--play-and-exit",
	}
	ua, referer, _ := requestHeaders(link)
	if ua != "" {
		args = append(args, "--http-user-agent="+ua)
	}
	if referer != "" {
		args = append(args, "--http-referrer="+referer)
	}
	return args, nil
}
