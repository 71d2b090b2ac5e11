package player

import (
	"context"
	"os/exec"

	"cncverse/internal/media"
)

// MPV implements the Player interface for mpv.
type MPV struct{}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Available() bool {
	_, err := exec.LookPath("mpv")
	return err == nil
}

// Play launches mpv with the link's headers and ClearKey.
func (m *MPV) Play(ctx context.Context, link media.StreamLink, title string) error {
	args, err := mpvArgs(link, title)
	if err != nil {
		return err
	}
	args = append(args, "--really-quiet")
	return run(ctx, "mpv", args)
}

// mpvArgs builds mpv-style arguments, shared with players that accept them.
func mpvArgs(link media.StreamLink, title string) ([]string, error) {
	args := []string{
		link.URL,
		"--force-media-title=" + title,
	}

	ua, referer, rest := requestHeaders(link)
	if ua != "" {
		args = append(args, "--user-agent="+ua)
	}
	if referer != "" {
		args = append(args, "--referrer="+referer)
	}
	// The append form takes one header per flag, so values may hold commas.
	for _, h := range rest {
		args = append(args, "--http-header-fields-append="+h)
	}

	key, err := clearKeyHex(link)
	if err != nil {
		return nil, err
	}
	if key != "" {
		args = append(args, "--demuxer-lavf-o=cenc_decryption_key="+key)
	}
	return args, nil
}
