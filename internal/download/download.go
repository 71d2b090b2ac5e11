// Package download provides ffmpeg-based stream downloading.
// Uses exec.Command with explicit argument slices and validates
// output paths against directory traversal attacks.
package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"cncverse/internal/httputil"
	"cncverse/internal/keys"
	"cncverse/internal/logging"
	"cncverse/internal/media"
)

// Download saves a stream to outputDir using ffmpeg and returns the file path.
func Download(ctx context.Context, link media.StreamLink, title string, outputDir string) (string, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	absDir, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	outputPath, err := httputil.SafeDownloadPath(absDir, httputil.SanitizeFilename(title)+".mkv")
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	args, err := ffmpegArgs(link, title, outputPath)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log := logging.Module("download")
	log.Info().Str("path", outputPath).Str("source", link.Source).Msg("downloading")

	if err := cmd.Run(); err != nil {
		// Clean up partial download on failure
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg download failed: %w", err)
	}

	return outputPath, nil
}

// ffmpegArgs builds the argument list. Request options precede -i so ffmpeg
// applies them to the input.
func ffmpegArgs(link media.StreamLink, title, outputPath string) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-loglevel", "warning"}

	m := link.HeaderMap()
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	var headers strings.Builder
	for _, n := range names {
		if strings.EqualFold(n, "User-Agent") {
			args = append(args, "-user_agent", m[n])
			continue
		}
		fmt.Fprintf(&headers, "%s: %s\r\n", n, m[n])
	}
	if headers.Len() > 0 {
		args = append(args, "-headers", headers.String())
	}

	if link.DRM != nil && link.DRM.KeyBase64 != "" {
		key, err := keys.Base64URLToHex(link.DRM.KeyBase64)
		if err != nil {
			return nil, fmt.Errorf("reading ClearKey for %s: %w", link.Name, err)
		}
		args = append(args, "-cenc_decryption_key", key)
	}

	args = append(args,
		"-i", link.URL,
		"-map", "0",
		"-c", "copy",
		"-metadata", "title="+title,
		outputPath,
	)
	return args, nil
}
