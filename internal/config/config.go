// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only and never carries secrets; keys and shared
// secrets come from the environment, see Secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Player      string `toml:"player"`
	Provider    string `toml:"provider"`
	History     bool   `toml:"history"`
	DownloadDir string `toml:"download_dir"`
	Debug       bool   `toml:"debug"`
	DeviceID    string `toml:"device_id"`

	IPTV       IPTVConfig       `toml:"iptv"`
	LiveEvents LiveEventsConfig `toml:"live_events"`
	CineTv     CineTvConfig     `toml:"cinetv"`
	Cricify    CricifyConfig    `toml:"cricify"`
	DoFlix     DoFlixConfig     `toml:"doflix"`
	Moviezwap  MoviezwapConfig  `toml:"moviezwap"`
}

// IPTVConfig selects the playlist the iptv provider serves. An explicit
// playlist URL wins over a category from the SKLive feed.
type IPTVConfig struct {
	PlaylistURL string `toml:"playlist_url"`
	Category    string `toml:"category"`
}

// LiveEventsConfig points at the SKLive feeds.
type LiveEventsConfig struct {
	FeedBaseURL   string `toml:"feed_base_url"`
	StreamBaseURL string `toml:"stream_base_url"`
	CardURL       string `toml:"card_url"`
	RemoteConfig  bool   `toml:"remote_config"`
}

type CineTvConfig struct {
	BaseURL string `toml:"base_url"`
}

type CricifyConfig struct {
	SourceURL string `toml:"source_url"`
}

type DoFlixConfig struct {
	BaseURL string `toml:"base_url"`
	Region  string `toml:"region"`
}

type MoviezwapConfig struct {
	BaseURL    string   `toml:"base_url"`
	Categories []string `toml:"categories"`
}

// Providers lists the provider names accepted in the config and on the
// command line.
var Providers = []string{"iptv", "live", "cinetv", "cricify", "doflix", "moviezwap"}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Player:      "mpv",
		Provider:    "live",
		History:     true,
		DownloadDir: "~/Videos/cncverse",
		Debug:       false,
		DeviceID:    "2987149b2e2a63b2",
		LiveEvents: LiveEventsConfig{
			FeedBaseURL:   "https://sufyanpromax.space",
			StreamBaseURL: "https://welalagaa.site",
			CardURL:       "https://live-card-png.cricify.workers.dev/",
			RemoteConfig:  true,
		},
		CineTv: CineTvConfig{
			BaseURL: "https://i6a6.t9z0.com",
		},
		DoFlix: DoFlixConfig{
			BaseURL: "https://panel.watchkaroabhi.com",
			Region:  "IN",
		},
		Moviezwap: MoviezwapConfig{
			BaseURL:    "https://www.moviezwap.surf",
			Categories: []string{"telugu-movies", "telugu-dubbed", "latest-movies", "tamil-movies"},
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cncverse"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cncverse"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	validPlayers := map[string]bool{
		"mpv": true, "vlc": true, "iina": true, "celluloid": true,
	}
	if !validPlayers[strings.ToLower(c.Player)] {
		return fmt.Errorf("unsupported player %q (valid: mpv, vlc, iina, celluloid)", c.Player)
	}

	if !ValidProvider(c.Provider) {
		return fmt.Errorf("unsupported provider %q (valid: %s)", c.Provider, strings.Join(Providers, ", "))
	}

	if c.DeviceID == "" {
		return fmt.Errorf("device_id cannot be empty")
	}

	urls := map[string]string{
		"live_events.feed_base_url":   c.LiveEvents.FeedBaseURL,
		"live_events.stream_base_url": c.LiveEvents.StreamBaseURL,
		"cinetv.base_url":             c.CineTv.BaseURL,
		"doflix.base_url":             c.DoFlix.BaseURL,
		"moviezwap.base_url":          c.Moviezwap.BaseURL,
	}
	for key, u := range urls {
		if u == "" {
			return fmt.Errorf("%s cannot be empty", key)
		}
		if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
			return fmt.Errorf("%s must be an http(s) URL, got %q", key, u)
		}
	}

	return nil
}

// ValidProvider reports whether name is a known provider.
func ValidProvider(name string) bool {
	for _, p := range Providers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// HistoryPath returns the path to the history database.
func HistoryPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "cncverse", "history.db"), nil
}
