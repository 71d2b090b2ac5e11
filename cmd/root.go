// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cncverse/internal/config"
	"cncverse/internal/logging"
	"cncverse/internal/provider"
)

// Version is set at build time via ldflags.
var Version = "dev"

// defaultDownloadDir is the value of a bare -d.
const defaultDownloadDir = "default"

// Global flags
var (
	flagDownload string
	flagProvider string
	flagPlayer   string
	flagJSON     bool
	flagDebug    bool
	flagEnvFiles []string
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

// secrets holds keys and shared secrets read from the environment.
var secrets *config.Secrets

var rootCmd = &cobra.Command{
	Use:   "cncverse [query]",
	Short: "Browse live sports, IPTV channels and movies from the terminal",
	Long: `cncverse searches streaming catalogs, decodes their encrypted feeds and
plays the resolved streams with mpv/vlc, or downloads them with ffmpeg.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadConfig,
	RunE:              searchRun,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDownload, "download", "d", "", "Download instead of playing (-d=DIR overrides download_dir)")
	rootCmd.PersistentFlags().Lookup("download").NoOptDefVal = defaultDownloadDir
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "Provider: iptv | live | cinetv | cricify | doflix | moviezwap")
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().StringSliceVar(&flagEnvFiles, "env-file", nil, "Load secrets from these .env files")

	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(playlistCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI
// flags, then reads secrets from the environment.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Debug, cmd.ErrOrStderr())

	envFiles := flagEnvFiles
	if len(envFiles) == 0 {
		envFiles = config.DefaultEnvFiles()
	}
	secrets, err = config.LoadSecrets(envFiles...)
	if err != nil {
		return fmt.Errorf("loading secrets: %w", err)
	}

	log.Debug().Str("provider", cfg.Provider).Str("player", cfg.Player).Msg("config loaded")
	return nil
}

// newProvider builds the configured provider, failing fast when its secrets
// are missing.
func newProvider() (provider.Provider, error) {
	return provider.New(cfg.Provider, cfg, secrets)
}

// downloadDir resolves the -d flag against the configured download_dir.
func downloadDir() (string, error) {
	if flagDownload != defaultDownloadDir {
		return flagDownload, nil
	}
	dir, err := cfg.ExpandDownloadDir()
	if err != nil {
		return "", fmt.Errorf("resolving download dir: %w", err)
	}
	return dir, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cncverse %s\n", Version)
	},
}
