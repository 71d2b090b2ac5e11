package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables holding key material and shared secrets.
const (
	SKLiveKey = "SKLIVE_KEY"
	SKLiveIV  = "SKLIVE_IV"

	CineTvSecretKeyEncrypted = "CINETV_SECRET_KEY_ENCRYPTED"
	CineTvDESKey             = "CINETV_DES_KEY"
	CineTvDESIV              = "CINETV_DES_IV"
	CineTvAESKey             = "CINETV_AES_KEY"
	CineTvAESIV              = "CINETV_AES_IV"
	CineTvWSSecret           = "CINETV_WS_SECRET"
	CineTvP2PSalt            = "CINETV_P2P_SALT"

	CricifySecret1 = "CRICIFY_PROVIDER_SECRET1"
	CricifySecret2 = "CRICIFY_PROVIDER_SECRET2"

	DoFlixAPIKey = "DOFLIX_API_KEY"

	FirebaseAPIKey        = "SKTECH_FIREBASE_API_KEY"
	FirebaseAppID         = "SKTECH_FIREBASE_APP_ID"
	FirebaseProjectNumber = "SKTECH_FIREBASE_PROJECT_NUMBER"
)

var secretNames = []string{
	SKLiveKey, SKLiveIV,
	CineTvSecretKeyEncrypted, CineTvDESKey, CineTvDESIV, CineTvAESKey, CineTvAESIV, CineTvWSSecret, CineTvP2PSalt,
	CricifySecret1, CricifySecret2,
	DoFlixAPIKey,
	FirebaseAPIKey, FirebaseAppID, FirebaseProjectNumber,
}

// ErrMissingSecret is matched by every MissingSecretError.
var ErrMissingSecret = errors.New("missing secret")

// MissingSecretError lists required environment variables that are unset.
type MissingSecretError struct {
	Names []string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("missing required secret(s): %s (set them in the environment or an .env file)",
		strings.Join(e.Names, ", "))
}

func (e *MissingSecretError) Is(target error) bool { return target == ErrMissingSecret }

// Secrets holds values read from the environment. Values are never logged.
type Secrets struct {
	values map[string]string
}

// LoadSecrets reads known secrets from the environment after loading the
// given .env files. Missing files are ignored; variables already set in the
// environment are not overridden.
func LoadSecrets(envFiles ...string) (*Secrets, error) {
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("loading env files: %w", err)
		}
	}

	s := &Secrets{values: make(map[string]string)}
	for _, name := range secretNames {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			s.values[name] = v
		}
	}
	return s, nil
}

// NewSecrets builds a Secrets from explicit values.
func NewSecrets(values map[string]string) *Secrets {
	s := &Secrets{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			s.values[k] = v
		}
	}
	return s
}

// Get returns a secret, or "" when unset.
func (s *Secrets) Get(name string) string {
	if s == nil {
		return ""
	}
	return s.values[name]
}

// Has reports whether every named secret is set.
func (s *Secrets) Has(names ...string) bool {
	for _, n := range names {
		if s.Get(n) == "" {
			return false
		}
	}
	return true
}

// Require returns a *MissingSecretError naming every unset secret.
func (s *Secrets) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if s.Get(n) == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingSecretError{Names: missing}
}

// DefaultEnvFiles returns the .env files consulted when none are given on
// the command line: one in the working directory and one next to the config.
func DefaultEnvFiles() []string {
	files := []string{".env"}
	if dir, err := configDir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	return files
}
