// Package feed recovers plaintext from the obfuscated feed payloads served by
// the live-events backends, and from payloads encrypted under one of several
// candidate keys.
//
// An obfuscated feed is produced by encrypting JSON with AES-CBC, encoding
// the ciphertext as base64, reversing that text, base64 encoding it again
// and finally substituting the alphabet. Decode undoes the layers in reverse.
package feed

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"cncverse/internal/keys"
	"cncverse/internal/logging"
	"cncverse/internal/obfuscate"
	"cncverse/internal/symmetric"
)

var (
	// ErrDecode matches every error returned by Decode and MultiKey.Decrypt.
	ErrDecode = errors.New("feed decode failed")
	// ErrNotBlockAligned means the inner ciphertext is not a whole number of AES blocks.
	ErrNotBlockAligned = errors.New("ciphertext not block aligned")
	// ErrNoPlausibleKey means no candidate key produced plausible plaintext.
	ErrNoPlausibleKey = errors.New("no candidate key produced plausible plaintext")
)

// DecodeError records the stage that failed. Intermediate holds the
// pre-cipher text for alignment failures so callers can inspect it.
type DecodeError struct {
	Stage        string
	Err          error
	Intermediate string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("feed decode (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Decoder decodes obfuscated feeds with a fixed key.
type Decoder struct {
	key keys.KeyMaterial
	log zerolog.Logger
}

// NewDecoder returns a Decoder for the given key material.
func NewDecoder(km keys.KeyMaterial) *Decoder {
	return &Decoder{key: km, log: logging.Module("feed")}
}

// Decode returns the plaintext carried by blob. It never panics; every
// failure is a *DecodeError.
func (d *Decoder) Decode(blob string) (string, error) {
	standard := obfuscate.Translate(strings.TrimSpace(blob))

	outer, err := decodeBase64(standard)
	if err != nil {
		return "", &DecodeError{Stage: "outer base64", Err: err}
	}
	intermediate := string(outer)

	ciphertext, err := decodeBase64(obfuscate.Reverse(intermediate))
	if err != nil {
		return "", &DecodeError{Stage: "inner base64", Err: err}
	}

	if len(ciphertext)%symmetric.BlockSize(symmetric.AES) != 0 {
		d.log.Debug().
			Int("length", len(ciphertext)).
			Str("intermediate", logging.Preview(intermediate, 200)).
			Msg("ciphertext not block aligned")
		return "", &DecodeError{Stage: "align", Err: ErrNotBlockAligned, Intermediate: intermediate}
	}

	plain, err := symmetric.Decrypt(ciphertext, d.key, symmetric.AES)
	if err != nil {
		return "", &DecodeError{Stage: "decrypt", Err: err}
	}

	d.log.Debug().Int("bytes", len(plain)).Msg("feed decoded")
	return strings.ToValidUTF8(string(plain), "\uFFFD"), nil
}

// Encode is the inverse of Decode. It produces fixtures and lets operators
// re-obfuscate a feed for testing.
func Encode(plaintext string, km keys.KeyMaterial) (string, error) {
	ct, err := symmetric.Encrypt([]byte(plaintext), km, symmetric.AES)
	if err != nil {
		return "", fmt.Errorf("encrypting feed: %w", err)
	}
	inner := base64.StdEncoding.EncodeToString(ct)
	outer := base64.StdEncoding.EncodeToString([]byte(obfuscate.Reverse(inner)))
	return obfuscate.Untranslate(outer), nil
}

// decodeBase64 accepts padded or unpadded standard base64 with embedded
// whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = stripSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
