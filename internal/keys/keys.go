// Package keys holds symmetric key material and the hex helpers used to load it.
package keys

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// KeyMaterial is a (key, IV) pair. Values are copied on construction and
// must not be mutated afterwards.
type KeyMaterial struct {
	Key []byte
	IV  []byte
}

// Named labels a candidate key so callers can report which one succeeded.
type Named struct {
	Name     string
	Material KeyMaterial
}

// DecodeHex converts a hex string into bytes. Surrounding whitespace is ignored.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex value has odd length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	return b, nil
}

// FromHex builds key material from hex-encoded key and IV.
func FromHex(keyHex, ivHex string) (KeyMaterial, error) {
	key, err := DecodeHex(keyHex)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("key: %w", err)
	}
	iv, err := DecodeHex(ivHex)
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("iv: %w", err)
	}
	return KeyMaterial{Key: key, IV: iv}, nil
}

// ParsePair parses the "keyhex:ivhex" form.
func ParsePair(secret string) (KeyMaterial, error) {
	keyHex, ivHex, ok := strings.Cut(strings.TrimSpace(secret), ":")
	if !ok {
		return KeyMaterial{}, fmt.Errorf("expected keyhex:ivhex, got %d characters without separator", len(secret))
	}
	return FromHex(keyHex, ivHex)
}

// FromText builds key material from raw text secrets. The key is copied into
// a buffer of keyLen bytes, zero padded or truncated. keyLen <= 0 keeps the
// key length as is.
func FromText(key, iv string, keyLen int) KeyMaterial {
	k := []byte(key)
	if keyLen > 0 {
		buf := make([]byte, keyLen)
		copy(buf, k)
		k = buf
	}
	return KeyMaterial{Key: k, IV: []byte(iv)}
}

// HexToBase64URL converts a DRM key or key id written in hex into URL-safe
// unpadded base64. Dashes are dropped, chunks that are not valid hex are
// skipped and a trailing single digit is read as its own byte. An input with
// no usable digits returns "".
func HexToBase64URL(h string) string {
	h = strings.ReplaceAll(strings.TrimSpace(h), "-", "")
	out := make([]byte, 0, len(h)/2+1)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		v, err := strconv.ParseUint(h[i:end], 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	if len(out) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(out)
}

// Base64URLToHex reverses HexToBase64URL for players that take hex keys.
func Base64URLToHex(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", fmt.Errorf("decoding base64url key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
