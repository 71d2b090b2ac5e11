package feed

import (
	"strings"

	"cncverse/internal/keys"
	"cncverse/internal/symmetric"
)

// MultiKey tries each candidate key in order and keeps the first plaintext
// accepted by Plausible.
type MultiKey struct {
	Candidates []keys.Named
	Plausible  func(string) bool
}

// Decrypt base64-decodes blob and returns the plaintext with the name of the
// key that produced it.
func (m MultiKey) Decrypt(blob string) (string, string, error) {
	ct, err := decodeBase64(blob)
	if err != nil {
		return "", "", &DecodeError{Stage: "base64", Err: err}
	}

	plausible := m.Plausible
	if plausible == nil {
		plausible = LooksPlausible
	}

	for _, c := range m.Candidates {
		plain, err := symmetric.Decrypt(ct, c.Material, symmetric.AES)
		if err != nil {
			continue
		}
		text := string(plain)
		if plausible(text) {
			return text, c.Name, nil
		}
	}
	return "", "", &DecodeError{Stage: "multikey", Err: ErrNoPlausibleKey}
}

// LooksPlausible reports whether s looks like a JSON document or carries a
// URL.
func LooksPlausible(s string) bool {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return true
	}
	return strings.Contains(strings.ToLower(s), "http")
}
