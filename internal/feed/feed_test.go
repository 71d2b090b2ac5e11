package feed

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"cncverse/internal/keys"
	"cncverse/internal/obfuscate"
	"cncverse/internal/symmetric"
)

var testKey = keys.KeyMaterial{
	Key: []byte("k3y-for-tests-16"),
	IV:  []byte("iv-for-tests-16b"),
}

func TestDecodeRoundTrip(t *testing.T) {
	plaintexts := []string{
		`[{"cat":"{\"name\":\"Cricket\",\"visible\":true}"}]`,
		`{"a":1}`,
		"exactly sixteen!",
		"",
		"ünïcode payload with emoji 🏏",
		strings.Repeat("x", 1000),
	}

	d := NewDecoder(testKey)
	for _, want := range plaintexts {
		blob, err := Encode(want, testKey)
		if err != nil {
			t.Fatalf("Encode(%q): %v", want, err)
		}
		got, err := d.Decode(blob)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)): %v", want, err)
		}
		if got != want {
			t.Errorf("round trip = %q, want %q", got, want)
		}
	}
}

func TestDecodeToleratesWhitespace(t *testing.T) {
	blob, err := Encode(`{"ok":true}`, testKey)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	wrapped := "\n  " + blob[:10] + "\n" + blob[10:] + "\r\n"

	got, err := NewDecoder(testKey).Decode(wrapped)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
}

func TestDecodeNotBlockAligned(t *testing.T) {
	// 15 bytes of ciphertext can never reach the cipher.
	inner := base64.StdEncoding.EncodeToString([]byte("fifteen bytes!!"))
	intermediate := obfuscate.Reverse(inner)
	blob := obfuscate.Untranslate(base64.StdEncoding.EncodeToString([]byte(intermediate)))

	got, err := NewDecoder(testKey).Decode(blob)
	if got != "" {
		t.Errorf("expected empty plaintext, got %q", got)
	}
	if !errors.Is(err, ErrNotBlockAligned) {
		t.Fatalf("error = %v, want ErrNotBlockAligned", err)
	}
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error %v does not match ErrDecode", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error %T is not *DecodeError", err)
	}
	if de.Stage != "align" {
		t.Errorf("Stage = %q, want align", de.Stage)
	}
	if de.Intermediate != intermediate {
		t.Errorf("Intermediate = %q, want %q", de.Intermediate, intermediate)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode(`{"x":1}`, testKey)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	otherKey := keys.KeyMaterial{Key: []byte("another-key-16by"), IV: testKey.IV}

	tests := []struct {
		name      string
		blob      string
		km        keys.KeyMaterial
		wantStage string
		wantCiph  bool
	}{
		{"outer garbage", "!!!not base64!!!", testKey, "outer base64", false},
		{"inner garbage", obfuscate.Untranslate(base64.StdEncoding.EncodeToString([]byte("%%%%"))), testKey, "inner base64", false},
		{"bad key length", valid, keys.KeyMaterial{Key: []byte("x"), IV: testKey.IV}, "decrypt", true},
		{"wrong key", valid, otherKey, "decrypt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDecoder(tt.km).Decode(tt.blob)
			if err == nil {
				if tt.name == "wrong key" {
					t.Skipf("wrong key produced valid padding: %q", got)
				}
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("error %v does not match ErrDecode", err)
			}
			if errors.Is(err, symmetric.ErrCipher) != tt.wantCiph {
				t.Errorf("errors.Is(ErrCipher) = %v, want %v", !tt.wantCiph, tt.wantCiph)
			}
			var de *DecodeError
			if errors.As(err, &de) && de.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", de.Stage, tt.wantStage)
			}
		})
	}
}

func TestDecodeBase64(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aGVsbG8=", "hello"},
		{"aGVsbG8", "hello"},
		{"aGVs\nbG8=", "hello"},
		{" aGVsbG8= ", "hello"},
	}
	for _, tt := range tests {
		got, err := decodeBase64(tt.in)
		if err != nil {
			t.Errorf("decodeBase64(%q): %v", tt.in, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("decodeBase64(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
