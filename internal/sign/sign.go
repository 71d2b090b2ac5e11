// Package sign builds the request signatures and signed media URLs expected
// by the private catalog APIs.
package sign

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultValidity is how long a signed media URL stays valid.
const DefaultValidity = 5 * time.Hour

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// RequestSign authenticates one API request: uppercase MD5 over the decrypted
// shared secret, the device id and the request timestamp.
func RequestSign(secret, deviceID, timestamp string) string {
	return strings.ToUpper(md5Hex(secret + deviceID + timestamp))
}

// PlaybackToken is the sign field of a playback-info request body.
func PlaybackToken(salt, deviceID, contentID, timestamp string) string {
	return strings.ToUpper(md5Hex(salt + deviceID + contentID + timestamp))
}

// URLToken is the keyed hash the media edge checks for a path and expiry.
func URLToken(secret, path, expiryHex string) string {
	return md5Hex(secret + path + expiryHex)
}

// Timestamp renders t as decimal milliseconds since the epoch.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Signer appends wsSecret and wsTime to media URLs. Signed URLs expire, so
// they are computed per request and never cached.
type Signer struct {
	Secret   string
	Validity time.Duration
	Now      func() time.Time
}

// NewSigner returns a Signer using the wall clock and DefaultValidity.
func NewSigner(secret string) *Signer {
	return &Signer{Secret: secret, Validity: DefaultValidity, Now: time.Now}
}

// Expiry returns the hex expiry for a URL signed at t.
func (s *Signer) Expiry(t time.Time) string {
	validity := s.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	return strconv.FormatInt(t.Unix()+int64(validity/time.Second), 16)
}

// SignURL returns raw with its expiry and path signature appended to the
// query. A fragment stays last.
func (s *Signer) SignURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing media URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("media URL %q is not absolute", raw)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	wsTime := s.Expiry(now())
	wsSecret := URLToken(s.Secret, u.Path, wsTime)

	q := u.RawQuery
	if q != "" && !strings.HasSuffix(q, "&") {
		q += "&"
	}
	u.RawQuery = q + "wsSecret=" + wsSecret + "&wsTime=" + wsTime
	return u.String(), nil
}
