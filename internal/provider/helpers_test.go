package provider

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"cncverse/internal/config"
	"cncverse/internal/feed"
	"cncverse/internal/keys"
)

var feedKey = keys.KeyMaterial{
	Key: []byte("k3y-for-tests-16"),
	IV:  []byte("iv-for-tests-16b"),
}

// feedSecrets returns secrets carrying feedKey as the SKLive key.
func feedSecrets(extra map[string]string) *config.Secrets {
	values := map[string]string{
		config.SKLiveKey: hex.EncodeToString(feedKey.Key),
		config.SKLiveIV:  hex.EncodeToString(feedKey.IV),
	}
	for k, v := range extra {
		values[k] = v
	}
	return config.NewSecrets(values)
}

// encodeFeed obfuscates plain the way the feed host serves it.
func encodeFeed(t *testing.T, plain string) string {
	t.Helper()
	blob, err := feed.Encode(plain, feedKey)
	if err != nil {
		t.Fatalf("encoding feed: %v", err)
	}
	return blob
}

// wrapFeed builds a [{field: "<json>"}] feed document from records.
func wrapFeed(t *testing.T, field string, records ...any) string {
	t.Helper()
	wrappers := make([]map[string]string, 0, len(records))
	for _, r := range records {
		inner, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshaling record: %v", err)
		}
		wrappers = append(wrappers, map[string]string{field: string(inner)})
	}
	out, err := json.Marshal(wrappers)
	if err != nil {
		t.Fatalf("marshaling wrappers: %v", err)
	}
	return string(out)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling: %v", err)
	}
	return string(b)
}
