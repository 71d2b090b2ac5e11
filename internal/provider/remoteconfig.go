package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"cncverse/internal/config"
	"cncverse/internal/httputil"
	"cncverse/internal/media"
)

const (
	firebaseFetchURL = "https://firebaseremoteconfig.googleapis.com/v1/projects/%s/namespaces/firebase:fetch"
	sktechPackage    = "com.live.sktechtv"
)

// remoteConfig asks Firebase Remote Config for the current feed host.
type remoteConfig struct {
	fetcher  *httputil.Fetcher
	endpoint string
	apiKey   string
	appID    string
	newID    func() string
}

func newRemoteConfig(secrets *config.Secrets) *remoteConfig {
	return &remoteConfig{
		fetcher:  httputil.NewFetcher(httputil.Profile{Name: "firebase"}),
		endpoint: fmt.Sprintf(firebaseFetchURL, secrets.Get(config.FirebaseProjectNumber)),
		apiKey:   secrets.Get(config.FirebaseAPIKey),
		appID:    secrets.Get(config.FirebaseAppID),
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

type fetchRequest struct {
	AppInstanceID           string            `json:"appInstanceId"`
	AppInstanceIDToken      string            `json:"appInstanceIdToken"`
	AppID                   string            `json:"appId"`
	CountryCode             string            `json:"countryCode"`
	LanguageCode            string            `json:"languageCode"`
	PlatformVersion         string            `json:"platformVersion"`
	TimeZone                string            `json:"timeZone"`
	AppVersion              string            `json:"appVersion"`
	AppBuild                string            `json:"appBuild"`
	PackageName             string            `json:"packageName"`
	SDKVersion              string            `json:"sdkVersion"`
	AnalyticsUserProperties map[string]string `json:"analyticsUserProperties"`
}

// APIURL returns entries.api_url without its trailing slash.
func (r *remoteConfig) APIURL(ctx context.Context) (string, error) {
	req := fetchRequest{
		AppInstanceID:           r.newID(),
		AppID:                   r.appID,
		CountryCode:             "US",
		LanguageCode:            "en-US",
		PlatformVersion:         "30",
		TimeZone:                "UTC",
		AppVersion:              "5.0",
		AppBuild:                "50",
		PackageName:             sktechPackage,
		SDKVersion:              "22.1.0",
		AnalyticsUserProperties: map[string]string{},
	}
	headers := media.Headers{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-Android-Package", Value: sktechPackage},
		{Name: "X-Goog-Api-Key", Value: r.apiKey},
		{Name: "X-Google-GFE-Can-Retry", Value: "yes"},
	}

	body, err := r.fetcher.PostJSON(ctx, r.endpoint, req, headers)
	if err != nil {
		return "", fmt.Errorf("fetching remote config: %w", err)
	}
	apiURL := gjson.GetBytes(body, "entries.api_url").String()
	if apiURL == "" {
		return "", fmt.Errorf("remote config: %w: no api_url entry", ErrUnexpectedPayload)
	}
	return strings.TrimRight(apiURL, "/"), nil
}
