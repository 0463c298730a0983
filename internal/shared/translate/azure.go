package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultAzureEndpoint = "https://api.cognitive.microsofttranslator.com"

var ErrAzureNotConfigured = errors.New("Azure translator not configured")

// AzureProvider Azure Translator v3 (translate + transliterate)
type AzureProvider struct {
	key        string
	region     string
	endpoint   string
	httpClient *http.Client
}

// NewAzureProvider an empty key yields a provider that always fails with ErrAzureNotConfigured
func NewAzureProvider(key, region, endpoint string, httpClient *http.Client) *AzureProvider {
	if endpoint == "" {
		endpoint = DefaultAzureEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AzureProvider{
		key:        key,
		region:     region,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: httpClient,
	}
}

func (p *AzureProvider) Name() string { return ProviderAzure }

func (p *AzureProvider) Translate(ctx context.Context, mode Mode, text string) (string, error) {
	if p.key == "" {
		return "", ErrAzureNotConfigured
	}

	q := url.Values{}
	q.Set("api-version", "3.0")
	var path string
	if mode == ModeTranslate {
		path = "/translate"
		q.Set("from", "en")
		q.Set("to", "ur")
	} else {
		path = "/transliterate"
		q.Set("language", "ur")
		q.Set("fromScript", "Latn")
		q.Set("toScript", "Arab")
	}

	body, _ := json.Marshal([]map[string]string{{"Text": text}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("Azure %s request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	if p.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", p.region)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Azure %s request failed: %w", mode, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Azure %s read body: %w", mode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Azure %s failed: HTTP %d", mode, resp.StatusCode)
	}

	var out string
	if mode == ModeTranslate {
		var parsed []struct {
			Translations []struct {
				Text string `json:"text"`
			} `json:"translations"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("Azure %s returned malformed JSON: %w", mode, err)
		}
		if len(parsed) > 0 && len(parsed[0].Translations) > 0 {
			out = parsed[0].Translations[0].Text
		}
	} else {
		var parsed []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("Azure %s returned malformed JSON: %w", mode, err)
		}
		if len(parsed) > 0 {
			out = parsed[0].Text
		}
	}

	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("Azure %s returned an empty result", mode)
	}
	return out, nil
}
