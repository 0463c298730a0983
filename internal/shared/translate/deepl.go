package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DeepLFreeURL = "https://api-free.deepl.com/v2/translate"
	DeepLProURL  = "https://api.deepl.com/v2/translate"
)

var ErrDeepLNotConfigured = errors.New("DeepL translator not configured")

// DeepLProvider DeepL v2 translate. DeepL has no transliteration endpoint, so
// both modes are sent as a plain EN→UR translation.
type DeepLProvider struct {
	key        string
	url        string
	httpClient *http.Client
}

// NewDeepLProvider an empty url picks the free endpoint for ":fx" keys, the paid one otherwise
func NewDeepLProvider(key, apiURL string, httpClient *http.Client) *DeepLProvider {
	if apiURL == "" {
		apiURL = DeepLProURL
		if strings.HasSuffix(key, ":fx") {
			apiURL = DeepLFreeURL
		}
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &DeepLProvider{key: key, url: apiURL, httpClient: httpClient}
}

func (p *DeepLProvider) Name() string { return ProviderDeepL }

// URL resolved endpoint
func (p *DeepLProvider) URL() string { return p.url }

func (p *DeepLProvider) Translate(ctx context.Context, mode Mode, text string) (string, error) {
	if p.key == "" {
		return "", ErrDeepLNotConfigured
	}

	body, _ := json.Marshal(map[string]interface{}{
		"text":        []string{text},
		"source_lang": "EN",
		"target_lang": "UR",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("DeepL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+p.key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("DeepL request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("DeepL read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("DeepL %s failed: HTTP %d", mode, resp.StatusCode)
	}

	var parsed struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("DeepL returned malformed JSON: %w", err)
	}
	if len(parsed.Translations) == 0 || strings.TrimSpace(parsed.Translations[0].Text) == "" {
		return "", fmt.Errorf("DeepL returned an empty result")
	}
	return parsed.Translations[0].Text, nil
}
