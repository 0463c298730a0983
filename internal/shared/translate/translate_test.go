package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func deeplServer(t *testing.T, text string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key dl-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		var body struct {
			Text       []string `json:"text"`
			TargetLang string   `json:"target_lang"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.TargetLang != "UR" || len(body.Text) != 1 {
			t.Errorf("unexpected DeepL body %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[{"text":"` + text + `"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveAzureSuccess(t *testing.T) {
	azure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transliterate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("language") != "ur" || q.Get("fromScript") != "Latn" || q.Get("toScript") != "Arab" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "az-key" || r.Header.Get("Ocp-Apim-Subscription-Region") != "eastus" {
			t.Errorf("missing Azure headers")
		}
		w.Write([]byte(`[{"text":"علی","script":"Arab"}]`))
	}))
	defer azure.Close()

	svc := NewService([]Provider{
		NewAzureProvider("az-key", "eastus", azure.URL, nil),
		NewDeepLProvider("", "", nil),
	}, nil, time.Second, nil)

	res, err := svc.Resolve(context.Background(), Request{Text: "Ali", Mode: ModeTransliterate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != ProviderAzure || res.Translated != "علی" || res.AzureError != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolveAzureTranslateEndpoint(t *testing.T) {
	azure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" || r.URL.Query().Get("to") != "ur" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`[{"translations":[{"text":"سرخ","to":"ur"}]}]`))
	}))
	defer azure.Close()

	svc := NewService([]Provider{NewAzureProvider("az-key", "", azure.URL, nil)}, nil, time.Second, nil)
	res, err := svc.Resolve(context.Background(), Request{Text: "Red", Mode: ModeTranslate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Translated != "سرخ" {
		t.Fatalf("expected سرخ, got %q", res.Translated)
	}
}

func TestResolveFallsBackToDeepL(t *testing.T) {
	azure := statusServer(t, http.StatusInternalServerError)
	deepl := deeplServer(t, "fallback", nil)

	svc := NewService([]Provider{
		NewAzureProvider("az-key", "", azure.URL, nil),
		NewDeepLProvider("dl-key", deepl.URL, nil),
	}, nil, time.Second, nil)

	res, err := svc.Resolve(context.Background(), Request{Text: "Ali", Mode: ModeTranslate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Translated != "fallback" || res.Provider != ProviderDeepL {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.AzureError, "Azure") || !strings.Contains(res.AzureError, "500") {
		t.Fatalf("azure_error should describe the Azure failure, got %q", res.AzureError)
	}
}

func TestResolveUnconfiguredAzureFallsThrough(t *testing.T) {
	deepl := deeplServer(t, "fallback", nil)
	svc := NewService([]Provider{
		NewAzureProvider("", "", "", nil),
		NewDeepLProvider("dl-key", deepl.URL, nil),
	}, nil, time.Second, nil)

	res, err := svc.Resolve(context.Background(), Request{Text: "Ali"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != ProviderDeepL || !strings.Contains(res.AzureError, "not configured") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolveBothFail(t *testing.T) {
	azure := statusServer(t, http.StatusBadGateway)
	deepl := statusServer(t, http.StatusForbidden)
	svc := NewService([]Provider{
		NewAzureProvider("az-key", "", azure.URL, nil),
		NewDeepLProvider("dl-key", deepl.URL, nil),
	}, nil, time.Second, nil)

	_, err := svc.Resolve(context.Background(), Request{Text: "Ali"})
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "Azure") || !strings.Contains(msg, "DeepL") {
		t.Fatalf("error should mention both providers: %s", msg)
	}
	if chainErr.ProviderErr(ProviderDeepL) == nil {
		t.Fatalf("expected a recorded DeepL error")
	}
}

func TestResolveMalformedAzureJSON(t *testing.T) {
	azure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer azure.Close()
	svc := NewService([]Provider{
		NewAzureProvider("az-key", "", azure.URL, nil),
		NewDeepLProvider("", "", nil),
	}, nil, time.Second, nil)

	_, err := svc.Resolve(context.Background(), Request{Text: "Ali"})
	if err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("expected malformed JSON error, got %v", err)
	}
}

func TestResolveTimeout(t *testing.T) {
	release := make(chan struct{})
	azure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer azure.Close()
	defer close(release)

	deepl := deeplServer(t, "fallback", nil)
	svc := NewService([]Provider{
		NewAzureProvider("az-key", "", azure.URL, nil),
		NewDeepLProvider("dl-key", deepl.URL, nil),
	}, nil, 50*time.Millisecond, nil)

	res, err := svc.Resolve(context.Background(), Request{Text: "Ali"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.AzureError, "timed out") {
		t.Fatalf("expected timeout in azure_error, got %q", res.AzureError)
	}
}

func TestResolveUsesCache(t *testing.T) {
	var hits int32
	azure := statusServer(t, http.StatusInternalServerError)
	deepl := deeplServer(t, "cached", &hits)
	svc := NewService([]Provider{
		NewAzureProvider("az-key", "", azure.URL, nil),
		NewDeepLProvider("dl-key", deepl.URL, nil),
	}, NewCache(time.Minute, 10, nil, nil), time.Second, nil)

	for i := 0; i < 3; i++ {
		res, err := svc.Resolve(context.Background(), Request{Text: "Ali", Mode: ModeTranslate})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Provider != ProviderDeepL {
			t.Fatalf("cached provider should stay deepl, got %s", res.Provider)
		}
		if i > 0 && res.AzureError != "" {
			t.Fatalf("cache hits must not carry azure_error")
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one DeepL call, got %d", got)
	}

	// mode is part of the key
	if _, err := svc.Resolve(context.Background(), Request{Text: "Ali", Mode: ModeTransliterate}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected a second DeepL call for another mode, got %d", got)
	}
}

func TestNewCacheDisabled(t *testing.T) {
	c := NewCache(0, 10, nil, nil)
	c.Set(context.Background(), "translate:x", Entry{Translated: "y"})
	if _, ok := c.Get(context.Background(), "translate:x"); ok {
		t.Fatalf("ttl 0 must disable caching")
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(10, 20*time.Millisecond)
	c.Set(context.Background(), "k", Entry{Translated: "v"})
	if _, ok := c.Get(context.Background(), "k"); !ok {
		t.Fatalf("expected fresh entry")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestResolveValidation(t *testing.T) {
	svc := NewService(nil, nil, time.Second, nil)
	if _, err := svc.Resolve(context.Background(), Request{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := svc.Resolve(context.Background(), Request{Text: "x", Mode: "guess"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestDeepLEndpointSelection(t *testing.T) {
	if got := NewDeepLProvider("abc:fx", "", nil).URL(); got != DeepLFreeURL {
		t.Fatalf("expected free endpoint, got %s", got)
	}
	if got := NewDeepLProvider("abc", "", nil).URL(); got != DeepLProURL {
		t.Fatalf("expected pro endpoint, got %s", got)
	}
	if got := NewDeepLProvider("abc:fx", "http://local", nil).URL(); got != "http://local" {
		t.Fatalf("explicit url must win, got %s", got)
	}
}
