package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bitfantasy/backoffice/internal/config"
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/erp/testutil"
	"github.com/bitfantasy/backoffice/internal/middleware"
	"github.com/bitfantasy/backoffice/internal/shared/notice"
	"github.com/bitfantasy/backoffice/internal/shared/translate"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT:         config.JWTConfig{Secret: testutil.JWTSecret},
		Translation: config.TranslationConfig{RateLimit: "60-M"},
		Approval:    config.ApprovalConfig{NotifyConcurrency: 2},
	}
}

type fakeResolver struct {
	res *translate.Result
	err error
}

func (f fakeResolver) Resolve(context.Context, translate.Request) (*translate.Result, error) {
	return f.res, f.err
}

func translateRouter(resolver service.Resolver) *gin.Engine {
	r := testutil.SetupRouter()
	h := NewTranslateHandler(service.NewNamingService(resolver, zap.NewNop()))
	r.POST("/api/v1/translate", h.Translate)
	return r
}

func TestTranslateValidation(t *testing.T) {
	r := translateRouter(fakeResolver{})

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/translate", map[string]string{"text": "   "}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank text: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(r, http.MethodPost, "/api/v1/translate", map[string]string{"text": "Shirt", "mode": "poetry"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode: expected 400, got %d", w.Code)
	}
}

func TestTranslateFallbackResult(t *testing.T) {
	r := translateRouter(fakeResolver{res: &translate.Result{
		Translated: "fallback",
		Provider:   translate.ProviderDeepL,
		AzureError: "Azure transliterate failed with status 500",
	}})

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/translate", map[string]string{"text": "Shirt"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data, _ := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["translated"] != "fallback" || data["provider"] != "deepl" {
		t.Fatalf("unexpected body: %v", data)
	}
	if s, _ := data["azure_error"].(string); !strings.Contains(s, "Azure") {
		t.Fatalf("expected azure_error mentioning Azure, got %v", data["azure_error"])
	}
}

func TestTranslateAzureSuccessHasNullAzureError(t *testing.T) {
	r := translateRouter(fakeResolver{res: &translate.Result{Translated: "شرٹ", Provider: translate.ProviderAzure}})

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/translate", map[string]string{"text": "Shirt"}, "")
	data, _ := testutil.ParseResponse(w)["data"].(map[string]interface{})
	v, present := data["azure_error"]
	if !present || v != nil {
		t.Fatalf("expected azure_error null, got %v (present=%v)", v, present)
	}
}

func TestTranslateBothProvidersFail(t *testing.T) {
	chain := &translate.ChainError{Errors: []translate.ProviderError{
		{Provider: translate.ProviderAzure, Err: errors.New("Azure request timed out after 10ms")},
		{Provider: translate.ProviderDeepL, Err: errors.New("DeepL translate failed with status 503")},
	}}
	r := translateRouter(fakeResolver{err: chain})

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/translate", map[string]string{"text": "Shirt"}, "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	data, _ := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["azure_error"] == nil || data["deepl_error"] == nil {
		t.Fatalf("expected both provider errors, got %v", data)
	}
}

func TestTranslateUnconfigured(t *testing.T) {
	r := translateRouter(nil)
	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/translate", map[string]string{"text": "Shirt"}, "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func interceptRouter() *gin.Engine {
	r := testutil.SetupRouter()
	h := NewApprovalHandler(nil, nil, notice.NewStore("", false), zap.NewNop())
	r.POST("/guarded", h.Intercept(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"reached": true})
	})
	r.POST("/approvals", h.Draft, h.Intercept(), h.Submitted)
	return r
}

func TestInterceptWithoutDraftPasses(t *testing.T) {
	w := testutil.DoRequest(interceptRouter(), http.MethodPost, "/guarded", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}

func TestInterceptMissingFields(t *testing.T) {
	r := interceptRouter()
	drafts := []map[string]interface{}{
		{"entity_type": "SIZE", "entity_id": 7},
		{"request_type": "MASTER_DATA", "entity_id": "7"},
		{"request_type": "MASTER_DATA", "entity_type": "SIZE"},
		{"request_type": "MASTER_DATA", "entity_type": "SIZE", "entity_id": nil},
	}
	for i, d := range drafts {
		w := testutil.DoRequest(r, http.MethodPost, "/approvals", d, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("draft %d: expected 400, got %d", i, w.Code)
		}
		if msg := testutil.ParseResponse(w)["message"]; msg != "missing required fields" {
			t.Fatalf("draft %d: unexpected message %v", i, msg)
		}
	}
}

func TestDraftEntityID(t *testing.T) {
	cases := map[string]string{
		`7`:       "7",
		`"12|3"`:  "12|3",
		`" 42 "`:  "42",
		`null`:    "",
		``:        "",
		`"NEW"`:   "NEW",
		`1234567`: "1234567",
	}
	for raw, want := range cases {
		d := &ApprovalDraft{EntityID: []byte(raw)}
		if got := d.entityID(); got != want {
			t.Fatalf("entityID(%s) = %q, want %q", raw, got, want)
		}
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&service.Error{Kind: service.KindValidation}, 40001},
		{&service.Error{Kind: service.KindConflict}, 40002},
		{&service.Error{Kind: service.KindLocked}, 40003},
		{&service.Error{Kind: service.KindNotFound}, 40400},
		{&service.Error{Kind: service.KindExternal}, 50200},
		{errors.New("boom"), 50000},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.code {
			t.Fatalf("errorCode(%v) = %d, want %d", tc.err, got, tc.code)
		}
	}
}

func TestScreenPostRequiresCSRF(t *testing.T) {
	h := NewHandlers(&service.Services{}, notice.NewStore("", false), zap.NewNop())
	r := testutil.SetupRouter()
	if err := RegisterRoutes(r, h, testConfig()); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}

	form := url.Values{"code": {"XL"}, "name": {"Extra large"}}
	req, _ := http.NewRequest(http.MethodPost, "/master-data/basic-info/sizes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: testutil.AdminToken()})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: testutil.CSRFToken})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing _csrf: expected 400, got %d", w.Code)
	}

	form.Set(middleware.CSRFField, "forged")
	req, _ = http.NewRequest(http.MethodPost, "/master-data/basic-info/sizes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: testutil.AdminToken()})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: testutil.CSRFToken})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("mismatched _csrf: expected 403, got %d", w.Code)
	}
}

func TestScreenRequiresSession(t *testing.T) {
	h := NewHandlers(&service.Services{}, notice.NewStore("", false), zap.NewNop())
	r := testutil.SetupRouter()
	if err := RegisterRoutes(r, h, testConfig()); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	w := testutil.DoForm(r, "/master-data/basic-info/sizes", url.Values{"name": {"XL"}}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
