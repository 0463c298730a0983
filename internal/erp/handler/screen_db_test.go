package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
	"github.com/bitfantasy/backoffice/internal/erp/service"
	"github.com/bitfantasy/backoffice/internal/erp/testutil"
	"github.com/bitfantasy/backoffice/internal/middleware"
	"github.com/bitfantasy/backoffice/internal/shared/notice"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupScreens(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testConfig()
	svc := service.NewServices(db, repository.NewRepositories(db), nil, cfg, zap.NewNop())
	t.Cleanup(svc.Notification.Wait)

	r := testutil.SetupRouter()
	if err := RegisterRoutes(r, NewHandlers(svc, notice.NewStore("", false), zap.NewNop()), cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r, db
}

// clerkToken non-admin whose role requires approval for scope/action
func clerkToken(t *testing.T, db *gorm.DB, scopeKey string, actions ...string) (string, *entity.User) {
	t.Helper()
	user := testutil.SeedUser(t, db, "Clerk", "clerk@corp.pk", "active", "clerk")
	for _, a := range actions {
		testutil.SeedPolicy(t, db, *user.PrimaryRoleID, scopeKey, a)
	}
	token := testutil.GenerateTestToken(testutil.TokenUser{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		BranchID: 1,
		RoleID:   *user.PrimaryRoleID,
		Roles:    []string{"clerk"},
	})
	return token, user
}

func count(t *testing.T, db *gorm.DB, table, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func hasCookie(w *httptest.ResponseRecorder, name string) bool {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name && ck.Value != "" {
			return true
		}
	}
	return false
}

func conversionForm(from, to int64) url.Values {
	return url.Values{
		"from_uom_id": {fmt.Sprint(from)},
		"to_uom_id":   {fmt.Sprint(to)},
		"factor":      {"12"},
	}
}

func TestConversionPostQueuedForPolicyUser(t *testing.T) {
	r, db := setupScreens(t)
	pcs := testutil.SeedMaster(t, db, "uoms", "PCS", "Pieces")
	dzn := testutil.SeedMaster(t, db, "uoms", "DZN", "Dozen")
	token, user := clerkToken(t, db, "master_data.basic_info.uom_conversions", service.ActionCreate)

	w := testutil.DoForm(r, UOMConversionsPath, conversionForm(dzn, pcs), token)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != UOMConversionsPath {
		t.Fatalf("expected redirect to %s, got %s", UOMConversionsPath, loc)
	}
	if !hasCookie(w, notice.NoticeCookie) {
		t.Fatal("expected approval notice cookie")
	}

	var reqs []entity.ApprovalRequest
	db.Find(&reqs)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 approval request, got %d", len(reqs))
	}
	got := reqs[0]
	if got.Status != entity.ApprovalStatusPending || got.EntityType != "UOM_CONVERSION" ||
		got.EntityID != "NEW" || got.RequestType != "MASTER_DATA" || got.RequestedBy != user.ID {
		t.Fatalf("unexpected request: %+v", got)
	}
	if n := count(t, db, "uom_conversions", ""); n != 0 {
		t.Fatalf("write must wait for approval, found %d conversions", n)
	}
	if n := count(t, db, "activity_logs", "action = ?", service.ActivitySubmit); n != 1 {
		t.Fatalf("expected 1 SUBMIT log, got %d", n)
	}
}

func TestConversionPostAdminWritesDirectly(t *testing.T) {
	r, db := setupScreens(t)
	pcs := testutil.SeedMaster(t, db, "uoms", "PCS", "Pieces")
	dzn := testutil.SeedMaster(t, db, "uoms", "DZN", "Dozen")

	w := testutil.DoForm(r, UOMConversionsPath, conversionForm(dzn, pcs), testutil.AdminToken())
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if n := count(t, db, "uom_conversions", ""); n != 1 {
		t.Fatalf("expected 1 conversion, got %d", n)
	}
	if n := count(t, db, "approval_requests", ""); n != 0 {
		t.Fatalf("admin writes skip approval, got %d requests", n)
	}

	// duplicate pair re-opens the modal through the flash cookie
	w = testutil.DoForm(r, UOMConversionsPath, conversionForm(dzn, pcs), testutil.AdminToken())
	if w.Code != http.StatusFound || !hasCookie(w, notice.FlashCookie) {
		t.Fatalf("expected redirect with flash, got %d", w.Code)
	}
	if n := count(t, db, "uom_conversions", ""); n != 1 {
		t.Fatalf("duplicate must not insert, got %d", n)
	}
}

func readFlash(t *testing.T, w *httptest.ResponseRecorder) notice.Flash {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name != notice.FlashCookie || ck.Value == "" {
			continue
		}
		raw, err := url.QueryUnescape(ck.Value)
		if err != nil {
			t.Fatalf("unescape flash: %v", err)
		}
		var f notice.Flash
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			t.Fatalf("decode flash %q: %v", raw, err)
		}
		return f
	}
	t.Fatal("expected flash cookie")
	return notice.Flash{}
}

func TestUnitCodeRenameLockedReopensEditModal(t *testing.T) {
	r, db := setupScreens(t)
	pcs := testutil.SeedMaster(t, db, "uoms", "PCS", "Pieces")
	testutil.SeedItem(t, db, "RM_THREAD", "Thread", entity.ItemTypeRM, &pcs)
	unitsPath := "/master-data/basic-info/units"

	w := testutil.DoForm(r, fmt.Sprintf("%s/%d", unitsPath, pcs), url.Values{"code": {"PIECE"}, "name": {"Pieces"}}, testutil.AdminToken())
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != unitsPath {
		t.Fatalf("expected redirect to %s, got %s", unitsPath, loc)
	}
	f := readFlash(t, w)
	if f.ModalMode != "edit" || f.Error != "unit code locked" {
		t.Fatalf("unexpected flash: %+v", f)
	}
	if n := count(t, db, "uoms", "code = ?", "PCS"); n != 1 {
		t.Fatalf("locked code must not change, %d rows still PCS", n)
	}
	if n := count(t, db, "uoms", "code = ?", "PIECE"); n != 0 {
		t.Fatalf("locked code was renamed")
	}
}

func TestScreenJSONClientGets202(t *testing.T) {
	r, db := setupScreens(t)
	token, _ := clerkToken(t, db, "master_data.basic_info.sizes", service.ActionCreate)

	form := url.Values{"code": {"XL"}, "name": {"Extra large"}, "name_ur": {"بہت بڑا"}, middleware.CSRFField: {testutil.CSRFToken}}
	req, _ := http.NewRequest(http.MethodPost, "/master-data/basic-info/sizes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: token})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: testutil.CSRFToken})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	body := testutil.ParseResponse(w)
	if body["status"] != "PENDING" {
		t.Fatalf("expected PENDING, got %v", body)
	}
	if id, _ := body["approval_request_id"].(float64); id <= 0 {
		t.Fatalf("expected approval_request_id, got %v", body["approval_request_id"])
	}
	if n := count(t, db, "sizes", ""); n != 0 {
		t.Fatalf("expected no size row before approval, got %d", n)
	}
}

func TestApprovalAPIBlockingSubmission(t *testing.T) {
	r, db := setupScreens(t)
	token, _ := clerkToken(t, db, "master_data.basic_info.sizes")

	w := testutil.DoRequest(r, http.MethodPost, "/api/v1/approvals", map[string]interface{}{
		"request_type": "MASTER_DATA",
		"entity_type":  "SIZE",
		"entity_id":    42,
		"summary":      "rename size",
		"new_value":    map[string]interface{}{"name": "XXL"},
		"block":        true,
	}, token)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var req entity.ApprovalRequest
	if err := db.First(&req).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if req.EntityID != "42" || req.Status != entity.ApprovalStatusPending || req.BranchID == nil || *req.BranchID != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}

	w = testutil.DoRequest(r, http.MethodPost, "/api/v1/approvals", map[string]interface{}{
		"request_type": "MASTER_DATA",
		"entity_type":  "SIZE",
		"entity_id":    "43",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("non-blocking submission: expected 201, got %d", w.Code)
	}
}

func TestApprovalAPIApproveReplays(t *testing.T) {
	r, db := setupScreens(t)
	pcs := testutil.SeedMaster(t, db, "uoms", "PCS", "Pieces")
	dzn := testutil.SeedMaster(t, db, "uoms", "DZN", "Dozen")
	token, _ := clerkToken(t, db, "master_data.basic_info.uom_conversions", service.ActionCreate)

	if w := testutil.DoForm(r, UOMConversionsPath, conversionForm(dzn, pcs), token); w.Code != http.StatusFound {
		t.Fatalf("submit: expected 302, got %d", w.Code)
	}
	var pending entity.ApprovalRequest
	if err := db.First(&pending).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	path := fmt.Sprintf("/api/v1/approvals/%d/approve", pending.ID)

	if w := testutil.DoRequest(r, http.MethodPost, path, nil, token); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin approve: expected 403, got %d", w.Code)
	}

	w := testutil.DoRequest(r, http.MethodPost, path, map[string]string{"note": "ok"}, testutil.AdminToken())
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if n := count(t, db, "uom_conversions", "from_uom_id = ? AND to_uom_id = ?", dzn, pcs); n != 1 {
		t.Fatalf("expected replayed conversion, got %d", n)
	}

	w = testutil.DoRequest(r, http.MethodPost, path, nil, testutil.AdminToken())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second decision: expected 400, got %d", w.Code)
	}

	w = testutil.DoRequest(r, http.MethodGet, "/api/v1/approvals?status=approved", nil, testutil.AdminToken())
	data, _ := testutil.ParseResponse(w)["data"].(map[string]interface{})
	items, _ := data["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("expected 1 approved request, got %d", len(items))
	}
}

func TestSKUScreenBulkGenerate(t *testing.T) {
	r, db := setupScreens(t)
	item := testutil.SeedItem(t, db, "FG_SHIRT", "Shirt", "FG", nil)
	m := testutil.SeedMaster(t, db, "sizes", "M", "M")
	l := testutil.SeedMaster(t, db, "sizes", "L", "L")
	a := testutil.SeedMaster(t, db, "grades", "A", "A")

	form := url.Values{
		"item_id":           {fmt.Sprint(item.ID)},
		"size_ids":          {fmt.Sprint(m), fmt.Sprint(l)},
		"grade_ids":         {fmt.Sprint(a)},
		"sale_rate_default": {"500"},
	}
	w := testutil.DoForm(r, SKUsPath, form, testutil.AdminToken())
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if n := count(t, db, "skus", ""); n != 2 {
		t.Fatalf("expected 2 SKUs, got %d", n)
	}
	if n := count(t, db, "skus", "sku_code = ?", "FG_SHIRT-M-A"); n != 1 {
		t.Fatal("expected SKU FG_SHIRT-M-A")
	}
}
