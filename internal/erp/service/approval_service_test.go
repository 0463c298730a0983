package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"gorm.io/datatypes"
)

type fakeApprovalStore struct {
	mu        sync.Mutex
	rows      []*entity.ApprovalRequest
	policy    *entity.ApprovalPolicy
	createErr error
	events    *[]string
}

func (f *fakeApprovalStore) Create(_ context.Context, req *entity.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	req.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, req)
	if f.events != nil {
		*f.events = append(*f.events, "insert")
	}
	return nil
}

func (f *fakeApprovalStore) FindByID(_ context.Context, id int64) (*entity.ApprovalRequest, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("missing")
}

func (f *fakeApprovalStore) List(context.Context, string, int, int) ([]entity.ApprovalRequest, int64, error) {
	return nil, 0, nil
}

func (f *fakeApprovalStore) FindPolicy(_ context.Context, roleID int64, scopeKey, action string) (*entity.ApprovalPolicy, error) {
	if f.policy != nil && f.policy.RoleID == roleID && f.policy.ScopeKey == scopeKey && f.policy.Action == action {
		return f.policy, nil
	}
	return nil, nil
}

type fakeActivity struct {
	logs   []*entity.ActivityLog
	events *[]string
}

func (f *fakeActivity) Create(_ context.Context, log *entity.ActivityLog) error {
	f.logs = append(f.logs, log)
	if f.events != nil {
		*f.events = append(*f.events, "log")
	}
	return nil
}

type fakeNotifier struct {
	notices []ApprovalNotice
	events  *[]string
}

func (f *fakeNotifier) Dispatch(n ApprovalNotice) {
	f.notices = append(f.notices, n)
	if f.events != nil {
		*f.events = append(*f.events, "notify")
	}
}

func newFakeApproval() (*ApprovalService, *fakeApprovalStore, *fakeActivity, *fakeNotifier, *[]string) {
	events := &[]string{}
	store := &fakeApprovalStore{events: events}
	activity := &fakeActivity{events: events}
	notifier := &fakeNotifier{events: events}
	return NewApprovalService(store, activity, notifier, nil, nil), store, activity, notifier, events
}

func TestDecideApproval(t *testing.T) {
	policy := &entity.ApprovalPolicy{RoleID: 7, ScopeKey: "master_data.basic_info.units", Action: ActionCreate, RequiresApproval: true}
	clerk := Actor{UserID: 2, RoleID: 7, Roles: []string{"clerk"}}
	admin := Actor{UserID: 1, RoleID: 7, Roles: []string{" Admin "}}

	tests := []struct {
		name   string
		policy *entity.ApprovalPolicy
		actor  Actor
		scope  string
		action string
		want   Decision
	}{
		{"policy requires", policy, clerk, "master_data.basic_info.units", ActionCreate, Require},
		{"admin bypass", policy, admin, "master_data.basic_info.units", ActionCreate, Skip},
		{"no policy", nil, clerk, "master_data.basic_info.units", ActionCreate, Skip},
		{"other action", policy, clerk, "master_data.basic_info.units", ActionDelete, Skip},
		{"other role", policy, Actor{UserID: 3, RoleID: 8}, "master_data.basic_info.units", ActionCreate, Skip},
		{"policy off", &entity.ApprovalPolicy{RoleID: 7, ScopeKey: "s", Action: ActionEdit}, clerk, "s", ActionEdit, Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideApproval(tt.policy, tt.actor, tt.scope, tt.action); got != tt.want {
				t.Fatalf("DecideApproval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestTypeFromScope(t *testing.T) {
	cases := map[string]string{
		"master_data.basic_info.uom_conversions": "MASTER_DATA",
		"purchase":                               "PURCHASE",
		"":                                       "",
	}
	for in, want := range cases {
		if got := RequestTypeFromScope(in); got != want {
			t.Fatalf("RequestTypeFromScope(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEntityIDString(t *testing.T) {
	if got := EntityIDString(int64(42)); got != "42" {
		t.Fatalf("got %q", got)
	}
	if got := EntityIDString(nil); got != NewEntityID {
		t.Fatalf("got %q", got)
	}
	if got := EntityIDString("3|4"); got != "3|4" {
		t.Fatalf("got %q", got)
	}
}

func TestSubmitOrdersInsertLogNotify(t *testing.T) {
	svc, store, activity, notifier, events := newFakeApproval()

	req, err := svc.Submit(context.Background(), Submission{
		RequestedBy: 9,
		Requester:   "Clerk",
		RequestType: "MASTER_DATA",
		EntityType:  UOMConversionEntityType,
		EntityID:    NewEntityID,
		Summary:     "uom conversion create",
		NewValue:    map[string]interface{}{"from_uom_id": 1, "to_uom_id": 2, "factor": json.Number("12")},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != entity.ApprovalStatusPending || req.RequestedBy != 9 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(store.rows))
	}
	if got := string(store.rows[0].NewValue); got != `{"factor":12,"from_uom_id":1,"to_uom_id":2}` {
		t.Fatalf("new_value = %s", got)
	}
	if store.rows[0].OldValue != nil {
		t.Fatalf("old_value should be NULL, got %s", store.rows[0].OldValue)
	}
	if len(activity.logs) != 1 || activity.logs[0].Action != ActivitySubmit {
		t.Fatalf("expected one SUBMIT log, got %+v", activity.logs)
	}
	var ctxJSON map[string]interface{}
	if err := json.Unmarshal(activity.logs[0].ContextJSON, &ctxJSON); err != nil {
		t.Fatalf("context_json: %v", err)
	}
	if ctxJSON["entity_type"] != UOMConversionEntityType {
		t.Fatalf("context_json missing entity_type: %v", ctxJSON)
	}
	if len(notifier.notices) != 1 || notifier.notices[0].ApprovalRequestID != req.ID {
		t.Fatalf("expected one notice for request %d, got %+v", req.ID, notifier.notices)
	}
	want := []string{"insert", "log", "notify"}
	if len(*events) != len(want) {
		t.Fatalf("events = %v", *events)
	}
	for i := range want {
		if (*events)[i] != want[i] {
			t.Fatalf("events = %v, want %v", *events, want)
		}
	}
}

func TestSubmitInsertFailureSkipsLogAndNotify(t *testing.T) {
	svc, store, activity, notifier, _ := newFakeApproval()
	store.createErr = errors.New("connection reset")

	_, err := svc.Submit(context.Background(), Submission{
		RequestedBy: 9, RequestType: "MASTER_DATA", EntityType: "UOM", EntityID: "3",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(activity.logs) != 0 || len(notifier.notices) != 0 {
		t.Fatalf("log/notify ran after failed insert: %d logs, %d notices", len(activity.logs), len(notifier.notices))
	}
}

func TestSubmitMissingFields(t *testing.T) {
	svc, store, _, _, _ := newFakeApproval()
	_, err := svc.Submit(context.Background(), Submission{RequestType: "MASTER_DATA", EntityType: "UOM"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(store.rows) != 0 {
		t.Fatal("no row should be written")
	}
}

func TestSubmitDoesNotDedupe(t *testing.T) {
	svc, store, _, _, _ := newFakeApproval()
	sub := Submission{RequestedBy: 2, RequestType: "MASTER_DATA", EntityType: "SIZE", EntityID: "5"}
	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(context.Background(), sub); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(store.rows))
	}
}

func TestHandleScreenApproval(t *testing.T) {
	scope := ScopeKey(SectionBasicInfo, "uom-conversions")
	svc, store, _, _, _ := newFakeApproval()
	store.policy = &entity.ApprovalPolicy{RoleID: 5, ScopeKey: scope, Action: ActionCreate, RequiresApproval: true}

	sa := ScreenApproval{ScopeKey: scope, Action: ActionCreate, EntityType: UOMConversionEntityType, EntityID: NewEntityID}

	res, err := svc.HandleScreenApproval(context.Background(), Actor{UserID: 1, RoleID: 5, Roles: []string{"admin"}}, sa)
	if err != nil || res.Queued {
		t.Fatalf("admin should pass through: %+v %v", res, err)
	}

	res, err = svc.HandleScreenApproval(context.Background(), Actor{UserID: 2, RoleID: 6}, sa)
	if err != nil || res.Queued {
		t.Fatalf("role without policy should pass through: %+v %v", res, err)
	}

	res, err = svc.HandleScreenApproval(context.Background(), Actor{UserID: 3, RoleID: 5, BranchID: 4}, sa)
	if err != nil {
		t.Fatalf("HandleScreenApproval: %v", err)
	}
	if !res.Queued || res.ApprovalRequestID == 0 {
		t.Fatalf("expected queued result, got %+v", res)
	}
	row := store.rows[0]
	if row.RequestType != "MASTER_DATA" || row.EntityID != NewEntityID || row.BranchID == nil || *row.BranchID != 4 {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestReplayAction(t *testing.T) {
	cases := []struct {
		entityID string
		value    string
		want     string
	}{
		{NewEntityID, `{"name":"x"}`, replayCreate},
		{"4", ``, replayDelete},
		{"4", `null`, replayDelete},
		{"4", `{"is_active":false}`, replaySetActive},
		{"4", `{"is_active":false,"name":"x"}`, replayUpdate},
	}
	for _, c := range cases {
		req := &entity.ApprovalRequest{EntityID: c.entityID, NewValue: datatypes.JSON(c.value)}
		got, _, err := replayAction(req)
		if err != nil {
			t.Fatalf("replayAction(%s, %s): %v", c.entityID, c.value, err)
		}
		if got != c.want {
			t.Fatalf("replayAction(%s, %s) = %s, want %s", c.entityID, c.value, got, c.want)
		}
	}
}

type fakePublisher struct {
	events   []string
	payloads []interface{}
}

func (f *fakePublisher) Publish(eventType string, payload interface{}) {
	f.events = append(f.events, eventType)
	f.payloads = append(f.payloads, payload)
}

func TestSubmitPublishesLiveEvent(t *testing.T) {
	svc, _, _, _, _ := newFakeApproval()
	pub := &fakePublisher{}
	svc.SetEventPublisher(pub)

	req, err := svc.Submit(context.Background(), Submission{
		RequestedBy: 9,
		RequestType: "MASTER_DATA",
		EntityType:  "SIZE",
		EntityID:    "4",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0] != EventApprovalSubmitted {
		t.Fatalf("events = %v", pub.events)
	}
	payload, _ := pub.payloads[0].(map[string]interface{})
	if payload["approval_request_id"] != req.ID || payload["entity_id"] != "4" {
		t.Fatalf("unexpected payload %v", payload)
	}
}
