package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/backoffice/internal/shared/mailer"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type staticRecipients []string

func (s staticRecipients) ActiveAdminEmails(context.Context) ([]string, error) {
	return []string(s), nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func sampleNotice() ApprovalNotice {
	branch := int64(3)
	return ApprovalNotice{
		ApprovalRequestID: 17,
		RequestType:       "MASTER_DATA",
		EntityType:        "UOM",
		EntityID:          "5",
		Summary:           `<script>alert("x")</script>`,
		OldValue:          json.RawMessage(`{"code":"PCS"}`),
		NewValue:          json.RawMessage(`{"code":"PIECE","name":"A & B"}`),
		RequestedByName:   "Ali <ali@corp>",
		BranchID:          &branch,
	}
}

func TestComposeApprovalMail(t *testing.T) {
	msg := ComposeApprovalMail(sampleNotice())

	if !strings.HasPrefix(msg.Subject, "Approval pending: MASTER_DATA UOM / ") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if strings.Contains(msg.HTML, "<script>") || !strings.Contains(msg.HTML, "&lt;script&gt;") {
		t.Fatal("summary not escaped in HTML body")
	}
	if !strings.Contains(msg.HTML, "Ali &lt;ali@corp&gt;") {
		t.Fatal("requester not escaped in HTML body")
	}
	if !strings.Contains(msg.HTML, "A &amp; B") {
		t.Fatal("new value not escaped in HTML body")
	}
	pretty := "{\n  \"code\": \"PIECE\",\n  \"name\": \"A & B\"\n}"
	if !strings.Contains(msg.Text, pretty) {
		t.Fatalf("text body lacks 2-space JSON:\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, "Branch: 3") {
		t.Fatalf("text body lacks branch:\n%s", msg.Text)
	}
}

func TestPrettyJSONNull(t *testing.T) {
	if got := prettyJSON(nil); got != "null" {
		t.Fatalf("prettyJSON(nil) = %q", got)
	}
}

func TestNotifyWithoutRecipientsIsSilent(t *testing.T) {
	sender := &recordingSender{}
	svc := NewNotificationService(staticRecipients(nil), sender, 1, time.Second, nil)
	svc.NotifyApprovalPending(context.Background(), sampleNotice())
	if len(sender.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(sender.sent))
	}
}

func TestNotifyWithoutSenderIsSilent(t *testing.T) {
	svc := NewNotificationService(staticRecipients{"a@corp.pk"}, nil, 1, time.Second, nil)
	svc.Dispatch(sampleNotice())
	svc.Wait()
}

func TestNotifyFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sender := &recordingSender{err: errors.New("smtp down")}
	svc := NewNotificationService(staticRecipients{"a@corp.pk"}, sender, 1, time.Second, zap.New(core))

	svc.NotifyApprovalPending(context.Background(), sampleNotice())

	entries := logs.FilterMessage("approval notification failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["approval_request_id"] != int64(17) || fields["entity_type"] != "UOM" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
	if _, ok := fields["error"]; !ok {
		t.Fatalf("missing error field: %v", fields)
	}
}

func TestDispatchSendsInBackground(t *testing.T) {
	sender := &recordingSender{}
	svc := NewNotificationService(staticRecipients{"a@corp.pk", "b@corp.pk"}, sender, 2, time.Second, nil)

	for i := 0; i < 5; i++ {
		svc.Dispatch(sampleNotice())
	}
	svc.Wait()

	if len(sender.sent) != 5 {
		t.Fatalf("expected 5 mails, got %d", len(sender.sent))
	}
	if got := sender.sent[0].To; len(got) != 2 {
		t.Fatalf("recipients = %v", got)
	}
}

func TestFilterAdminEmails(t *testing.T) {
	raw := []string{
		" Ops@Corp.pk ",
		"ops@corp.pk",
		"not-an-email",
		"",
		"dev@example.com",
		"qa@EXAMPLE.org",
		"x@example.net",
		"ops@mail.example.com",
		"a@x.EXAMPLE.org",
		"two words@corp.pk",
		"finance@corp.pk",
	}
	got := FilterAdminEmails(raw)
	want := []string{"Ops@Corp.pk", "finance@corp.pk"}
	if len(got) != len(want) {
		t.Fatalf("FilterAdminEmails = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FilterAdminEmails = %v, want %v", got, want)
		}
	}
}

func TestAdminDirectoryFilters(t *testing.T) {
	d := NewAdminDirectory(staticRecipients{"a@corp.pk", "A@corp.pk", "b@example.com"})
	got, err := d.ActiveAdminEmails(context.Background())
	if err != nil {
		t.Fatalf("ActiveAdminEmails: %v", err)
	}
	if len(got) != 1 || got[0] != "a@corp.pk" {
		t.Fatalf("got %v", got)
	}
}
