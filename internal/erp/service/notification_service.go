package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/bitfantasy/backoffice/internal/shared/mailer"
	"go.uber.org/zap"
)

// ApprovalNotice payload handed to the dispatcher after a submission
type ApprovalNotice struct {
	ApprovalRequestID int64
	RequestType       string
	EntityType        string
	EntityID          string
	Summary           string
	OldValue          json.RawMessage
	NewValue          json.RawMessage
	RequestedByName   string
	BranchID          *int64
}

// MailSender outbound mail transport
type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// RecipientSource admin addresses
type RecipientSource interface {
	ActiveAdminEmails(ctx context.Context) ([]string, error)
}

// NotificationService mails approval-pending notices to admins. Delivery
// failures are logged and never reach the caller.
type NotificationService struct {
	recipients RecipientSource
	sender     MailSender
	logger     *zap.Logger
	timeout    time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewNotificationService a nil sender disables delivery
func NewNotificationService(recipients RecipientSource, sender MailSender, concurrency int, timeout time.Duration, logger *zap.Logger) *NotificationService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		recipients: recipients,
		sender:     sender,
		logger:     logger,
		timeout:    timeout,
		sem:        make(chan struct{}, concurrency),
	}
}

// Dispatch sends in the background; at most `concurrency` sends run at once
func (s *NotificationService) Dispatch(n ApprovalNotice) {
	if s.sender == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.NotifyApprovalPending(ctx, n)
	}()
}

// Wait blocks until every dispatched notice has finished
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// NotifyApprovalPending synchronous send; returns silently without a
// transport or without recipients
func (s *NotificationService) NotifyApprovalPending(ctx context.Context, n ApprovalNotice) {
	if s.sender == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("approval_request_id", n.ApprovalRequestID),
		zap.String("entity_type", n.EntityType),
	}

	to, err := s.recipients.ActiveAdminEmails(ctx)
	if err != nil {
		s.logger.Error("load admin recipients failed", append(fields, zap.Error(err))...)
		return
	}
	if len(to) == 0 {
		return
	}

	msg := ComposeApprovalMail(n)
	msg.To = to
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("approval notification failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("approval notification sent", append(fields, zap.Int("recipients", len(to)))...)
}

// prettyJSON 2-space indented; empty and null render as "null"
func prettyJSON(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ComposeApprovalMail bilingual subject with text and HTML bodies
func ComposeApprovalMail(n ApprovalNotice) mailer.Message {
	subject := i18n.Both(i18n.ApprovalMailSubject, n.RequestType, n.EntityType)
	intro := i18n.Both(i18n.ApprovalMailIntro)

	branch := "-"
	if n.BranchID != nil {
		branch = fmt.Sprintf("%d", *n.BranchID)
	}
	rows := [][2]string{
		{"Request ID", fmt.Sprintf("%d", n.ApprovalRequestID)},
		{"Request type", n.RequestType},
		{"Entity", n.EntityType + " " + n.EntityID},
		{"Summary", n.Summary},
		{"Requested by", n.RequestedByName},
		{"Branch", branch},
	}
	oldValue := prettyJSON(n.OldValue)
	newValue := prettyJSON(n.NewValue)

	var text strings.Builder
	text.WriteString(intro + "\n\n")
	for _, r := range rows {
		fmt.Fprintf(&text, "%s: %s\n", r[0], r[1])
	}
	fmt.Fprintf(&text, "\nOld value:\n%s\n\nNew value:\n%s\n", oldValue, newValue)

	var body strings.Builder
	body.WriteString("<html><body>")
	fmt.Fprintf(&body, "<p>%s</p><table>", html.EscapeString(intro))
	for _, r := range rows {
		fmt.Fprintf(&body, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", html.EscapeString(r[0]), html.EscapeString(r[1]))
	}
	body.WriteString("</table>")
	fmt.Fprintf(&body, "<h4>Old value</h4><pre>%s</pre>", html.EscapeString(oldValue))
	fmt.Fprintf(&body, "<h4>New value</h4><pre>%s</pre>", html.EscapeString(newValue))
	body.WriteString("</body></html>")

	return mailer.Message{
		Subject: subject,
		Text:    text.String(),
		HTML:    body.String(),
	}
}
