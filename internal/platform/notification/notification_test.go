package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
		Type:    TypeEmail,
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	_, _, err := eng.Render("nonexistent", nil)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("Render() = %v, want ErrTemplateNotFound", err)
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	data := map[string]string{
		"otp":            "123456",
		"ttl":            "10 minutes",
		"patient_name":   "Alice",
		"doctor_name":    "Dr. John Smith",
		"date":           "2026-03-02",
		"time":           "09:30",
		"payment_status": "pending",
		"lead":           "1 hour",
	}
	for _, id := range []string{
		TemplateOTPCode,
		TemplateAppointmentBooked,
		TemplatePaymentCompleted,
		TemplateAppointmentReminder,
		TemplateAppointmentCancelled,
	} {
		subject, body, err := eng.Render(id, data)
		if err != nil {
			t.Errorf("built-in template %q not found: %v", id, err)
			continue
		}
		if strings.Contains(subject+body, "{{") {
			t.Errorf("template %q left placeholders: %q / %q", id, subject, body)
		}
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	eng := NewTemplateEngine()
	_, body, err := eng.Render(TemplateOTPCode, map[string]string{"otp": "000111"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "{{ttl}}") {
		t.Errorf("missing keys should be left as-is, got %q", body)
	}
}

// ---------------------------------------------------------------------------
// Manager Tests
// ---------------------------------------------------------------------------

func newTestManager() (*Manager, *MockEmailSender, *MockSMSSender, *clock.Fake) {
	emailMock := &MockEmailSender{}
	smsMock := &MockSMSSender{}
	clk := clock.NewFake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	return NewManager(emailMock, smsMock, NewTemplateEngine(), clk), emailMock, smsMock, clk
}

func TestManager_SendEmail(t *testing.T) {
	mgr, emailMock, _, clk := newTestManager()

	n := &Notification{
		Type:      TypeEmail,
		Recipient: "alice@example.com",
		Subject:   "Hi",
		Body:      "Body",
	}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if n.Status != StatusSent {
		t.Errorf("status = %q, want %q", n.Status, StatusSent)
	}
	if !n.CreatedAt.Equal(clk.Now()) {
		t.Errorf("CreatedAt = %v, want %v", n.CreatedAt, clk.Now())
	}
	calls := emailMock.Calls()
	if len(calls) != 1 || calls[0].To != "alice@example.com" {
		t.Errorf("email calls = %+v", calls)
	}
}

func TestManager_SendSMS(t *testing.T) {
	mgr, _, smsMock, _ := newTestManager()
	n := &Notification{Type: TypeSMS, Recipient: "+15550100", Body: "code"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if calls := smsMock.Calls(); len(calls) != 1 || calls[0].To != "+15550100" {
		t.Errorf("sms calls = %+v", calls)
	}
}

func TestManager_SendFailedIsRecorded(t *testing.T) {
	mgr, emailMock, _, _ := newTestManager()
	emailMock.ShouldFail = true
	emailMock.FailError = "smtp down"

	n := &Notification{Type: TypeEmail, Recipient: "bob@example.com", Body: "x"}
	if err := mgr.Send(context.Background(), n); err == nil {
		t.Fatal("expected error")
	}
	if n.Status != StatusFailed || n.Error != "smtp down" {
		t.Errorf("status = %q, error = %q", n.Status, n.Error)
	}
	if _, err := mgr.GetNotification(context.Background(), n.ID); err != nil {
		t.Errorf("failed notification not recorded: %v", err)
	}
}

func TestManager_UnsupportedType(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	err := mgr.Send(context.Background(), &Notification{Type: "pigeon", Recipient: "x"})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Send() = %v, want ErrUnsupportedType", err)
	}
}

func TestManager_SendFromTemplateVia(t *testing.T) {
	mgr, emailMock, smsMock, _ := newTestManager()
	ctx := context.Background()

	n, err := mgr.SendFromTemplate(ctx, TemplateOTPCode, map[string]string{"otp": "482913", "ttl": "10 minutes"}, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if n.Type != TypeEmail || !strings.Contains(n.Body, "482913") {
		t.Errorf("email notification = %+v", n)
	}
	if len(emailMock.Calls()) != 1 {
		t.Errorf("expected one email")
	}

	n, err = mgr.SendFromTemplateVia(ctx, TypeSMS, TemplateOTPCode, map[string]string{"otp": "111222", "ttl": "10 minutes"}, "+15550100")
	if err != nil {
		t.Fatal(err)
	}
	if n.Type != TypeSMS || n.Subject != "" {
		t.Errorf("sms notification = %+v", n)
	}
	if calls := smsMock.Calls(); len(calls) != 1 || !strings.Contains(calls[0].Body, "111222") {
		t.Errorf("sms calls = %+v", calls)
	}
}

func TestManager_SendFromTemplateUnknown(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	n, err := mgr.SendFromTemplate(context.Background(), "nope", nil, "x")
	if n != nil || !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("SendFromTemplate() = %v, %v", n, err)
	}
}

func TestManager_GetNotFound(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	_, err := mgr.GetNotification(context.Background(), "missing")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("GetNotification() = %v, want ErrNotificationNotFound", err)
	}
}

func TestManager_ListByRecipientNewestFirst(t *testing.T) {
	mgr, _, _, clk := newTestManager()
	ctx := context.Background()
	for _, body := range []string{"first", "second", "third"} {
		mgr.Send(ctx, &Notification{Type: TypeEmail, Recipient: "List@Example.com", Body: body})
		clk.Advance(time.Minute)
	}
	mgr.Send(ctx, &Notification{Type: TypeEmail, Recipient: "other@example.com", Body: "other"})

	list := mgr.ListByRecipient(ctx, "list@example.com")
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].Body != "third" || list[2].Body != "first" {
		t.Errorf("order = %q, %q, %q", list[0].Body, list[1].Body, list[2].Body)
	}
	if all := mgr.ListByRecipient(ctx, ""); len(all) != 4 {
		t.Errorf("unfiltered len = %d, want 4", len(all))
	}
}

func TestManager_Retry(t *testing.T) {
	mgr, emailMock, _, _ := newTestManager()
	emailMock.ShouldFail = true
	emailMock.FailError = "temporary failure"

	n := &Notification{Type: TypeEmail, Recipient: "retry@example.com", Body: "Retry Body"}
	_ = mgr.Send(context.Background(), n)

	emailMock.ShouldFail = false
	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := mgr.GetNotification(context.Background(), n.ID)
	if got.Status != StatusSent {
		t.Errorf("status = %q, want %q after retry", got.Status, StatusSent)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
	if got.Error != "" {
		t.Errorf("error should be cleared after retry, got %q", got.Error)
	}
}

func TestManager_RetryNonFailed(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	n := &Notification{Type: TypeEmail, Recipient: "ok@example.com", Body: "OK"}
	_ = mgr.Send(context.Background(), n)

	if err := mgr.Retry(context.Background(), n.ID); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("Retry() = %v, want ErrNotRetryable", err)
	}
}

func TestManager_Stats(t *testing.T) {
	mgr, emailMock, _, _ := newTestManager()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = mgr.Send(ctx, &Notification{Type: TypeEmail, Recipient: "s@example.com", Body: "ok"})
	}
	emailMock.ShouldFail = true
	emailMock.FailError = "fail"
	for i := 0; i < 2; i++ {
		_ = mgr.Send(ctx, &Notification{Type: TypeEmail, Recipient: "s@example.com", Body: "fail"})
	}

	stats := mgr.NotificationStats(ctx)
	if stats[StatusSent] != 3 {
		t.Errorf("sent = %d, want 3", stats[StatusSent])
	}
	if stats[StatusFailed] != 2 {
		t.Errorf("failed = %d, want 2", stats[StatusFailed])
	}
}

func TestManager_ConcurrentSend(t *testing.T) {
	mgr, emailMock, _, _ := newTestManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "c@example.com", Body: "b"})
		}()
	}
	wg.Wait()
	if got := len(mgr.ListByRecipient(context.Background(), "c@example.com")); got != 50 {
		t.Errorf("recorded = %d, want 50", got)
	}
	if got := len(emailMock.Calls()); got != 50 {
		t.Errorf("email calls = %d, want 50", got)
	}
}

// ---------------------------------------------------------------------------
// Outbox Tests
// ---------------------------------------------------------------------------

func TestOutbox_RecordsAndTrims(t *testing.T) {
	o := NewOutbox(zerolog.Nop(), 2)
	ctx := context.Background()
	o.SendEmail(ctx, "a@example.com", "s", "one")
	o.SendSMS(ctx, "+1555", "two")
	o.SendEmail(ctx, "b@example.com", "s", "three")

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Body != "two" || msgs[0].Channel != TypeSMS {
		t.Errorf("oldest retained = %+v, want the sms", msgs[0])
	}
	if msgs[1].To != "b@example.com" {
		t.Errorf("newest = %+v", msgs[1])
	}
}

func TestOutbox_HidesBodiesByDefault(t *testing.T) {
	var buf strings.Builder
	o := NewOutbox(zerolog.New(&buf), 0)
	o.SendEmail(context.Background(), "a@example.com", "Your code", "secret 123456")
	if strings.Contains(buf.String(), "123456") {
		t.Errorf("body leaked into log: %s", buf.String())
	}

	buf.Reset()
	o.LogBodies = true
	o.SendEmail(context.Background(), "a@example.com", "Your code", "secret 654321")
	if !strings.Contains(buf.String(), "654321") {
		t.Errorf("expected body in log when LogBodies is set: %s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// Handler Tests
// ---------------------------------------------------------------------------

func setupHandler() (*Manager, *MockEmailSender, *echo.Echo) {
	mgr, emailMock, _, _ := newTestManager()
	e := echo.New()
	NewHandler(mgr).RegisterRoutes(e.Group("/api/v1"))
	return mgr, emailMock, e
}

func TestHandler_ListPaginated(t *testing.T) {
	mgr, _, e := setupHandler()
	for i := 0; i < 5; i++ {
		mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "p@example.com", Body: "b"})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?recipient=p@example.com&limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data    []Notification `json:"data"`
		Total   int            `json:"total"`
		HasMore bool           `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 5 || len(resp.Data) != 2 || !resp.HasMore {
		t.Errorf("resp = total %d, len %d, has_more %v", resp.Total, len(resp.Data), resp.HasMore)
	}
}

func TestHandler_GetNotification(t *testing.T) {
	mgr, _, e := setupHandler()
	n := &Notification{Type: TypeEmail, Recipient: "g@example.com", Body: "b"}
	mgr.Send(context.Background(), n)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/"+n.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_Retry(t *testing.T) {
	mgr, emailMock, e := setupHandler()
	emailMock.ShouldFail = true
	emailMock.FailError = "down"
	n := &Notification{Type: TypeEmail, Recipient: "r@example.com", Body: "b"}
	mgr.Send(context.Background(), n)
	emailMock.ShouldFail = false

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+n.ID+"/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Notification
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+n.ID+"/retry", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second retry status = %d, want 409", rec.Code)
	}
}
