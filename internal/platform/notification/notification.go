// Package notification delivers one-time codes, booking confirmations and
// appointment reminders over email or SMS, renders them from templates, and
// keeps every attempt in memory so it can be listed and retried.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// NotificationType represents the channel used to deliver a notification.
type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Built-in template ids.
const (
	TemplateOTPCode              = "otp-code"
	TemplateAppointmentBooked    = "appointment-booked"
	TemplatePaymentCompleted     = "payment-completed"
	TemplateAppointmentReminder  = "appointment-reminder"
	TemplateAppointmentCancelled = "appointment-cancelled"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrNotRetryable         = errors.New("notification is not in failed status")
	ErrUnsupportedType      = errors.New("unsupported notification type")
)

// ---------------------------------------------------------------------------
// Notification
// ---------------------------------------------------------------------------

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
	Type    NotificationType `json:"type"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateOTPCode,
			Name:    "Verification Code",
			Subject: "Your MediConnect verification code",
			Body:    "Your verification code is {{otp}}. It expires in {{ttl}}.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateAppointmentBooked,
			Name:    "Appointment Booked",
			Subject: "Appointment booked with {{doctor_name}}",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor_name}} on {{date}} at {{time}} is scheduled. Payment status: {{payment_status}}.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplatePaymentCompleted,
			Name:    "Payment Completed",
			Subject: "Payment received for your appointment on {{date}}",
			Body:    "Dear {{patient_name}}, we received your payment for the appointment with {{doctor_name}} on {{date}} at {{time}}.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateAppointmentReminder,
			Name:    "Appointment Reminder",
			Subject: "Appointment Reminder for {{patient_name}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with {{doctor_name}} (starts in {{lead}}).",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateAppointmentCancelled,
			Name:    "Appointment Cancelled",
			Subject: "Appointment on {{date}} cancelled",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor_name}} on {{date}} at {{time}} has been cancelled.",
			Type:    TypeEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Lookup returns a copy of the template with the given id.
func (e *TemplateEngine) Lookup(templateID string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[templateID]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	t, ok := e.Lookup(templateID)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager orchestrates sending, storage, and retrieval of notifications.
type Manager struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine
	clock       clock.Clock

	mu            sync.RWMutex
	notifications map[string]*Notification
	order         []string
}

// NewManager constructs a Manager. A nil clock means the system clock.
func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine, clk clock.Clock) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		emailSender:   email,
		smsSender:     sms,
		templates:     tpl,
		clock:         clk,
		notifications: make(map[string]*Notification),
	}
}

// Send dispatches a notification through the appropriate channel, assigns an ID
// and timestamps, and records the result. The notification is recorded even
// when delivery fails.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = m.clock.Now().UTC()
	n.Status = StatusPending

	sendErr := m.deliver(ctx, n)

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.order = append(m.order, n.ID)
	m.mu.Unlock()

	return sendErr
}

// deliver attempts one delivery and updates status fields in place. Callers
// that share n must hold m.mu.
func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	var sendErr error
	switch n.Type {
	case TypeEmail:
		sendErr = m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		sendErr = m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("%w: %s", ErrUnsupportedType, n.Type)
	}

	n.Attempts++
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
		return sendErr
	}
	n.Status = StatusSent
	n.Error = ""
	sentAt := m.clock.Now().UTC()
	n.SentAt = &sentAt
	return nil
}

// SendFromTemplate renders a template and sends the result over the
// template's own channel.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	return m.SendFromTemplateVia(ctx, "", templateID, data, recipient)
}

// SendFromTemplateVia renders a template and sends it over channel, or over the
// template's channel when channel is empty.
func (m *Manager) SendFromTemplateVia(ctx context.Context, channel NotificationType, templateID string, data map[string]string, recipient string) (*Notification, error) {
	tpl, ok := m.templates.Lookup(templateID)
	if !ok {
		return nil, fmt.Errorf("render template: %w: %q", ErrTemplateNotFound, templateID)
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	if channel == "" {
		channel = tpl.Type
	}

	n := &Notification{
		Type:         channel,
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if channel == TypeSMS {
		n.Subject = ""
	}

	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// GetNotification retrieves a notification by ID.
func (m *Manager) GetNotification(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotificationNotFound, id)
	}
	cp := *n
	return &cp, nil
}

// ListByRecipient returns notifications for recipient, newest first. An empty
// recipient lists everything.
func (m *Manager) ListByRecipient(_ context.Context, recipient string) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Notification, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		n := m.notifications[m.order[i]]
		if recipient == "" || strings.EqualFold(n.Recipient, recipient) {
			cp := *n
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotificationNotFound, id)
	}
	if n.Status != StatusFailed {
		return fmt.Errorf("%w: %q (current: %s)", ErrNotRetryable, id, n.Status)
	}
	return m.deliver(ctx, n)
}

// NotificationStats returns counts of notifications grouped by status.
func (m *Manager) NotificationStats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
