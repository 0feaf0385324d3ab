package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Outbox
// ---------------------------------------------------------------------------

// Message is one delivery accepted by the Outbox.
type Message struct {
	Channel NotificationType `json:"channel"`
	To      string           `json:"to"`
	Subject string           `json:"subject,omitempty"`
	Body    string           `json:"body"`
}

// Outbox stands in for real email and SMS gateways. It accepts every message,
// logs it and keeps the most recent ones in memory. Bodies carry one-time
// codes, so they are logged only when LogBodies is set.
type Outbox struct {
	logger    zerolog.Logger
	LogBodies bool
	capacity  int

	mu       sync.Mutex
	messages []Message
}

// NewOutbox returns an Outbox keeping at most capacity messages. A
// non-positive capacity keeps 1000.
func NewOutbox(logger zerolog.Logger, capacity int) *Outbox {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Outbox{
		logger:   logger.With().Str("component", "outbox").Logger(),
		capacity: capacity,
	}
}

func (o *Outbox) SendEmail(_ context.Context, to, subject, body string) error {
	o.record(Message{Channel: TypeEmail, To: to, Subject: subject, Body: body})
	return nil
}

func (o *Outbox) SendSMS(_ context.Context, to, body string) error {
	o.record(Message{Channel: TypeSMS, To: to, Body: body})
	return nil
}

func (o *Outbox) record(msg Message) {
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	if len(o.messages) > o.capacity {
		o.messages = o.messages[len(o.messages)-o.capacity:]
	}
	o.mu.Unlock()

	evt := o.logger.Info().
		Str("channel", string(msg.Channel)).
		Str("to", msg.To).
		Str("subject", msg.Subject)
	if o.LogBodies {
		evt = evt.Str("body", msg.Body)
	}
	evt.Msg("message delivered")
}

// Messages returns a copy of the retained messages, oldest first.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// ---------------------------------------------------------------------------
// Mock Senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
