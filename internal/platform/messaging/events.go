package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys.
const (
	EventUserRegistered       = "user.registered"
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCancelled = "appointment.cancelled"
	EventPaymentCompleted     = "payment.completed"
	EventConsultationRecorded = "consultation.recorded"
)

// ServiceName identifies this service in published events.
const ServiceName = "mediwise"

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// ID returns the event id; RabbitPublisher uses it as the message id.
func (b BaseEvent) ID() string { return b.EventID }

// NewBaseEvent stamps a new event of the given type at now.
func NewBaseEvent(eventType string, now time.Time) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   now.UTC(),
		ServiceName: ServiceName,
	}
}

// UserRegisteredEvent is raised when an account is created.
type UserRegisteredEvent struct {
	BaseEvent
	Data UserRegisteredData `json:"data"`
}

type UserRegisteredData struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
	Method        string `json:"method"`
}

// AppointmentEvent is raised on booking and cancellation.
type AppointmentEvent struct {
	BaseEvent
	Data AppointmentData `json:"data"`
}

type AppointmentData struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	CancelledBy   string `json:"cancelled_by,omitempty"`
}

// PaymentCompletedEvent is raised when an appointment is paid.
type PaymentCompletedEvent struct {
	BaseEvent
	Data PaymentCompletedData `json:"data"`
}

type PaymentCompletedData struct {
	AppointmentID   string `json:"appointment_id"`
	PatientID       string `json:"patient_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// ConsultationRecordedEvent is raised when a doctor closes an appointment
// with a consultation.
type ConsultationRecordedEvent struct {
	BaseEvent
	Data ConsultationRecordedData `json:"data"`
}

type ConsultationRecordedData struct {
	ConsultationID string `json:"consultation_id"`
	AppointmentID  string `json:"appointment_id"`
	PatientID      string `json:"patient_id"`
	DoctorID       string `json:"doctor_id"`
	Prescriptions  int    `json:"prescriptions"`
}
