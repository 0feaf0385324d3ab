package scheduling

import (
	"fmt"
	"time"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment statuses. Nothing moves an appointment to PaymentRefunded.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentRefunded  = "refunded"
)

// Layouts of Appointment.Date and Appointment.Time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Appointment struct {
	ID               string `json:"id"`
	PatientID        string `json:"patientId"`
	DoctorID         string `json:"doctorId"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Status           string `json:"status"`
	PaymentStatus    string `json:"paymentStatus"`
	Symptoms         string `json:"symptoms,omitempty"`
	Notes            string `json:"notes,omitempty"`
	FollowUpRequired bool   `json:"followUpRequired,omitempty"`
	PaymentMethodID  string `json:"paymentMethodId,omitempty"`
	// RemindersSent lists the reminder lead times already delivered.
	RemindersSent []string `json:"remindersSent,omitempty"`
}

// StartsAt returns the appointment start in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	return t, nil
}

func (a *Appointment) reminderSent(lead string) bool {
	for _, l := range a.RemindersSent {
		if l == lead {
			return true
		}
	}
	return false
}

// BookingRequest is the input of BookAppointment. The patient is the caller.
type BookingRequest struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Symptoms string `json:"symptoms,omitempty"`
	Notes    string `json:"notes,omitempty"`
}
