package clinical

import (
	"context"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/domain/scheduling"
)

type ConsultationRepository interface {
	List(ctx context.Context) ([]Consultation, error)
	Create(ctx context.Context, c *Consultation) error
	Delete(ctx context.Context, id string) error
}

type PrescriptionRepository interface {
	List(ctx context.Context) ([]Prescription, error)
	// CreateAll stores every prescription or none.
	CreateAll(ctx context.Context, items []Prescription) error
}

// Appointments closes and reopens appointments on behalf of a consultation.
type Appointments interface {
	CompleteAppointment(ctx context.Context, actor *identity.User, appointmentID string, followUp bool) (*scheduling.Appointment, error)
	ReopenAppointment(ctx context.Context, appointmentID string) error
}
