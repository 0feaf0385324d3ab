package scheduling

import (
	"context"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
)

type AppointmentRepository interface {
	List(ctx context.Context) ([]Appointment, error)
	Create(ctx context.Context, a *Appointment) error
	// Update applies fn to the appointment with the given id. fn returning
	// ErrAppointmentNotFound hides an appointment the caller may not see.
	Update(ctx context.Context, id string, fn func(*Appointment) error) (*Appointment, error)
}

// DoctorRepository reads the seeded doctor directory.
type DoctorRepository interface {
	List(ctx context.Context) ([]identity.User, error)
}

// Directory reads user accounts; doctors who signed up live there.
type Directory interface {
	ListUsers(ctx context.Context) ([]identity.User, error)
	GetUser(ctx context.Context, id string) (*identity.User, error)
}
