package scheduling

import (
	"context"
	"fmt"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
)

type appointmentRepoKV struct {
	db *localdb.Database
}

func NewAppointmentRepoKV(db *localdb.Database) AppointmentRepository {
	return &appointmentRepoKV{db: db}
}

func (r *appointmentRepoKV) List(ctx context.Context) ([]Appointment, error) {
	return localdb.GetList[Appointment](ctx, r.db, localdb.Appointments)
}

func (r *appointmentRepoKV) Create(ctx context.Context, a *Appointment) error {
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Appointments, func(items []Appointment) ([]Appointment, error) {
		return append(items, *a), nil
	})
	if err != nil {
		return err
	}
	if !applied {
		if err := r.db.Save(ctx, localdb.Appointments, []Appointment{*a}); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
	}
	return nil
}

func (r *appointmentRepoKV) Update(ctx context.Context, id string, fn func(*Appointment) error) (*Appointment, error) {
	var updated Appointment
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Appointments, func(items []Appointment) ([]Appointment, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			if err := fn(&items[i]); err != nil {
				return nil, err
			}
			updated = items[i]
			return items, nil
		}
		return nil, ErrAppointmentNotFound
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrAppointmentNotFound
	}
	return &updated, nil
}

type doctorRepoKV struct {
	db *localdb.Database
}

func NewDoctorRepoKV(db *localdb.Database) DoctorRepository {
	return &doctorRepoKV{db: db}
}

func (r *doctorRepoKV) List(ctx context.Context) ([]identity.User, error) {
	return localdb.GetList[identity.User](ctx, r.db, localdb.Doctors)
}
