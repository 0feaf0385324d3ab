// Package scheduling covers the doctor directory, appointment booking and
// payment, cancellation, bookable time slots and appointment reminders.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
	"github.com/Anup697028/mediwise-chat/internal/platform/messaging"
	"github.com/Anup697028/mediwise-chat/internal/platform/notification"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrInvalidTransition   = errors.New("appointment cannot change from its current status")
	ErrInvalidAppointment  = errors.New("invalid appointment")
)

// Config carries the optional collaborators of a Service.
type Config struct {
	Notifier *notification.Manager
	Events   messaging.Publisher
	Clock    clock.Clock
	Latency  *clock.Latency
	Logger   zerolog.Logger
	// Location interprets appointment dates and times. Defaults to time.Local.
	Location *time.Location
}

type Service struct {
	appointments AppointmentRepository
	doctors      DoctorRepository
	directory    Directory
	cfg          Config
	logger       zerolog.Logger
}

func NewService(appointments AppointmentRepository, doctors DoctorRepository, directory Directory, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Events == nil {
		cfg.Events = messaging.NopPublisher{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		appointments: appointments,
		doctors:      doctors,
		directory:    directory,
		cfg:          cfg,
		logger:       cfg.Logger.With().Str("component", "scheduling").Logger(),
	}
}

// -- Doctors --

// GetDoctors returns the seeded doctors followed by doctor accounts,
// optionally only those with exactly the given specialty. A doctor present in
// both sources is listed twice.
func (s *Service) GetDoctors(ctx context.Context, specialty string) ([]identity.User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayLookup); err != nil {
		return nil, err
	}
	return s.listDoctors(ctx, specialty)
}

func (s *Service) listDoctors(ctx context.Context, specialty string) ([]identity.User, error) {
	seeded, err := s.doctors.List(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.directory.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	all := make([]identity.User, 0, len(seeded)+len(users))
	all = append(all, seeded...)
	for _, u := range users {
		if u.Role == identity.RoleDoctor {
			all = append(all, u)
		}
	}
	if specialty == "" {
		return all, nil
	}
	out := make([]identity.User, 0, len(all))
	for _, d := range all {
		if d.Specialty == specialty {
			out = append(out, d)
		}
	}
	return out, nil
}

// GetDoctorByID returns the first doctor with the given id.
func (s *Service) GetDoctorByID(ctx context.Context, id string) (*identity.User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayShort); err != nil {
		return nil, err
	}
	return s.findDoctor(ctx, id)
}

func (s *Service) findDoctor(ctx context.Context, id string) (*identity.User, error) {
	all, err := s.listDoctors(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrDoctorNotFound
}

// -- Appointments --

// GetAppointments returns the appointments of the actor: a patient's own
// bookings or the appointments booked with a doctor.
func (s *Service) GetAppointments(ctx context.Context, actor *identity.User) ([]Appointment, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayList); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor); err != nil {
		return nil, err
	}
	all, err := s.appointments.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Appointment{}
	for _, a := range all {
		if visibleTo(&a, actor) {
			out = append(out, a)
		}
	}
	return out, nil
}

func visibleTo(a *Appointment, actor *identity.User) bool {
	switch actor.Role {
	case identity.RolePatient:
		return a.PatientID == actor.ID
	case identity.RoleDoctor:
		return a.DoctorID == actor.ID
	}
	return false
}

// GetAppointment returns one appointment visible to actor.
func (s *Service) GetAppointment(ctx context.Context, actor *identity.User, id string) (*Appointment, error) {
	if err := identity.RequireRole(actor); err != nil {
		return nil, err
	}
	all, err := s.appointments.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id && visibleTo(&all[i], actor) {
			return &all[i], nil
		}
	}
	return nil, ErrAppointmentNotFound
}

// BookAppointment books the patient in with a doctor. The slot is not checked
// against the doctor's availability or existing bookings.
func (s *Service) BookAppointment(ctx context.Context, actor *identity.User, req BookingRequest) (*Appointment, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayBook); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor, identity.RolePatient); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DoctorID) == "" {
		return nil, fmt.Errorf("%w: doctorId is required", ErrInvalidAppointment)
	}
	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidAppointment)
	}
	if _, err := time.Parse(TimeLayout, req.Time); err != nil {
		return nil, fmt.Errorf("%w: time must be HH:MM", ErrInvalidAppointment)
	}

	a := &Appointment{
		ID:            "app_" + uuid.NewString(),
		PatientID:     actor.ID,
		DoctorID:      req.DoctorID,
		Date:          req.Date,
		Time:          req.Time,
		Status:        StatusScheduled,
		PaymentStatus: PaymentPending,
		Symptoms:      req.Symptoms,
		Notes:         req.Notes,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", a.ID).Str("patient_id", a.PatientID).Str("doctor_id", a.DoctorID).Msg("appointment booked")
	s.publishAppointment(ctx, messaging.EventAppointmentBooked, a, "")
	s.notify(ctx, notification.TemplateAppointmentBooked, a, actor, nil)
	return a, nil
}

// CompletePayment marks the patient's appointment paid. The payment method id
// is recorded but not checked.
func (s *Service) CompletePayment(ctx context.Context, actor *identity.User, appointmentID, paymentMethodID string) (*Appointment, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor, identity.RolePatient); err != nil {
		return nil, err
	}
	a, err := s.appointments.Update(ctx, appointmentID, func(a *Appointment) error {
		if a.PatientID != actor.ID {
			return ErrAppointmentNotFound
		}
		a.PaymentStatus = PaymentCompleted
		a.PaymentMethodID = paymentMethodID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", a.ID).Msg("payment completed")
	messaging.PublishAndLog(ctx, s.cfg.Events, s.logger, messaging.EventPaymentCompleted, messaging.PaymentCompletedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPaymentCompleted, s.cfg.Clock.Now()),
		Data: messaging.PaymentCompletedData{
			AppointmentID:   a.ID,
			PatientID:       a.PatientID,
			PaymentMethodID: paymentMethodID,
		},
	})
	s.notify(ctx, notification.TemplatePaymentCompleted, a, actor, nil)
	return a, nil
}

// CancelAppointment cancels a scheduled appointment on behalf of its patient
// or its doctor.
func (s *Service) CancelAppointment(ctx context.Context, actor *identity.User, appointmentID string) (*Appointment, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor); err != nil {
		return nil, err
	}
	a, err := s.appointments.Update(ctx, appointmentID, func(a *Appointment) error {
		if !visibleTo(a, actor) {
			return ErrAppointmentNotFound
		}
		if a.Status != StatusScheduled {
			return fmt.Errorf("%w: %s", ErrInvalidTransition, a.Status)
		}
		a.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", a.ID).Str("cancelled_by", string(actor.Role)).Msg("appointment cancelled")
	s.publishAppointment(ctx, messaging.EventAppointmentCancelled, a, string(actor.Role))
	s.notify(ctx, notification.TemplateAppointmentCancelled, a, nil, nil)
	return a, nil
}

// CompleteAppointment closes a scheduled appointment of the acting doctor
// after a consultation.
func (s *Service) CompleteAppointment(ctx context.Context, actor *identity.User, appointmentID string, followUp bool) (*Appointment, error) {
	if err := identity.RequireRole(actor, identity.RoleDoctor); err != nil {
		return nil, err
	}
	return s.appointments.Update(ctx, appointmentID, func(a *Appointment) error {
		if a.DoctorID != actor.ID {
			return ErrAppointmentNotFound
		}
		if a.Status != StatusScheduled {
			return fmt.Errorf("%w: %s", ErrInvalidTransition, a.Status)
		}
		a.Status = StatusCompleted
		a.FollowUpRequired = followUp
		return nil
	})
}

// ReopenAppointment undoes CompleteAppointment when the consultation that
// prompted it could not be stored.
func (s *Service) ReopenAppointment(ctx context.Context, appointmentID string) error {
	_, err := s.appointments.Update(ctx, appointmentID, func(a *Appointment) error {
		if a.Status == StatusCompleted {
			a.Status = StatusScheduled
			a.FollowUpRequired = false
		}
		return nil
	})
	return err
}

func (s *Service) publishAppointment(ctx context.Context, key string, a *Appointment, cancelledBy string) {
	messaging.PublishAndLog(ctx, s.cfg.Events, s.logger, key, messaging.AppointmentEvent{
		BaseEvent: messaging.NewBaseEvent(key, s.cfg.Clock.Now()),
		Data: messaging.AppointmentData{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			DoctorID:      a.DoctorID,
			Date:          a.Date,
			Time:          a.Time,
			Status:        a.Status,
			PaymentStatus: a.PaymentStatus,
			CancelledBy:   cancelledBy,
		},
	})
}

// notify emails the patient of a. patient may be nil, in which case it is
// looked up. Failures are logged only.
func (s *Service) notify(ctx context.Context, templateID string, a *Appointment, patient *identity.User, extra map[string]string) {
	if s.cfg.Notifier == nil {
		return
	}
	if patient == nil || patient.ID != a.PatientID {
		p, err := s.directory.GetUser(ctx, a.PatientID)
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID).Msg("patient lookup for notification failed")
			return
		}
		patient = p
	}
	doctorName := a.DoctorID
	if d, err := s.findDoctor(ctx, a.DoctorID); err == nil {
		doctorName = d.Name
	}
	data := map[string]string{
		"patient_name":   patient.Name,
		"doctor_name":    doctorName,
		"date":           a.Date,
		"time":           a.Time,
		"payment_status": a.PaymentStatus,
	}
	for k, v := range extra {
		data[k] = v
	}
	if _, err := s.cfg.Notifier.SendFromTemplate(ctx, templateID, data, patient.Email); err != nil {
		s.logger.Warn().Err(err).Str("template", templateID).Str("appointment_id", a.ID).Msg("notification not sent")
	}
}
