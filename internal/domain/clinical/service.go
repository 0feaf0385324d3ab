// Package clinical records consultations and the prescriptions issued in
// them.
package clinical

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
)

var ErrInvalidConsultation = errors.New("invalid consultation")

type Config struct {
	Events  messaging.Publisher
	Clock   clock.Clock
	Latency *clock.Latency
	Logger  zerolog.Logger
}

type Service struct {
	consultations ConsultationRepository
	prescriptions PrescriptionRepository
	appointments  Appointments
	cfg           Config
	logger        zerolog.Logger
}

func NewService(consultations ConsultationRepository, prescriptions PrescriptionRepository, appointments Appointments, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Events == nil {
		cfg.Events = messaging.NopPublisher{}
	}
	return &Service{
		consultations: consultations,
		prescriptions: prescriptions,
		appointments:  appointments,
		cfg:           cfg,
		logger:        cfg.Logger.With().Str("component", "clinical").Logger(),
	}
}

// -- Consultations --

// GetConsultations returns the consultations the actor took part in.
func (s *Service) GetConsultations(ctx context.Context, actor *identity.User) ([]Consultation, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayList); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor); err != nil {
		return nil, err
	}
	all, err := s.consultations.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Consultation{}
	for _, c := range all {
		if involves(&c, actor) {
			out = append(out, c)
		}
	}
	return out, nil
}

func involves(c *Consultation, actor *identity.User) bool {
	switch actor.Role {
	case identity.RolePatient:
		return c.PatientID == actor.ID
	case identity.RoleDoctor:
		return c.DoctorID == actor.ID
	}
	return false
}

// RecordConsultation closes one of the doctor's scheduled appointments with a
// consultation and the prescriptions issued in it. The appointment is
// completed first; if the records cannot be stored it is reopened.
func (s *Service) RecordConsultation(ctx context.Context, actor *identity.User, req ConsultationRequest) (*Consultation, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor, identity.RoleDoctor); err != nil {
		return nil, err
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	followUp := req.FollowUp != nil && req.FollowUp.Recommended
	appt, err := s.appointments.CompleteAppointment(ctx, actor, req.AppointmentID, followUp)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Clock.Now()
	c := &Consultation{
		ID:            "con_" + uuid.NewString(),
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Date:          now.UTC().Format(time.RFC3339),
		Duration:      req.Duration,
		Notes:         req.Notes,
		Diagnosis:     req.Diagnosis,
		FollowUp:      req.FollowUp,
	}
	for _, p := range req.Prescriptions {
		c.Prescriptions = append(c.Prescriptions, Prescription{
			ID:             "rx_" + uuid.NewString(),
			ConsultationID: c.ID,
			MedicationName: strings.TrimSpace(p.MedicationName),
			Dosage:         p.Dosage,
			Frequency:      p.Frequency,
			Duration:       p.Duration,
			Notes:          p.Notes,
			IssuedDate:     now.Format(IssuedDateLayout),
			Status:         PrescriptionActive,
		})
	}

	if err := s.store(ctx, c); err != nil {
		if rerr := s.appointments.ReopenAppointment(ctx, appt.ID); rerr != nil {
			s.logger.Error().Err(rerr).Str("appointment_id", appt.ID).Msg("reopen appointment after failed consultation")
		}
		return nil, err
	}

	s.logger.Info().Str("consultation_id", c.ID).Str("appointment_id", appt.ID).Int("prescriptions", len(c.Prescriptions)).Msg("consultation recorded")
	messaging.PublishAndLog(ctx, s.cfg.Events, s.logger, messaging.EventConsultationRecorded, messaging.ConsultationRecordedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventConsultationRecorded, now),
		Data: messaging.ConsultationRecordedData{
			ConsultationID: c.ID,
			AppointmentID:  c.AppointmentID,
			PatientID:      c.PatientID,
			DoctorID:       c.DoctorID,
			Prescriptions:  len(c.Prescriptions),
		},
	})
	return c, nil
}

// store writes the consultation and then its prescriptions, removing the
// consultation again when the prescriptions fail.
func (s *Service) store(ctx context.Context, c *Consultation) error {
	if err := s.consultations.Create(ctx, c); err != nil {
		return fmt.Errorf("store consultation: %w", err)
	}
	if err := s.prescriptions.CreateAll(ctx, c.Prescriptions); err != nil {
		if derr := s.consultations.Delete(ctx, c.ID); derr != nil {
			s.logger.Error().Err(derr).Str("consultation_id", c.ID).Msg("remove consultation after failed prescriptions")
		}
		return fmt.Errorf("store prescriptions: %w", err)
	}
	return nil
}

func validate(req ConsultationRequest) error {
	if strings.TrimSpace(req.AppointmentID) == "" {
		return fmt.Errorf("%w: appointmentId is required", ErrInvalidConsultation)
	}
	if req.Duration < 0 {
		return fmt.Errorf("%w: duration cannot be negative", ErrInvalidConsultation)
	}
	for i, p := range req.Prescriptions {
		if strings.TrimSpace(p.MedicationName) == "" || strings.TrimSpace(p.Dosage) == "" {
			return fmt.Errorf("%w: prescription %d needs a medication name and dosage", ErrInvalidConsultation, i)
		}
	}
	return nil
}

// -- Prescriptions --

// GetPrescriptions returns a patient's own prescriptions, or those a doctor
// issued.
func (s *Service) GetPrescriptions(ctx context.Context, actor *identity.User) ([]Prescription, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayList); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor); err != nil {
		return nil, err
	}
	consultations, err := s.consultations.List(ctx)
	if err != nil {
		return nil, err
	}
	mine := make(map[string]bool)
	for _, c := range consultations {
		if involves(&c, actor) {
			mine[c.ID] = true
		}
	}
	all, err := s.prescriptions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Prescription{}
	for _, p := range all {
		if mine[p.ConsultationID] {
			out = append(out, p)
		}
	}
	return out, nil
}
