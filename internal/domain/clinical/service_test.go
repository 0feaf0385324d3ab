package clinical

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/domain/scheduling"
	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
	"github.com/Anup697028/mediwise-chat/internal/platform/kvstore"
	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
	"github.com/Anup697028/mediwise-chat/internal/platform/messaging"
)

type testEnv struct {
	svc    *Service
	ids    *identity.Service
	sched  *scheduling.Service
	db     *localdb.Database
	clock  *clock.Fake
	events *messaging.RecordingPublisher
}

func newTestEnv(t *testing.T, prescriptions func(*localdb.Database) PrescriptionRepository) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := localdb.New(kvstore.NewMemoryStore(), "", zerolog.Nop())
	if err := db.Initialize(ctx, identity.Seeds()...); err != nil {
		t.Fatal(err)
	}
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	events := &messaging.RecordingPublisher{}
	ids := identity.NewService(identity.NewUserRepoKV(db), nil, identity.NewSessions(db), nil, identity.Config{
		Clock:   clk,
		Latency: clock.NoDelay,
		Logger:  zerolog.Nop(),
	})
	sched := scheduling.NewService(scheduling.NewAppointmentRepoKV(db), scheduling.NewDoctorRepoKV(db), ids, scheduling.Config{
		Clock:    clk,
		Latency:  clock.NoDelay,
		Logger:   zerolog.Nop(),
		Location: time.UTC,
	})
	if prescriptions == nil {
		prescriptions = NewPrescriptionRepoKV
	}
	svc := NewService(NewConsultationRepoKV(db), prescriptions(db), sched, Config{
		Events:  events,
		Clock:   clk,
		Latency: clock.NoDelay,
		Logger:  zerolog.Nop(),
	})
	return &testEnv{svc: svc, ids: ids, sched: sched, db: db, clock: clk, events: events}
}

// booked signs up a doctor and a patient and books the patient with the
// doctor.
func (e *testEnv) booked(t *testing.T, doctorEmail, patientEmail string) (*identity.User, *identity.User, *scheduling.Appointment) {
	t.Helper()
	ctx := context.Background()
	doc, err := e.ids.Register(ctx, doctorEmail, "pw", "Dr. "+doctorEmail, identity.RoleDoctor)
	if err != nil {
		t.Fatal(err)
	}
	pat, err := e.ids.Login(ctx, patientEmail, "x")
	if err != nil {
		t.Fatal(err)
	}
	a, err := e.sched.BookAppointment(ctx, pat, scheduling.BookingRequest{DoctorID: doc.ID, Date: "2026-03-04", Time: "10:00"})
	if err != nil {
		t.Fatal(err)
	}
	return doc, pat, a
}

func request(appointmentID string) ConsultationRequest {
	return ConsultationRequest{
		AppointmentID: appointmentID,
		Duration:      20,
		Diagnosis:     "Seasonal allergies",
		Prescriptions: []PrescriptionRequest{
			{MedicationName: "Cetirizine", Dosage: "10mg", Frequency: "once daily", Duration: "14 days"},
			{MedicationName: "Fluticasone", Dosage: "50mcg", Frequency: "twice daily", Duration: "30 days"},
		},
		FollowUp: &FollowUp{Recommended: true, Date: "2026-04-01"},
	}
}

type failingPrescriptions struct{ PrescriptionRepository }

func (failingPrescriptions) CreateAll(context.Context, []Prescription) error {
	return errors.New("disk full")
}

func TestRecordConsultation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doc, pat, a := env.booked(t, "doc@example.com", "pat@example.com")

	c, err := env.svc.RecordConsultation(ctx, doc, request(a.ID))
	if err != nil {
		t.Fatalf("RecordConsultation: %v", err)
	}
	if !strings.HasPrefix(c.ID, "con_") || c.PatientID != pat.ID || c.DoctorID != doc.ID {
		t.Errorf("consultation = %+v", c)
	}
	if c.Date != "2026-03-02T09:00:00Z" {
		t.Errorf("date = %q", c.Date)
	}
	if len(c.Prescriptions) != 2 {
		t.Fatalf("prescriptions = %d, want 2", len(c.Prescriptions))
	}
	for _, p := range c.Prescriptions {
		if !strings.HasPrefix(p.ID, "rx_") || p.ConsultationID != c.ID || p.Status != PrescriptionActive || p.IssuedDate != "2026-03-02" {
			t.Errorf("prescription = %+v", p)
		}
	}

	appt, _ := env.sched.GetAppointment(ctx, doc, a.ID)
	if appt.Status != scheduling.StatusCompleted || !appt.FollowUpRequired {
		t.Errorf("appointment = %s followUp=%v", appt.Status, appt.FollowUpRequired)
	}
	if keys := env.events.RoutingKeys(); len(keys) == 0 || keys[len(keys)-1] != messaging.EventConsultationRecorded {
		t.Errorf("events = %v", keys)
	}

	if _, err := env.svc.RecordConsultation(ctx, doc, request(a.ID)); !errors.Is(err, scheduling.ErrInvalidTransition) {
		t.Errorf("second record = %v, want ErrInvalidTransition", err)
	}
}

func TestRecordConsultation_Rules(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, pat, a := env.booked(t, "doc@example.com", "pat@example.com")

	if _, err := env.svc.RecordConsultation(ctx, pat, request(a.ID)); !errors.Is(err, identity.ErrUnauthorized) {
		t.Errorf("patient = %v, want ErrUnauthorized", err)
	}

	other, _ := env.ids.Register(ctx, "other@example.com", "pw", "Dr. Other", identity.RoleDoctor)
	if _, err := env.svc.RecordConsultation(ctx, other, request(a.ID)); !errors.Is(err, scheduling.ErrAppointmentNotFound) {
		t.Errorf("other doctor = %v, want ErrAppointmentNotFound", err)
	}

	bad := request(a.ID)
	bad.Prescriptions[1].Dosage = " "
	if _, err := env.svc.RecordConsultation(ctx, other, bad); !errors.Is(err, ErrInvalidConsultation) {
		t.Errorf("missing dosage = %v, want ErrInvalidConsultation", err)
	}
	if _, err := env.svc.RecordConsultation(ctx, other, ConsultationRequest{}); !errors.Is(err, ErrInvalidConsultation) {
		t.Errorf("missing appointment = %v, want ErrInvalidConsultation", err)
	}
}

func TestRecordConsultation_ReopensOnStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(db *localdb.Database) PrescriptionRepository {
		return failingPrescriptions{NewPrescriptionRepoKV(db)}
	})
	ctx := context.Background()
	doc, _, a := env.booked(t, "doc@example.com", "pat@example.com")

	if _, err := env.svc.RecordConsultation(ctx, doc, request(a.ID)); err == nil {
		t.Fatal("expected an error")
	}
	appt, _ := env.sched.GetAppointment(ctx, doc, a.ID)
	if appt.Status != scheduling.StatusScheduled || appt.FollowUpRequired {
		t.Errorf("appointment = %s followUp=%v, want reopened", appt.Status, appt.FollowUpRequired)
	}
	if got, _ := env.svc.GetConsultations(ctx, doc); len(got) != 0 {
		t.Errorf("consultations = %d, want none left behind", len(got))
	}
	for _, key := range env.events.RoutingKeys() {
		if key == messaging.EventConsultationRecorded {
			t.Error("consultation.recorded published for a failed write")
		}
	}
}

func TestGetConsultationsAndPrescriptions_RoleScoped(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	docA, patA, a1 := env.booked(t, "a@example.com", "pa@example.com")
	if _, err := env.svc.RecordConsultation(ctx, docA, request(a1.ID)); err != nil {
		t.Fatal(err)
	}
	docB, patB, b1 := env.booked(t, "b@example.com", "pb@example.com")
	req := request(b1.ID)
	req.Prescriptions = req.Prescriptions[:1]
	if _, err := env.svc.RecordConsultation(ctx, docB, req); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		actor         *identity.User
		consultations int
		prescriptions int
	}{
		{docA, 1, 2},
		{patA, 1, 2},
		{docB, 1, 1},
		{patB, 1, 1},
	}
	for _, tt := range tests {
		cons, err := env.svc.GetConsultations(ctx, tt.actor)
		if err != nil {
			t.Fatal(err)
		}
		rx, err := env.svc.GetPrescriptions(ctx, tt.actor)
		if err != nil {
			t.Fatal(err)
		}
		if len(cons) != tt.consultations || len(rx) != tt.prescriptions {
			t.Errorf("%s sees %d consultations and %d prescriptions, want %d and %d",
				tt.actor.Email, len(cons), len(rx), tt.consultations, tt.prescriptions)
		}
		for _, c := range cons {
			if c.PatientID != tt.actor.ID && c.DoctorID != tt.actor.ID {
				t.Errorf("%s sees consultation %s", tt.actor.Email, c.ID)
			}
		}
	}

	if _, err := env.svc.GetConsultations(ctx, nil); !errors.Is(err, identity.ErrUnauthorized) {
		t.Errorf("no session = %v", err)
	}
	if none, _ := env.svc.GetPrescriptions(ctx, &identity.User{ID: "user_new", Role: identity.RolePatient}); none == nil || len(none) != 0 {
		t.Errorf("new patient prescriptions = %v, want empty list", none)
	}
}

func TestHandler_RecordAndList(t *testing.T) {
	env := newTestEnv(t, nil)
	doc, pat, a := env.booked(t, "doc@example.com", "pat@example.com")
	issuer, err := auth.NewTokenIssuer([]byte("clinical-test-signing-key-0123456789abcd"), time.Hour, env.clock)
	if err != nil {
		t.Fatal(err)
	}
	e := echo.New()
	NewHandler(env.svc, env.ids).RegisterRoutes(e.Group("/api/v1"), auth.SessionMiddleware(issuer, nil, env.ids.Sessions()))

	do := func(u *identity.User, method, path, body string) *httptest.ResponseRecorder {
		if err := env.ids.Sessions().Start(context.Background(), u); err != nil {
			t.Fatal(err)
		}
		tok, _, _ := issuer.Issue(u.ID, string(u.Role))
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	body := `{"appointmentId":"` + a.ID + `","duration":15,"prescriptions":[{"medicationName":"Ibuprofen","dosage":"200mg","frequency":"as needed","duration":"5 days"}]}`
	if rec := do(pat, http.MethodPost, "/api/v1/consultations", body); rec.Code != http.StatusForbidden {
		t.Errorf("patient record status = %d, want 403", rec.Code)
	}
	if rec := do(doc, http.MethodPost, "/api/v1/consultations", body); rec.Code != http.StatusCreated {
		t.Fatalf("record status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := do(doc, http.MethodPost, "/api/v1/consultations", body); rec.Code != http.StatusConflict {
		t.Errorf("second record status = %d, want 409", rec.Code)
	}

	rec := do(pat, http.MethodGet, "/api/v1/prescriptions", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"medicationName":"Ibuprofen"`) {
		t.Errorf("prescriptions = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(pat, http.MethodGet, "/api/v1/consultations", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), a.ID) {
		t.Errorf("consultations = %d %s", rec.Code, rec.Body.String())
	}
}
