package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
)

type testServer struct {
	*testEnv
	e      *echo.Echo
	issuer *auth.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	env := newTestEnv(t)
	issuer, err := auth.NewTokenIssuer([]byte("scheduling-test-signing-key-0123456789ab"), time.Hour, env.clock)
	if err != nil {
		t.Fatal(err)
	}
	e := echo.New()
	api := e.Group("/api/v1")
	NewHandler(env.svc, env.ids).RegisterRoutes(api, auth.SessionMiddleware(issuer, nil, env.ids.Sessions()))
	return &testServer{testEnv: env, e: e, issuer: issuer}
}

func (s *testServer) token(t *testing.T, u *identity.User) string {
	t.Helper()
	tok, _, err := s.issuer.Issue(u.ID, string(u.Role))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Doctors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/doctors?specialty=Pediatrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var docs []identity.User
	json.Unmarshal(rec.Body.Bytes(), &docs)
	if len(docs) != 1 || docs[0].ID != "doc2" {
		t.Errorf("docs = %+v", docs)
	}

	if rec := s.do(http.MethodGet, "/api/v1/doctors/doc9", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown doctor status = %d, want 404", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/doctors/doc1/slots?date=2026-03-02", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"17:00"`) {
		t.Errorf("slots = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodGet, "/api/v1/doctors/doc1/slots", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing date status = %d, want 400", rec.Code)
	}
}

func TestHandler_BookPayCancel(t *testing.T) {
	s := newTestServer(t)
	pat := s.patient(t, "pat@example.com")
	tok := s.token(t, pat)

	rec := s.do(http.MethodPost, "/api/v1/appointments", tok, `{"doctorId":"doc1","date":"2026-03-04","time":"10:00","symptoms":"cough"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d, body %s", rec.Code, rec.Body.String())
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)

	rec = s.do(http.MethodPost, "/api/v1/appointments/"+a.ID+"/pay", tok, `{"paymentMethodId":"pm_1"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"paymentStatus":"completed"`) {
		t.Errorf("pay = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/appointments", tok, "")
	var list []Appointment
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list) != 1 {
		t.Errorf("list = %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(http.MethodPost, "/api/v1/appointments/"+a.ID+"/cancel", tok, ""); rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/v1/appointments/"+a.ID+"/cancel", tok, ""); rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/v1/appointments/app_missing", tok, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestHandler_BookingRules(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodGet, "/api/v1/appointments", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	pat := s.patient(t, "pat@example.com")
	rec := s.do(http.MethodPost, "/api/v1/appointments", s.token(t, pat), `{"doctorId":"doc1","date":"next week","time":"10:00"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}

	doc := s.doctor(t, "doc@example.com")
	rec = s.do(http.MethodPost, "/api/v1/appointments", s.token(t, doc), `{"doctorId":"doc1","date":"2026-03-04","time":"10:00"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("doctor booking status = %d, want 403", rec.Code)
	}
}
