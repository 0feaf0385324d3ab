package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func runHealth(t *testing.T, h echo.HandlerFunc) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	code, body := runHealth(t, HealthHandler(fakePinger{}))
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("got %d %v, want 200 healthy", code, body)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	code, body := runHealth(t, HealthHandler(fakePinger{err: errors.New("connection refused")}))
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body["status"] != "unhealthy" || body["error"] != "connection refused" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthHandler_NotConfigured(t *testing.T) {
	code, body := runHealth(t, HealthHandler(nil))
	if code != http.StatusOK || body["status"] != "not_configured" {
		t.Errorf("got %d %v", code, body)
	}
}

func TestLivenessHandler(t *testing.T) {
	code, body := runHealth(t, LivenessHandler("file"))
	if code != http.StatusOK || body["backend"] != "file" {
		t.Errorf("got %d %v", code, body)
	}
}
