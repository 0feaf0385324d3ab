package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

type limitedServer struct {
	e   *echo.Echo
	clk *clock.Fake
	l   *limiter
}

func newLimitedServer(rate float64, burst int, idle time.Duration) *limitedServer {
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	l := newLimiter(RateLimitConfig{RequestsPerSecond: rate, BurstSize: burst, IdleTTL: idle, Clock: clk})
	e := echo.New()
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	g := e.Group("/api/v1/auth", rateLimit(l))
	g.POST("/login", ok)
	g.POST("/otp/request", ok)
	return &limitedServer{e: e, clk: clk, l: l}
}

func (s *limitedServer) do(path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_BurstThenThrottle(t *testing.T) {
	s := newLimitedServer(1, 3, 0)

	for i := 0; i < 3; i++ {
		rec := s.do("/api/v1/auth/login", "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
			t.Errorf("X-RateLimit-Limit = %q, want 3", got)
		}
	}

	rec := s.do("/api/v1/auth/login", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestRateLimit_Refills(t *testing.T) {
	s := newLimitedServer(2, 1, 0)

	if rec := s.do("/api/v1/auth/login", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	if rec := s.do("/api/v1/auth/login", "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	s.clk.Advance(500 * time.Millisecond)
	if rec := s.do("/api/v1/auth/login", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("after refill = %d, want 200", rec.Code)
	}
}

func TestRateLimit_RemainingCountsDown(t *testing.T) {
	s := newLimitedServer(1, 3, 0)
	for _, want := range []string{"2", "1", "0"} {
		rec := s.do("/api/v1/auth/login", "10.0.0.1")
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Errorf("X-RateLimit-Remaining = %q, want %q", got, want)
		}
	}
}

func TestRateLimit_SeparateBuckets(t *testing.T) {
	s := newLimitedServer(1, 1, 0)

	s.do("/api/v1/auth/login", "10.0.0.1")
	if rec := s.do("/api/v1/auth/login", "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same client and route = %d, want 429", rec.Code)
	}
	if rec := s.do("/api/v1/auth/login", "10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("other client = %d, want 200", rec.Code)
	}
	if rec := s.do("/api/v1/auth/otp/request", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("other route = %d, want 200", rec.Code)
	}
}

func TestRateLimit_ZeroRateNeverRefills(t *testing.T) {
	s := newLimitedServer(0, 1, 0)
	s.do("/api/v1/auth/login", "10.0.0.1")
	s.clk.Advance(time.Hour)
	rec := s.do("/api/v1/auth/login", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "1" {
		t.Errorf("status = %d, Retry-After = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_EvictsIdleBuckets(t *testing.T) {
	s := newLimitedServer(1, 5, time.Minute)
	s.do("/api/v1/auth/login", "10.0.0.1")
	s.do("/api/v1/auth/login", "10.0.0.2")
	if n := s.l.size(); n != 2 {
		t.Fatalf("buckets = %d, want 2", n)
	}

	s.clk.Advance(2 * time.Minute)
	s.do("/api/v1/auth/login", "10.0.0.3")
	if n := s.l.size(); n != 1 {
		t.Errorf("buckets after idle sweep = %d, want 1", n)
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 2 || cfg.BurstSize != 20 || cfg.IdleTTL != 10*time.Minute {
		t.Errorf("defaults = %+v", cfg)
	}
}
