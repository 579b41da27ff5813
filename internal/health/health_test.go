package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRun_AllPass(t *testing.T) {
	h := New(
		Checker{Name: "llm", Check: func(context.Context) error { return nil }},
		Checker{Name: "tts", Check: func(context.Context) error { return nil }},
	)
	rep := h.Run(context.Background())
	if !rep.OK() || rep.Checks["llm"] != "ok" || rep.Checks["tts"] != "ok" {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestRun_FailureDoesNotCancelOthers(t *testing.T) {
	var finished atomic.Bool
	h := New(
		Checker{Name: "stt", Check: func(context.Context) error { return errors.New("bad key") }},
		Checker{Name: "tts", Check: func(ctx context.Context) error {
			select {
			case <-time.After(20 * time.Millisecond):
				finished.Store(true)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	)
	rep := h.Run(context.Background())
	if rep.OK() {
		t.Fatalf("expected failure")
	}
	if rep.Checks["stt"] != "fail: bad key" {
		t.Fatalf("unexpected stt result %q", rep.Checks["stt"])
	}
	if rep.Checks["tts"] != "ok" || !finished.Load() {
		t.Fatalf("expected tts probe to complete, got %q", rep.Checks["tts"])
	}
}

func TestRun_Concurrent(t *testing.T) {
	slow := func(context.Context) error { time.Sleep(50 * time.Millisecond); return nil }
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}, Checker{Name: "c", Check: slow})
	start := time.Now()
	h.Run(context.Background())
	if el := time.Since(start); el > 140*time.Millisecond {
		t.Fatalf("expected probes to overlap, took %v", el)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := New(Checker{Name: "llm", Check: func(context.Context) error { return errors.New("down") }})
	e := echo.New()
	e.GET("/healthz", h.Healthz)
	e.GET("/health", h.Health)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: expected 503, got %d", w.Code)
	}
	var rep Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Status != "fail" || rep.Checks["llm"] != "fail: down" {
		t.Fatalf("unexpected body %+v", rep)
	}
}
