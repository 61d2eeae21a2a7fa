package controllers

import (
	"context"
	"errors"
	"mindmesh/mindmesh/sources/psql/psqltest"
	"net/http"
	"net/http/httptest"
	"testing"
)

type downDB struct{}

func (downDB) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthCheck(t *testing.T) {
	hc := NewHealthController(psqltest.NewDatabase(t))
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()

	hc.HealthCheck(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	expectedBody := `{"status": "ok"}`
	if rr.Body.String() != expectedBody {
		t.Errorf("expected body %q, got %q", expectedBody, rr.Body.String())
	}

	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type application/json, got %v", rr.Header().Get("Content-Type"))
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	hc := NewHealthController(downDB{})
	rr := httptest.NewRecorder()

	hc.HealthCheck(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	if rr.Body.String() != `{"status": "degraded"}` {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}
