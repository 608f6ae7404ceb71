package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReadinessResponse(t *testing.T, rec *httptest.ResponseRecorder) ReadinessResponse {
	t.Helper()
	var response ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func okPing(context.Context) error { return nil }

func TestHealthzHandler(t *testing.T) {
	handler := NewHealthHandler("1.0.0", nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.HealthzHandler(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["service"] != "interview" || body["version"] != "1.0.0" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestReadyzHandler_AllHealthy(t *testing.T) {
	handler := NewHealthHandler("1.0.0", PingFunc(okPing), PingFunc(okPing), PingFunc(okPing))
	rec := httptest.NewRecorder()
	handler.ReadyzHandler(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	response := decodeReadinessResponse(t, rec)
	if response.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", response.Status)
	}
	for _, name := range []string{"database", "cache", "detector"} {
		if response.Checks[name].Status != "ok" {
			t.Errorf("check %s: expected 'ok', got '%s'", name, response.Checks[name].Status)
		}
	}
}

func TestReadyzHandler_DatabaseDown(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("server selection timeout") })
	handler := NewHealthHandler("1.0.0", down, nil, nil)
	rec := httptest.NewRecorder()
	handler.ReadyzHandler(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	response := decodeReadinessResponse(t, rec)
	if response.Status != "not_ready" {
		t.Errorf("expected 'not_ready', got '%s'", response.Status)
	}
	if response.Checks["database"].Message == "" {
		t.Error("expected failure message for database check")
	}
	if _, ok := response.Checks["cache"]; ok {
		t.Error("unconfigured cache should not be reported")
	}
}

func TestReadyzHandler_OptionalDependencyDown(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	handler := NewHealthHandler("1.0.0", PingFunc(okPing), nil, down)
	rec := httptest.NewRecorder()
	handler.ReadyzHandler(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := decodeReadinessResponse(t, rec).Checks["detector"].Status; got != "failed" {
		t.Errorf("expected detector check 'failed', got '%s'", got)
	}
}

func TestReadyzHandler_NoDatabase(t *testing.T) {
	handler := NewHealthHandler("1.0.0", nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ReadyzHandler(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}
