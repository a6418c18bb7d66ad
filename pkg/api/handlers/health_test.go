package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// pingerFunc adapts a function to the Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthyPinger() Pinger {
	return pingerFunc(func(ctx context.Context) error { return nil })
}

func downPinger(msg string) Pinger {
	return pingerFunc(func(ctx context.Context) error { return errors.New(msg) })
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func component(t *testing.T, resp statusResponse, name string) map[string]any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be a map, got %T", resp.Data)
	}
	comp, ok := data[name].(map[string]any)
	if !ok {
		t.Fatalf("expected %q component, got %v", name, data)
	}
	return comp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeStatus(t, w)
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be a map, got %T", resp.Data)
	}
	if data["service"] != "eldcore" {
		t.Errorf("expected service 'eldcore', got %v", data["service"])
	}
	if data["started_at"] == "" {
		t.Error("expected started_at to be set")
	}
	if data["uptime"] == "" {
		t.Error("expected uptime to be set")
	}
}

func TestReadiness_NoDatabase_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if resp := decodeStatus(t, w); resp.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %q", resp.Status)
	}
}

func TestReadiness_DatabaseDown_Returns503(t *testing.T) {
	handler := NewHealthHandler(downPinger("connection refused"), nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeStatus(t, w)
	if resp.Error != "database unreachable" {
		t.Errorf("expected database error, got %q", resp.Error)
	}
	db := component(t, resp, "database")
	if db["status"] != "unhealthy" {
		t.Errorf("expected unhealthy database component, got %v", db["status"])
	}
	if db["error"] != "connection refused" {
		t.Errorf("expected ping error in component, got %v", db["error"])
	}
}

func TestReadiness_Healthy(t *testing.T) {
	handler := NewHealthHandler(healthyPinger(), nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeStatus(t, w)
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	db := component(t, resp, "database")
	if db["status"] != "healthy" {
		t.Errorf("expected healthy database component, got %v", db["status"])
	}
	if db["latency"] == nil {
		t.Error("expected database latency to be reported")
	}
}

func TestReadiness_IdempotencyDown_StaysReady(t *testing.T) {
	handler := NewHealthHandler(healthyPinger(), downPinger("redis: connection pool exhausted"))
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d: readiness must fail open on the replay store", http.StatusOK, w.Code)
	}

	resp := decodeStatus(t, w)
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	replay := component(t, resp, "idempotency")
	if replay["status"] != "degraded" {
		t.Errorf("expected degraded idempotency component, got %v", replay["status"])
	}
}
