package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stocklens/yardbot/internal/processor"
	"github.com/stocklens/yardbot/internal/reliability"
)

type fixedStats processor.Stats

func (f fixedStats) Stats() processor.Stats { return processor.Stats(f) }

func (f fixedStats) Reliability() []reliability.TypeScore {
	return []reliability.TypeScore{{Type: "LOCATION_UPDATE", Score: 0.62, Audited: 12}}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(8760, fixedStats{Batches: 3, Extracted: 7, Applied: 5})

	req := httptest.NewRequest("GET", "/api/v1/yardbot/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Agent != "yardbot" {
		t.Errorf("expected agent yardbot, got %q", body.Agent)
	}
	if body.Stats.Batches != 3 || body.Stats.Applied != 5 {
		t.Errorf("unexpected stats: %+v", body.Stats)
	}
	if len(body.Reliability) != 1 || body.Reliability[0].Type != "LOCATION_UPDATE" {
		t.Errorf("unexpected reliability: %+v", body.Reliability)
	}
}

func TestStatusEndpointNilSource(t *testing.T) {
	srv := NewServer(8760, nil)

	req := httptest.NewRequest("GET", "/api/v1/yardbot/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8760, nil)

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
