package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

func TestHealthzReportsOK(t *testing.T) {
	s := New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
}

func TestStatsAccumulatesAcrossGroups(t *testing.T) {
	s := New()
	s.RecordGroup(relaymodel.Stats{Moved: 3, Dup: 1})
	s.RecordGroup(relaymodel.Stats{Moved: 2, Notfound: 1})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.Router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if int(body["moved"].(float64)) != 5 {
		t.Fatalf("moved = %v, want 5", body["moved"])
	}
	if int(body["notfound"].(float64)) != 1 {
		t.Fatalf("notfound = %v, want 1", body["notfound"])
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	s := New()
	s.RecordGroup(relaymodel.Stats{Moved: 7})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nntp_relay_articles_moved_total 7") {
		t.Fatalf("expected moved counter in output, got:\n%s", rec.Body.String())
	}
}
