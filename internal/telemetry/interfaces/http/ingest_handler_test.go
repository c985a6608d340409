package http_test

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"vibelux-energy/internal/telemetry/application"
	telemetryhttp "vibelux-energy/internal/telemetry/interfaces/http"
	"vibelux-energy/internal/telemetry/infrastructure/memory"
)

func newHandler(t *testing.T) (*telemetryhttp.IngestHandler, *memory.ReadingRepository) {
	t.Helper()
	repo := memory.NewReadingRepository()
	service, err := application.NewIngestService(repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := telemetryhttp.NewIngestHandler(service, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, repo
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestIngestHandler_AcceptsBatchWithItemErrors(t *testing.T) {
	handler, repo := newHandler(t)

	now := time.Now().UTC().Truncate(time.Minute)
	body := `{
		"facilityId": "fac-http",
		"source": "api",
		"readings": [
			{"deviceId": "meter-1", "zoneId": "zone-a", "ts": ` + tsMillis(now) + `, "kind": "energy_kwh", "value": 12.5},
			{"deviceId": "meter-1", "zoneId": "zone-a", "ts": ` + tsMillis(now) + `, "kind": "energy_kwh", "value": -3},
			{"deviceId": "", "zoneId": "zone-a", "ts": ` + tsMillis(now.Add(time.Minute)) + `, "kind": "energy_kwh", "value": 1}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=200, body=%s", rec.Code, rec.Body.String())
	}

	var result struct {
		Accepted int `json:"accepted"`
		Deduped  int `json:"deduped"`
		Errors   []struct {
			Index  int    `json:"index"`
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("accepted: got=%d want=1", result.Accepted)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors: got=%d want=2", len(result.Errors))
	}
	if repo.Count() != 1 {
		t.Fatalf("stored rows: got=%d want=1", repo.Count())
	}
}

func TestIngestHandler_RejectsBadEnvelope(t *testing.T) {
	handler, _ := newHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing facility", `{"source":"api","readings":[{"deviceId":"m","ts":1,"kind":"energy_kwh","value":1}]}`},
		{"unknown source", `{"facilityId":"fac","source":"carrier-pigeon","readings":[{"deviceId":"m","ts":1,"kind":"energy_kwh","value":1}]}`},
		{"empty batch", `{"facilityId":"fac","source":"api","readings":[]}`},
		{"broken json", `{"facilityId":`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/ingest/readings", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got=%d want=400", tc.name, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/ingest/readings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: status got=%d want=405", rec.Code)
	}
}

func tsMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
