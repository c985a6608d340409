package main

import (
	"encoding/json"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fakeMeterServer serves the normalized reading shape the telemetry
// pollers consume: GET /readings?since=<RFC3339> for the API connector
// and GET /units/<n>/readings for the modbus gateway connector. Values
// are a deterministic daily load curve plus jitter so baseline and
// savings runs against it look plausible.
type fakeMeterServer struct {
	start    time.Time
	latency  time.Duration
	failRate float64
	token    string
	devices  int
	interval time.Duration

	mu         sync.Mutex
	byDevice   map[string]int64
	totalCalls int64
}

type wireReading struct {
	DeviceID string  `json:"deviceId"`
	ZoneID   string  `json:"zoneId,omitempty"`
	TS       string  `json:"ts"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
}

func main() {
	addr := getenvDefault("FAKE_METER_ADDR", ":19080")
	latencyMs := getenvIntDefault("FAKE_METER_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_METER_FAIL_RATE", 0)
	token := getenvDefault("FAKE_METER_TOKEN", "")
	devices := getenvIntDefault("FAKE_METER_DEVICES", 3)
	intervalMin := getenvIntDefault("FAKE_METER_INTERVAL_MINUTES", 15)

	srv := &fakeMeterServer{
		start:    time.Now().UTC(),
		latency:  time.Duration(latencyMs) * time.Millisecond,
		failRate: failRate,
		token:    token,
		devices:  devices,
		interval: time.Duration(intervalMin) * time.Minute,
		byDevice: make(map[string]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/readings", srv.handleReadings)
	mux.HandleFunc("/units/", srv.handleModbusUnits)

	log.Printf("fake meter server listening on %s (devices=%d interval=%s)", addr, devices, srv.interval)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeMeterServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeMeterServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_device":  s.byDevice,
	})
}

func (s *fakeMeterServer) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		http.Error(w, "injected failure", http.StatusBadGateway)
		return
	}

	now := time.Now().UTC()
	since := now.Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "bad since", http.StatusBadRequest)
			return
		}
		if parsed.After(since) {
			since = parsed.UTC()
		}
	}

	var payload []wireReading
	for d := 1; d <= s.devices; d++ {
		deviceID := "meter-" + strconv.Itoa(d)
		s.recordCall(deviceID)
		payload = append(payload, s.series(deviceID, since, now)...)
	}
	writeJSON(w, payload)
}

func (s *fakeMeterServer) handleModbusUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/units/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "readings" {
		http.NotFound(w, r)
		return
	}
	unitID, err := strconv.Atoi(parts[0])
	if err != nil {
		http.Error(w, "bad unit id", http.StatusBadRequest)
		return
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		http.Error(w, "injected failure", http.StatusBadGateway)
		return
	}

	// A modbus gateway serves only the current register snapshot.
	now := time.Now().UTC().Truncate(s.interval)
	deviceID := "unit-" + strconv.Itoa(unitID)
	s.recordCall(deviceID)
	writeJSON(w, []wireReading{
		{DeviceID: deviceID, TS: now.Format(time.RFC3339), Kind: "power_kw", Value: loadCurveKW(deviceID, now)},
	})
}

// series emits one power_kw and one energy_kwh sample per interval
// boundary in (since, until].
func (s *fakeMeterServer) series(deviceID string, since, until time.Time) []wireReading {
	var out []wireReading
	zoneID := "zone-" + deviceID
	hours := s.interval.Hours()
	for ts := since.Truncate(s.interval).Add(s.interval); !ts.After(until); ts = ts.Add(s.interval) {
		kw := loadCurveKW(deviceID, ts)
		out = append(out,
			wireReading{DeviceID: deviceID, ZoneID: zoneID, TS: ts.Format(time.RFC3339), Kind: "power_kw", Value: kw},
			wireReading{DeviceID: deviceID, ZoneID: zoneID, TS: ts.Format(time.RFC3339), Kind: "energy_kwh", Value: kw * hours},
		)
	}
	return out
}

// loadCurveKW is a stable diurnal curve: base load plus a daytime hump,
// with per-device offset and small deterministic jitter.
func loadCurveKW(deviceID string, ts time.Time) float64 {
	base := 40.0 + float64(len(deviceID)%5)*7
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	hump := 30 * math.Sin(math.Pi*(hour-6)/14)
	if hour < 6 || hour > 20 {
		hump = 0
	}
	jitter := float64((ts.Unix()/60+int64(len(deviceID)))%7) - 3
	return math.Max(base+hump+jitter, 1)
}

func (s *fakeMeterServer) recordCall(deviceID string) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice[deviceID]++
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
