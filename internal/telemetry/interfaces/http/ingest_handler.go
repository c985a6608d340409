package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"vibelux-energy/internal/telemetry/application"
	telemetry "vibelux-energy/internal/telemetry/domain"
)

// IngestHandler handles normalized reading batches pushed over HTTP.
type IngestHandler struct {
	service *application.IngestService
	logger  *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.IngestService, logger *log.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

// ServeHTTP ingests a reading batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("reading ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Printf("reading ingest: decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	readings, source, err := req.toReadings()
	if err != nil {
		h.logger.Printf("reading ingest: invalid payload: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), req.FacilityID, source, readings)
	if err != nil {
		h.logger.Printf("reading ingest: %v", err)
		http.Error(w, "ingest error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

type ingestRequest struct {
	FacilityID string        `json:"facilityId"`
	Source     string        `json:"source"`
	Readings   []ingestEntry `json:"readings"`
}

type ingestEntry struct {
	DeviceID string  `json:"deviceId"`
	ZoneID   string  `json:"zoneId,omitempty"`
	TS       int64   `json:"ts"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
}

func (r ingestRequest) toReadings() ([]telemetry.Reading, telemetry.Source, error) {
	if r.FacilityID == "" {
		return nil, "", errors.New("missing facilityId")
	}
	source, ok := telemetry.ParseSource(r.Source)
	if !ok {
		return nil, "", errors.New("unknown source")
	}
	if len(r.Readings) == 0 {
		return nil, "", errors.New("no readings")
	}

	readings := make([]telemetry.Reading, 0, len(r.Readings))
	for _, entry := range r.Readings {
		ts, err := parseTimestamp(entry.TS)
		if err != nil {
			// Leave the zero time; the service rejects the item with a
			// per-item error rather than failing the batch.
			ts = time.Time{}
		}
		readings = append(readings, telemetry.Reading{
			FacilityID: r.FacilityID,
			DeviceID:   entry.DeviceID,
			ZoneID:     entry.ZoneID,
			TS:         ts,
			Kind:       telemetry.Kind(entry.Kind),
			Value:      entry.Value,
			Source:     source,
		})
	}
	return readings, source, nil
}

func parseTimestamp(value int64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, errors.New("invalid ts")
	}
	// Accept milliseconds or seconds.
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}
