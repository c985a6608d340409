package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	baseline "vibelux-energy/internal/baseline/domain"
	"vibelux-energy/internal/savings/application"
	savings "vibelux-energy/internal/savings/domain"
)

// Handler serves savings results.
type Handler struct {
	service *application.Service
	logger  *log.Logger
}

// NewHandler constructs a savings handler.
func NewHandler(service *application.Service, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("savings handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, logger: logger}, nil
}

// ServeHTTP serves GET /api/v1/savings.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	facilityID := r.URL.Query().Get("facilityId")
	if facilityID == "" {
		http.Error(w, "missing facilityId", http.StatusBadRequest)
		return
	}
	period, err := savings.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bestEffort := r.URL.Query().Get("bestEffort") == "true"

	result, err := h.service.Compute(r.Context(), facilityID, period, bestEffort)
	if err != nil {
		switch {
		case errors.Is(err, baseline.ErrBaselineNotEstablished), errors.Is(err, savings.ErrIncompleteData):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, baseline.ErrFacilityNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Printf("savings handler: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
