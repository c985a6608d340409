package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"vibelux-energy/internal/auth"
	"vibelux-energy/internal/curtailment/application"
	curtailment "vibelux-energy/internal/curtailment/domain"
)

// Handler serves schedule creation, listing and cancellation.
type Handler struct {
	scheduler *application.Scheduler
	logger    *log.Logger
}

// NewHandler constructs a scheduler handler.
func NewHandler(scheduler *application.Scheduler, logger *log.Logger) (*Handler, error) {
	if scheduler == nil {
		return nil, errors.New("schedule handler: nil scheduler")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{scheduler: scheduler, logger: logger}, nil
}

// Schedules serves POST and GET /api/v1/schedules.
func (h *Handler) Schedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Cancel serves POST /api/v1/schedules/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/schedules/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "cancel" || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	schedule, err := h.scheduler.Cancel(r.Context(), parts[0], req.Reason, auth.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FacilityID        string  `json:"facilityId"`
		ZoneID            string  `json:"zoneId"`
		Start             string  `json:"start"`
		End               string  `json:"end"`
		TargetReductionKW float64 `json:"targetReductionKw"`
		Priority          int     `json:"priority"`
		Reason            string  `json:"reason"`
		DisablePreemption bool    `json:"disablePreemption"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}

	result, err := h.scheduler.Create(r.Context(), application.CreateRequest{
		FacilityID:        req.FacilityID,
		ZoneID:            req.ZoneID,
		Start:             start,
		End:               end,
		TargetReductionKW: req.TargetReductionKW,
		Priority:          req.Priority,
		Reason:            req.Reason,
		Actor:             auth.SubjectFromContext(r.Context()),
		DisablePreemption: req.DisablePreemption,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	facilityID := r.URL.Query().Get("facilityId")
	if facilityID == "" {
		http.Error(w, "missing facilityId", http.StatusBadRequest)
		return
	}
	schedules, err := h.scheduler.List(r.Context(), curtailment.Filter{
		FacilityID: facilityID,
		ZoneID:     r.URL.Query().Get("zoneId"),
		Status:     r.URL.Query().Get("status"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, curtailment.ErrScheduleNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, curtailment.ErrScheduleConflict), errors.Is(err, curtailment.ErrWindowFullyPreempted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, curtailment.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, curtailment.ErrInvalidSchedule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Printf("schedule handler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
