package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"vibelux-energy/internal/auth"
	masterdata "vibelux-energy/internal/masterdata/domain"
)

// Handler serves facility and integration administration.
type Handler struct {
	facilities   masterdata.FacilityRepository
	integrations masterdata.IntegrationRepository
	logger       *log.Logger
}

// NewHandler constructs a masterdata handler.
func NewHandler(facilities masterdata.FacilityRepository, integrations masterdata.IntegrationRepository, logger *log.Logger) (*Handler, error) {
	if facilities == nil || integrations == nil {
		return nil, errors.New("masterdata handler: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{facilities: facilities, integrations: integrations, logger: logger}, nil
}

// Facilities serves POST and GET /api/v1/facilities.
func (h *Handler) Facilities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.saveFacility(w, r)
	case http.MethodGet:
		h.listFacilities(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Integrations serves POST and GET /api/v1/integrations.
func (h *Handler) Integrations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.saveIntegration(w, r)
	case http.MethodGet:
		h.listIntegrations(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) saveFacility(w http.ResponseWriter, r *http.Request) {
	var facility masterdata.Facility
	if err := json.NewDecoder(r.Body).Decode(&facility); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if facility.ID == "" {
		facility.ID = uuid.NewString()
	}
	if facility.TenantID == "" {
		facility.TenantID = auth.TenantIDFromContext(r.Context())
	}
	now := time.Now().UTC()
	if facility.CreatedAt.IsZero() {
		facility.CreatedAt = now
	}
	facility.UpdatedAt = now
	if err := facility.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.facilities.Save(r.Context(), &facility); err != nil {
		h.logger.Printf("masterdata handler: save facility: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, facility)
}

func (h *Handler) listFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, err := h.facilities.List(r.Context(), auth.TenantIDFromContext(r.Context()))
	if err != nil {
		h.logger.Printf("masterdata handler: list facilities: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, facilities)
}

type integrationRequest struct {
	ID                  string                     `json:"id"`
	FacilityID          string                     `json:"facilityId"`
	Name                string                     `json:"name"`
	Connector           masterdata.ConnectorConfig `json:"connector"`
	PollIntervalSeconds int                        `json:"pollIntervalSeconds"`
	RetryBudget         int                        `json:"retryBudget"`
	Active              *bool                      `json:"active"`
}

func (h *Handler) saveIntegration(w http.ResponseWriter, r *http.Request) {
	var req integrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	integration := &masterdata.Integration{
		ID:           req.ID,
		FacilityID:   req.FacilityID,
		Name:         req.Name,
		Connector:    req.Connector,
		PollInterval: time.Duration(req.PollIntervalSeconds) * time.Second,
		RetryBudget:  req.RetryBudget,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if integration.ID == "" {
		integration.ID = uuid.NewString()
	}
	if req.Active != nil {
		integration.Active = *req.Active
	}
	if err := integration.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.integrations.Save(r.Context(), integration); err != nil {
		h.logger.Printf("masterdata handler: save integration: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// Connector changes take effect when the poller manager restarts.
	writeJSON(w, http.StatusOK, integration)
}

func (h *Handler) listIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.integrations.ListActive(r.Context())
	if err != nil {
		h.logger.Printf("masterdata handler: list integrations: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, integrations)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
