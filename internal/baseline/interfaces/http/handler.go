package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/auth"
	"vibelux-energy/internal/baseline/application"
	baseline "vibelux-energy/internal/baseline/domain"
)

// Handler serves baseline curves and adjustments.
type Handler struct {
	service     *application.Service
	adjustments baseline.AdjustmentRepository
	tenants     auth.FacilityTenantChecker
	auditor     audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a baseline handler. The tenant checker and auditor
// may be nil; tenancy enforcement and the audit trail are then skipped.
func NewHandler(service *application.Service, adjustments baseline.AdjustmentRepository, tenants auth.FacilityTenantChecker, auditor audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil || adjustments == nil {
		return nil, errors.New("baseline handler: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, adjustments: adjustments, tenants: tenants, auditor: auditor, logger: logger}, nil
}

// GetBaseline serves GET /api/v1/baseline.
func (h *Handler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	facilityID := r.URL.Query().Get("facilityId")
	if facilityID == "" {
		http.Error(w, "missing facilityId", http.StatusBadRequest)
		return
	}
	if !h.checkTenant(w, r, facilityID) {
		return
	}
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid asOf", http.StatusBadRequest)
			return
		}
		asOf = parsed.UTC()
	}

	curve, err := h.service.Compute(r.Context(), facilityID, asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

// Recompute serves POST /api/v1/baseline/recompute.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		FacilityID string `json:"facilityId"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.FacilityID == "" || req.Reason == "" {
		http.Error(w, "facilityId and reason required", http.StatusBadRequest)
		return
	}
	if !h.checkTenant(w, r, req.FacilityID) {
		return
	}

	actor := auth.SubjectFromContext(r.Context())
	curve, err := h.service.Rebaseline(r.Context(), req.FacilityID, actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

// Adjustments serves POST and GET /api/v1/baseline/adjustments.
func (h *Handler) Adjustments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAdjustment(w, r)
	case http.MethodGet:
		h.listAdjustments(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FacilityID          string  `json:"facilityId"`
		EffectiveStart      string  `json:"effectiveStart"`
		EffectiveEnd        string  `json:"effectiveEnd"`
		DeltaKWhPerDay      float64 `json:"deltaKwhPerDay"`
		DemandKWDelta       float64 `json:"demandKwDelta"`
		RatePerKWhCents     int64   `json:"ratePerKwhCents"`
		DemandChargeCentsKW int64   `json:"demandChargeCentsKw"`
		Reason              string  `json:"reason"`
		Notes               string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.EffectiveStart)
	if err != nil {
		http.Error(w, "invalid effectiveStart", http.StatusBadRequest)
		return
	}
	// EffectiveEnd is optional; omitting it leaves the adjustment open-ended.
	var end time.Time
	if req.EffectiveEnd != "" {
		parsed, err := time.Parse(time.RFC3339, req.EffectiveEnd)
		if err != nil {
			http.Error(w, "invalid effectiveEnd", http.StatusBadRequest)
			return
		}
		end = parsed.UTC()
	}
	if !h.checkTenant(w, r, req.FacilityID) {
		return
	}

	adjustment := &baseline.Adjustment{
		ID:                  uuid.NewString(),
		FacilityID:          req.FacilityID,
		EffectiveStart:      start.UTC(),
		EffectiveEnd:        end,
		DeltaKWhPerDay:      req.DeltaKWhPerDay,
		DemandKWDelta:       req.DemandKWDelta,
		RatePerKWhCents:     req.RatePerKWhCents,
		DemandChargeCentsKW: req.DemandChargeCentsKW,
		Reason:              req.Reason,
		Notes:               req.Notes,
		CreatedBy:           auth.SubjectFromContext(r.Context()),
		CreatedAt:           time.Now().UTC(),
	}
	if err := adjustment.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.adjustments.Save(r.Context(), adjustment); err != nil {
		h.writeError(w, err)
		return
	}
	h.auditAdjustment(r, adjustment)
	writeJSON(w, http.StatusCreated, adjustment)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	facilityID := r.URL.Query().Get("facilityId")
	if facilityID == "" {
		http.Error(w, "missing facilityId", http.StatusBadRequest)
		return
	}
	if !h.checkTenant(w, r, facilityID) {
		return
	}
	start := time.Now().UTC().AddDate(-1, 0, 0)
	end := time.Now().UTC().AddDate(0, 0, 1)
	adjustments, err := h.adjustments.ListIntersecting(r.Context(), facilityID, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustments)
}

// checkTenant rejects requests whose JWT tenant does not own the facility.
func (h *Handler) checkTenant(w http.ResponseWriter, r *http.Request, facilityID string) bool {
	if h.tenants == nil {
		return true
	}
	err := h.tenants.EnsureFacilityTenant(r.Context(), auth.TenantIDFromContext(r.Context()), facilityID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrTenantMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, auth.ErrNotFound):
		http.Error(w, "facility not found", http.StatusNotFound)
	default:
		h.writeError(w, err)
	}
	return false
}

func (h *Handler) auditAdjustment(r *http.Request, adjustment *baseline.Adjustment) {
	if h.auditor == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"delta_kwh_per_day": adjustment.DeltaKWhPerDay,
		"demand_kw_delta":   adjustment.DemandKWDelta,
		"reason":            adjustment.Reason,
	})
	entry := audit.Entry{
		ID:           audit.NewID(),
		TenantID:     auth.TenantIDFromContext(r.Context()),
		Actor:        adjustment.CreatedBy,
		Action:       "baseline.adjustment.create",
		ResourceType: "adjustment",
		ResourceID:   adjustment.ID,
		FacilityID:   adjustment.FacilityID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.auditor.Log(r.Context(), entry); err != nil {
		h.logger.Printf("baseline handler: audit: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, baseline.ErrBaselineNotEstablished):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, baseline.ErrFacilityNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Printf("baseline handler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
