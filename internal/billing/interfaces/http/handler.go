package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	baseline "vibelux-energy/internal/baseline/domain"
	"vibelux-energy/internal/billing/application"
	billing "vibelux-energy/internal/billing/domain"
	"vibelux-energy/internal/billing/interfaces"

	"vibelux-energy/internal/auth"
	"vibelux-energy/internal/observability/metrics"
	savings "vibelux-energy/internal/savings/domain"
)

// Handler serves invoice generation, lookup, export and payment callbacks.
type Handler struct {
	service  *application.InvoiceService
	invoices billing.InvoiceRepository
	logger   *log.Logger
}

// NewHandler constructs a billing handler.
func NewHandler(service *application.InvoiceService, invoices billing.InvoiceRepository, logger *log.Logger) (*Handler, error) {
	if service == nil || invoices == nil {
		return nil, errors.New("billing handler: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, invoices: invoices, logger: logger}, nil
}

// Invoices serves POST and GET /api/v1/invoices.
func (h *Handler) Invoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.generate(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// InvoiceByID serves /api/v1/invoices/{id}[/export|/payment].
func (h *Handler) InvoiceByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/invoices/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.get(w, r, id)
	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet:
		h.export(w, r, id)
	case len(parts) == 2 && parts[1] == "payment" && r.Method == http.MethodPost:
		h.payment(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FacilityID string `json:"facilityId"`
		Period     string `json:"period"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	period, err := savings.ParsePeriod(req.Period)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.FacilityID == "" {
		http.Error(w, "missing facilityId", http.StatusBadRequest)
		return
	}

	invoice, err := h.service.Generate(r.Context(), req.FacilityID, period, auth.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	facilityID := r.URL.Query().Get("facilityId")
	if facilityID == "" {
		http.Error(w, "missing facilityId", http.StatusBadRequest)
		return
	}
	invoices, err := h.invoices.ListForFacility(r.Context(), facilityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, id string) {
	invoice, err := h.invoices.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if invoice == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, id string) {
	invoice, err := h.invoices.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if invoice == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	switch format {
	case "pdf":
		payload, err := interfaces.BuildInvoicePDF(invoice)
		if err != nil {
			h.writeError(w, err)
			return
		}
		metrics.IncInvoiceExport("pdf")
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.pdf"`)
		_, _ = w.Write(payload)
	case "xlsx":
		versions, err := h.invoices.ListVersions(r.Context(), invoice.FacilityID, invoice.Period)
		if err != nil {
			h.writeError(w, err)
			return
		}
		payload, err := interfaces.BuildInvoiceXLSX(invoice, versions)
		if err != nil {
			h.writeError(w, err)
			return
		}
		metrics.IncInvoiceExport("xlsx")
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.xlsx"`)
		_, _ = w.Write(payload)
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	invoice, err := h.service.RecordPayment(r.Context(), id, req.Status, auth.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrInvoiceLocked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, billing.ErrSupersedeConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, billing.ErrInvoiceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, savings.ErrIncompleteData), errors.Is(err, baseline.ErrBaselineNotEstablished):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Printf("billing handler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
