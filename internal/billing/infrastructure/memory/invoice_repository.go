package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	billing "vibelux-energy/internal/billing/domain"
	savings "vibelux-energy/internal/savings/domain"
)

// InvoiceRepository is an in-memory double mirroring the single-current
// invariant of the Postgres implementation.
type InvoiceRepository struct {
	mu       sync.Mutex
	invoices map[string]*billing.Invoice
}

// NewInvoiceRepository constructs an empty repository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{invoices: make(map[string]*billing.Invoice)}
}

// GetByID implements billing.InvoiceRepository.
func (r *InvoiceRepository) GetByID(_ context.Context, id string) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	copied := *invoice
	return &copied, nil
}

// FindCurrent implements billing.InvoiceRepository.
func (r *InvoiceRepository) FindCurrent(_ context.Context, facilityID string, period savings.Period) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice := r.findCurrentLocked(facilityID, period)
	if invoice == nil {
		return nil, nil
	}
	copied := *invoice
	return &copied, nil
}

// ListVersions implements billing.InvoiceRepository.
func (r *InvoiceRepository) ListVersions(_ context.Context, facilityID string, period savings.Period) ([]billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var versions []billing.Invoice
	for _, invoice := range r.invoices {
		if invoice.FacilityID == facilityID && invoice.Period == period {
			versions = append(versions, *invoice)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

// ListForFacility implements billing.InvoiceRepository.
func (r *InvoiceRepository) ListForFacility(_ context.Context, facilityID string) ([]billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current []billing.Invoice
	for _, invoice := range r.invoices {
		if invoice.FacilityID == facilityID && invoice.Status == billing.StatusCurrent {
			current = append(current, *invoice)
		}
	}
	sort.Slice(current, func(i, j int) bool {
		return current[i].Period.Start().Before(current[j].Period.Start())
	})
	return current, nil
}

// CreateSuperseding implements billing.InvoiceRepository.
func (r *InvoiceRepository) CreateSuperseding(_ context.Context, invoice *billing.Invoice, supersededID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if supersededID != "" {
		prior, ok := r.invoices[supersededID]
		if !ok || prior.Status != billing.StatusCurrent || prior.PaymentStatus == billing.PaymentPaid {
			return billing.ErrSupersedeConflict
		}
		prior.Status = billing.StatusVoided
		prior.VoidReason = "superseded by " + invoice.ID
		prior.VoidedAt = time.Now().UTC()
	}
	if existing := r.findCurrentLocked(invoice.FacilityID, invoice.Period); existing != nil {
		return billing.ErrSupersedeConflict
	}

	copied := *invoice
	r.invoices[invoice.ID] = &copied
	return nil
}

// SetPaymentStatus implements billing.InvoiceRepository.
func (r *InvoiceRepository) SetPaymentStatus(_ context.Context, id, status string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[id]
	if !ok || invoice.Status != billing.StatusCurrent {
		return billing.ErrInvoiceNotFound
	}
	invoice.PaymentStatus = status
	if status == billing.PaymentPaid {
		invoice.PaidAt = at
	} else {
		invoice.PaidAt = time.Time{}
	}
	invoice.UpdatedAt = at
	return nil
}

func (r *InvoiceRepository) findCurrentLocked(facilityID string, period savings.Period) *billing.Invoice {
	for _, invoice := range r.invoices {
		if invoice.FacilityID == facilityID && invoice.Period == period && invoice.Status == billing.StatusCurrent {
			return invoice
		}
	}
	return nil
}
