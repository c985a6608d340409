package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/auth"
	billing "vibelux-energy/internal/billing/domain"
	masterdata "vibelux-energy/internal/masterdata/domain"
	"vibelux-energy/internal/observability/metrics"
	savings "vibelux-energy/internal/savings/domain"
)

// InvoiceGenerated is emitted when a new invoice version becomes current.
type InvoiceGenerated struct {
	InvoiceID         string    `json:"invoice_id"`
	FacilityID        string    `json:"facility_id"`
	Period            string    `json:"period"`
	Version           int       `json:"version"`
	VibeluxShareCents int64     `json:"vibelux_share_cents"`
	GuaranteeMet      bool      `json:"guarantee_met"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// SavingsSource computes a period's measured savings.
type SavingsSource interface {
	Compute(ctx context.Context, facilityID string, period savings.Period, bestEffort bool) (*savings.Result, error)
}

// EventPublisher emits billing events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// InvoiceService generates guarantee-gated invoices.
type InvoiceService struct {
	savings      SavingsSource
	invoices     billing.InvoiceRepository
	facilities   masterdata.FacilityRepository
	publisher    EventPublisher
	auditor      audit.Logger
	netTermsDays int
	logger       *log.Logger
}

// InvoiceOption configures the service.
type InvoiceOption func(*InvoiceService)

// WithNetTerms overrides the payment term used to set invoice due dates.
func WithNetTerms(days int) InvoiceOption {
	return func(s *InvoiceService) {
		if days > 0 {
			s.netTermsDays = days
		}
	}
}

// NewInvoiceService constructs the invoice service.
func NewInvoiceService(savingsSource SavingsSource, invoices billing.InvoiceRepository, facilities masterdata.FacilityRepository, publisher EventPublisher, auditor audit.Logger, logger *log.Logger, opts ...InvoiceOption) (*InvoiceService, error) {
	if savingsSource == nil || invoices == nil || facilities == nil {
		return nil, errors.New("invoice service: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &InvoiceService{
		savings:      savingsSource,
		invoices:     invoices,
		facilities:   facilities,
		publisher:    publisher,
		auditor:      auditor,
		netTermsDays: billing.DefaultNetTermsDays,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Generate creates the next invoice version for a period, voiding the
// unpaid prior version. A paid current invoice locks the period.
func (s *InvoiceService) Generate(ctx context.Context, facilityID string, period savings.Period, actor string) (*billing.Invoice, error) {
	started := time.Now()
	invoice, err := s.generate(ctx, facilityID, period, actor)
	if err != nil {
		metrics.ObserveInvoiceGenerate(metrics.ResultError, time.Since(started))
		return nil, err
	}
	metrics.ObserveInvoiceGenerate(metrics.ResultSuccess, time.Since(started))
	return invoice, nil
}

// GenerateIfMissing returns the existing current invoice when one exists,
// otherwise generates the first version. The monthly run uses this so a
// re-run never stacks versions.
func (s *InvoiceService) GenerateIfMissing(ctx context.Context, facilityID string, period savings.Period, actor string) (*billing.Invoice, error) {
	current, err := s.invoices.FindCurrent(ctx, facilityID, period)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return current, nil
	}
	return s.Generate(ctx, facilityID, period, actor)
}

func (s *InvoiceService) generate(ctx context.Context, facilityID string, period savings.Period, actor string) (*billing.Invoice, error) {
	facility, err := s.facilities.Get(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if facility == nil {
		return nil, fmt.Errorf("invoice service: unknown facility %s", facilityID)
	}

	current, err := s.invoices.FindCurrent(ctx, facilityID, period)
	if err != nil {
		return nil, err
	}
	if current != nil && current.PaymentStatus == billing.PaymentPaid {
		return nil, billing.ErrInvoiceLocked
	}

	// Final invoicing: never best effort, incomplete coverage must fail.
	result, err := s.savings.Compute(ctx, facilityID, period, false)
	if err != nil {
		return nil, err
	}

	split := billing.ComputeSplit(result.SavingsCents, result.SavingsPct, facility.GuaranteedMinPct, facility.RevenueShareBps)

	version := 1
	supersededID := ""
	if current != nil {
		version = current.Version + 1
		supersededID = current.ID
	}
	now := time.Now().UTC()
	invoice := &billing.Invoice{
		ID:                   fmt.Sprintf("inv-%s-%s-v%d", facilityID, period.String(), version),
		FacilityID:           facilityID,
		Period:               period,
		Version:              version,
		Status:               billing.StatusCurrent,
		Currency:             facility.Currency,
		BaselineVersion:      result.BaselineVersion,
		SavingsPct:           result.SavingsPct,
		SavingsCents:         result.SavingsCents,
		VibeluxShareCents:    split.VibeluxShareCents,
		CustomerSavingsCents: split.CustomerSavingsCents,
		GuaranteeMet:         split.GuaranteeMet,
		Reason:               split.Reason,
		DueDate:              now.AddDate(0, 0, s.netTermsDays),
		PaymentStatus:        billing.PaymentUnpaid,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.invoices.CreateSuperseding(ctx, invoice, supersededID); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := InvoiceGenerated{
			InvoiceID:         invoice.ID,
			FacilityID:        facilityID,
			Period:            period.String(),
			Version:           version,
			VibeluxShareCents: invoice.VibeluxShareCents,
			GuaranteeMet:      invoice.GuaranteeMet,
			OccurredAt:        now,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Printf("invoice %s: publish: %v", invoice.ID, err)
		}
	}
	s.audit(ctx, actor, "invoice.generate", invoice)
	return invoice, nil
}

// RecordPayment applies the payment collaborator's callback. Both outcomes
// are persisted: a paid invoice locks its period, a failed attempt keeps the
// invoice open for retry.
func (s *InvoiceService) RecordPayment(ctx context.Context, invoiceID, status string, actor string) (*billing.Invoice, error) {
	if status != billing.PaymentPaid && status != billing.PaymentFailed {
		return nil, fmt.Errorf("invoice service: unsupported payment status %q", status)
	}
	if err := s.invoices.SetPaymentStatus(ctx, invoiceID, status, time.Now().UTC()); err != nil {
		return nil, err
	}
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "invoice.payment", invoice)
	return invoice, nil
}

func (s *InvoiceService) audit(ctx context.Context, actor, action string, invoice *billing.Invoice) {
	if s.auditor == nil || invoice == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"period":  invoice.Period.String(),
		"version": invoice.Version,
	})
	entry := audit.Entry{
		ID:           audit.NewID(),
		TenantID:     auth.TenantIDFromContext(ctx),
		Actor:        actor,
		Action:       action,
		ResourceType: "invoice",
		ResourceID:   invoice.ID,
		FacilityID:   invoice.FacilityID,
		Metadata:     meta,
		IP:           auth.ClientIPFromContext(ctx),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.auditor.Log(ctx, entry); err != nil {
		s.logger.Printf("invoice %s: audit: %v", invoice.ID, err)
	}
}
