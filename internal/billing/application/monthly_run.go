package application

import (
	"context"
	"errors"
	"log"
	"time"

	baseline "vibelux-energy/internal/baseline/domain"
	billing "vibelux-energy/internal/billing/domain"
	masterdata "vibelux-energy/internal/masterdata/domain"
	savings "vibelux-energy/internal/savings/domain"
)

// MonthlyRun generates first invoice versions for every facility once the
// previous billing period has closed. Facilities whose data is not ready
// yet are retried on the next pass, so the run is safe on a daily ticker.
type MonthlyRun struct {
	service    *InvoiceService
	facilities masterdata.FacilityRepository
	tenantID   string
	logger     *log.Logger
}

// NewMonthlyRun constructs the worker.
func NewMonthlyRun(service *InvoiceService, facilities masterdata.FacilityRepository, tenantID string, logger *log.Logger) (*MonthlyRun, error) {
	if service == nil || facilities == nil {
		return nil, errors.New("monthly run: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MonthlyRun{service: service, facilities: facilities, tenantID: tenantID, logger: logger}, nil
}

// Loop runs once per interval until ctx is cancelled.
func (r *MonthlyRun) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx, time.Now().UTC())
		}
	}
}

// RunOnce attempts invoicing of the period preceding now for every
// facility. Errors are logged per facility and never abort the pass.
func (r *MonthlyRun) RunOnce(ctx context.Context, now time.Time) {
	previous := previousPeriod(now)
	facilities, err := r.facilities.List(ctx, r.tenantID)
	if err != nil {
		r.logger.Printf("monthly run: list facilities: %v", err)
		return
	}

	for _, facility := range facilities {
		invoice, err := r.service.GenerateIfMissing(ctx, facility.ID, previous, "monthly-run")
		switch {
		case err == nil:
			if invoice.CreatedAt.After(now.Add(-time.Minute)) {
				r.logger.Printf("monthly run: generated %s", invoice.ID)
			}
		case errors.Is(err, savings.ErrIncompleteData):
			r.logger.Printf("monthly run: %s %s not fully covered yet", facility.ID, previous)
		case errors.Is(err, baseline.ErrBaselineNotEstablished):
			r.logger.Printf("monthly run: %s has no established baseline", facility.ID)
		case errors.Is(err, billing.ErrInvoiceLocked):
			// Already paid, nothing to do.
		default:
			r.logger.Printf("monthly run: %s %s: %v", facility.ID, previous, err)
		}
	}
}

func previousPeriod(now time.Time) savings.Period {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := firstOfMonth.AddDate(0, -1, 0)
	return savings.Period{Year: prev.Year(), Month: prev.Month()}
}
