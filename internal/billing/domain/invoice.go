package billing

import (
	"context"
	"time"

	savings "vibelux-energy/internal/savings/domain"
)

const (
	// StatusCurrent marks the single billable invoice of a period.
	StatusCurrent = "current"
	// StatusVoided marks a superseded invoice version.
	StatusVoided = "voided"

	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
	PaymentFailed = "failed"
)

// DefaultNetTermsDays is the payment term applied when the service is not
// configured with one.
const DefaultNetTermsDays = 30

// BelowGuaranteeReason is the reason string carried by zero-share invoices.
const BelowGuaranteeReason = "below guarantee threshold"

// Invoice is one version in a billing period's supersede chain. Exactly
// one version per (facility, period) is current; regenerating voids the
// prior version and appends the next. Monetary values are integer cents.
type Invoice struct {
	ID         string         `json:"id"`
	FacilityID string         `json:"facility_id"`
	Period     savings.Period `json:"period"`
	Version    int            `json:"version"`
	Status     string         `json:"status"`

	Currency        string  `json:"currency"`
	BaselineVersion string  `json:"baseline_version"`
	SavingsPct      float64 `json:"savings_pct"`

	SavingsCents         int64  `json:"savings_cents"`
	VibeluxShareCents    int64  `json:"vibelux_share_cents"`
	CustomerSavingsCents int64  `json:"customer_savings_cents"`
	GuaranteeMet         bool   `json:"guarantee_met"`
	Reason               string `json:"reason,omitempty"`

	DueDate       time.Time `json:"due_date,omitempty"`
	PaymentStatus string    `json:"payment_status"`
	PaidAt        time.Time `json:"paid_at,omitempty"`
	VoidReason    string    `json:"void_reason,omitempty"`
	VoidedAt      time.Time `json:"voided_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InvoiceRepository manages the supersede chain. CreateSuperseding must be
// transactional: voiding the prior current version and inserting the next
// either both happen or neither, and a unique constraint on the current
// version per (facility, period) rejects concurrent winners.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id string) (*Invoice, error)
	FindCurrent(ctx context.Context, facilityID string, period savings.Period) (*Invoice, error)
	ListVersions(ctx context.Context, facilityID string, period savings.Period) ([]Invoice, error)
	ListForFacility(ctx context.Context, facilityID string) ([]Invoice, error)
	CreateSuperseding(ctx context.Context, invoice *Invoice, supersededID string) error
	SetPaymentStatus(ctx context.Context, id, status string, at time.Time) error
}
