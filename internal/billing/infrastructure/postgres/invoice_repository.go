package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	billing "vibelux-energy/internal/billing/domain"
	savings "vibelux-energy/internal/savings/domain"
)

// InvoiceRepository persists invoice supersede chains. The invoices table
// carries a partial unique index on (facility_id, period_start) WHERE
// status = 'current', so two concurrent generations cannot both win.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, facility_id, period_start, version, status, currency,
	baseline_version, savings_pct, savings_cents, vibelux_share_cents,
	customer_savings_cents, guarantee_met, reason, due_date, payment_status,
	paid_at, void_reason, voided_at, created_at, updated_at`

// GetByID fetches one invoice version.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE id = $1
LIMIT 1`, id)
	return scanInvoice(row)
}

// FindCurrent returns the period's current invoice, or nil.
func (r *InvoiceRepository) FindCurrent(ctx context.Context, facilityID string, period savings.Period) (*billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE facility_id = $1 AND period_start = $2 AND status = 'current'
LIMIT 1`, facilityID, period.Start())
	return scanInvoice(row)
}

// ListVersions lists the full supersede chain of a period.
func (r *InvoiceRepository) ListVersions(ctx context.Context, facilityID string, period savings.Period) ([]billing.Invoice, error) {
	return r.list(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE facility_id = $1 AND period_start = $2
ORDER BY version`, facilityID, period.Start())
}

// ListForFacility lists current invoices of a facility.
func (r *InvoiceRepository) ListForFacility(ctx context.Context, facilityID string) ([]billing.Invoice, error) {
	return r.list(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE facility_id = $1 AND status = 'current'
ORDER BY period_start`, facilityID)
}

// CreateSuperseding voids the unpaid prior version and inserts the next,
// atomically.
func (r *InvoiceRepository) CreateSuperseding(ctx context.Context, invoice *billing.Invoice, supersededID string) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if supersededID != "" {
		result, err := tx.ExecContext(ctx, `
UPDATE invoices
SET status = 'voided', void_reason = 'superseded by ' || $2, voided_at = $3, updated_at = $3
WHERE id = $1 AND status = 'current' AND payment_status <> 'paid'`,
			supersededID, invoice.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// The prior version was paid or already superseded underneath us.
			return billing.ErrSupersedeConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		invoice.ID,
		invoice.FacilityID,
		invoice.Period.Start(),
		invoice.Version,
		invoice.Status,
		invoice.Currency,
		invoice.BaselineVersion,
		invoice.SavingsPct,
		invoice.SavingsCents,
		invoice.VibeluxShareCents,
		invoice.CustomerSavingsCents,
		invoice.GuaranteeMet,
		invoice.Reason,
		nullTime(invoice.DueDate),
		invoice.PaymentStatus,
		nullTime(invoice.PaidAt),
		invoice.VoidReason,
		nullTime(invoice.VoidedAt),
		invoice.CreatedAt.UTC(),
		invoice.UpdatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "uq_invoices_current") {
			return billing.ErrSupersedeConflict
		}
		return err
	}
	return tx.Commit()
}

// SetPaymentStatus records the payment collaborator's callback on the
// current version. Only a paid outcome stamps paid_at.
func (r *InvoiceRepository) SetPaymentStatus(ctx context.Context, id, status string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE invoices
SET payment_status = $2, paid_at = CASE WHEN $2 = 'paid' THEN $3 END, updated_at = $3
WHERE id = $1 AND status = 'current'`,
		id, status, at.UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...any) ([]billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

func scanInvoice(row interface{ Scan(dest ...any) error }) (*billing.Invoice, error) {
	var invoice billing.Invoice
	var periodStart time.Time
	var dueDate, paidAt, voidedAt sql.NullTime
	err := row.Scan(
		&invoice.ID,
		&invoice.FacilityID,
		&periodStart,
		&invoice.Version,
		&invoice.Status,
		&invoice.Currency,
		&invoice.BaselineVersion,
		&invoice.SavingsPct,
		&invoice.SavingsCents,
		&invoice.VibeluxShareCents,
		&invoice.CustomerSavingsCents,
		&invoice.GuaranteeMet,
		&invoice.Reason,
		&dueDate,
		&invoice.PaymentStatus,
		&paidAt,
		&invoice.VoidReason,
		&voidedAt,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	invoice.Period = savings.Period{Year: periodStart.Year(), Month: periodStart.Month()}
	if dueDate.Valid {
		invoice.DueDate = dueDate.Time
	}
	if paidAt.Valid {
		invoice.PaidAt = paidAt.Time
	}
	if voidedAt.Valid {
		invoice.VoidedAt = voidedAt.Time
	}
	return &invoice, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
