package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	baseline "vibelux-energy/internal/baseline/domain"
)

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AdjustmentRepository is a Postgres implementation for baseline adjustments.
type AdjustmentRepository struct {
	db DBTX
}

// NewAdjustmentRepository constructs a repository.
func NewAdjustmentRepository(db DBTX) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

// Save inserts an adjustment. Adjustments are append-only; correcting one
// means adding a compensating adjustment, which keeps curve versions honest.
func (r *AdjustmentRepository) Save(ctx context.Context, adjustment *baseline.Adjustment) error {
	if r == nil || r.db == nil {
		return errors.New("adjustment repo: nil db")
	}
	if err := adjustment.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO adjustments (id, facility_id, effective_start, effective_end, delta_kwh_per_day,
	demand_kw_delta, rate_per_kwh_cents, demand_charge_cents_kw, reason, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING`,
		adjustment.ID,
		adjustment.FacilityID,
		adjustment.EffectiveStart.UTC(),
		nullTime(adjustment.EffectiveEnd),
		adjustment.DeltaKWhPerDay,
		adjustment.DemandKWDelta,
		adjustment.RatePerKWhCents,
		adjustment.DemandChargeCentsKW,
		adjustment.Reason,
		adjustment.Notes,
		adjustment.CreatedBy,
		adjustment.CreatedAt.UTC(),
	)
	return err
}

// ListIntersecting returns adjustments whose effective range intersects
// [start, end), ordered by id for deterministic versioning input.
func (r *AdjustmentRepository) ListIntersecting(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Adjustment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("adjustment repo: nil db")
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, facility_id, effective_start, effective_end, delta_kwh_per_day,
	demand_kw_delta, rate_per_kwh_cents, demand_charge_cents_kw, reason, notes, created_by, created_at
FROM adjustments
WHERE facility_id = $1 AND effective_start < $3
  AND (effective_end IS NULL OR effective_end > $2)
ORDER BY id`,
		facilityID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []baseline.Adjustment
	for rows.Next() {
		var a baseline.Adjustment
		var end sql.NullTime
		if err := rows.Scan(&a.ID, &a.FacilityID, &a.EffectiveStart, &end, &a.DeltaKWhPerDay,
			&a.DemandKWDelta, &a.RatePerKWhCents, &a.DemandChargeCentsKW, &a.Reason, &a.Notes, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		if end.Valid {
			a.EffectiveEnd = end.Time
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
