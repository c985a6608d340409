package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "vibelux-energy/internal/masterdata/domain"
)

const defaultFacilitiesTable = "facilities"

// FacilityRepository is a Postgres implementation for facilities.
type FacilityRepository struct {
	db    DBTX
	table string
}

// NewFacilityRepository constructs a repository.
func NewFacilityRepository(db DBTX, opts ...FacilityOption) *FacilityRepository {
	repo := &FacilityRepository{db: db, table: defaultFacilitiesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FacilityOption configures the repository.
type FacilityOption func(*FacilityRepository)

// WithFacilityTable overrides the default table name.
func WithFacilityTable(table string) FacilityOption {
	return func(repo *FacilityRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a facility by id.
func (r *FacilityRepository) Get(ctx context.Context, id string) (*masterdata.Facility, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("facility repo: nil db")
	}
	if id == "" {
		return nil, errors.New("facility repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, timezone, engagement_start, baseline_window_days,
	guaranteed_min_pct, revenue_share_bps, currency, rate_per_kwh_cents,
	demand_charge_cents_kw, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var facility masterdata.Facility
	var engagementStart sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&facility.ID,
		&facility.TenantID,
		&facility.Name,
		&facility.Timezone,
		&engagementStart,
		&facility.BaselineWindowDays,
		&facility.GuaranteedMinPct,
		&facility.RevenueShareBps,
		&facility.Currency,
		&facility.RatePerKWhCents,
		&facility.DemandChargeCentsKW,
		&facility.CreatedAt,
		&facility.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if engagementStart.Valid {
		facility.EngagementStart = engagementStart.Time.UTC()
	}
	facility.CreatedAt = facility.CreatedAt.UTC()
	facility.UpdatedAt = facility.UpdatedAt.UTC()
	return &facility, nil
}

// List returns all facilities for a tenant.
func (r *FacilityRepository) List(ctx context.Context, tenantID string) ([]masterdata.Facility, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("facility repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, tenant_id, name, timezone, engagement_start, baseline_window_days,
	guaranteed_min_pct, revenue_share_bps, currency, rate_per_kwh_cents,
	demand_charge_cents_kw, created_at, updated_at
FROM %s
WHERE tenant_id = $1
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Facility
	for rows.Next() {
		var facility masterdata.Facility
		var engagementStart sql.NullTime
		if err := rows.Scan(
			&facility.ID,
			&facility.TenantID,
			&facility.Name,
			&facility.Timezone,
			&engagementStart,
			&facility.BaselineWindowDays,
			&facility.GuaranteedMinPct,
			&facility.RevenueShareBps,
			&facility.Currency,
			&facility.RatePerKWhCents,
			&facility.DemandChargeCentsKW,
			&facility.CreatedAt,
			&facility.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if engagementStart.Valid {
			facility.EngagementStart = engagementStart.Time.UTC()
		}
		result = append(result, facility)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a facility.
func (r *FacilityRepository) Save(ctx context.Context, facility *masterdata.Facility) error {
	if r == nil || r.db == nil {
		return errors.New("facility repo: nil db")
	}
	if facility == nil {
		return errors.New("facility repo: nil facility")
	}
	if err := facility.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if facility.CreatedAt.IsZero() {
		facility.CreatedAt = now
	}
	facility.UpdatedAt = now

	var engagementStart any
	if !facility.EngagementStart.IsZero() {
		engagementStart = facility.EngagementStart
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, tenant_id, name, timezone, engagement_start, baseline_window_days,
	guaranteed_min_pct, revenue_share_bps, currency, rate_per_kwh_cents,
	demand_charge_cents_kw, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	timezone = EXCLUDED.timezone,
	engagement_start = EXCLUDED.engagement_start,
	baseline_window_days = EXCLUDED.baseline_window_days,
	guaranteed_min_pct = EXCLUDED.guaranteed_min_pct,
	revenue_share_bps = EXCLUDED.revenue_share_bps,
	currency = EXCLUDED.currency,
	rate_per_kwh_cents = EXCLUDED.rate_per_kwh_cents,
	demand_charge_cents_kw = EXCLUDED.demand_charge_cents_kw,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		facility.ID, facility.TenantID, facility.Name, facility.Timezone, engagementStart,
		facility.BaselineWindowDays, facility.GuaranteedMinPct, facility.RevenueShareBps,
		facility.Currency, facility.RatePerKWhCents, facility.DemandChargeCentsKW,
		facility.CreatedAt, facility.UpdatedAt)
	return err
}
