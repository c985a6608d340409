package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	baseline "vibelux-energy/internal/baseline/domain"
)

// CurveRepository caches computed curves in Postgres. Buckets are stored
// as a JSON column; the cache is keyed by (facility_id, version).
type CurveRepository struct {
	db DBTX
}

// NewCurveRepository constructs a repository.
func NewCurveRepository(db DBTX) *CurveRepository {
	return &CurveRepository{db: db}
}

// Get loads a cached curve, or nil when absent.
func (r *CurveRepository) Get(ctx context.Context, facilityID, version string) (*baseline.Curve, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("curve repo: nil db")
	}

	row := r.db.QueryRowContext(ctx, `
SELECT facility_id, window_start, window_end, frozen, version, buckets, computed_at
FROM baseline_curves
WHERE facility_id = $1 AND version = $2
LIMIT 1`, facilityID, version)

	var curve baseline.Curve
	var buckets []byte
	err := row.Scan(&curve.FacilityID, &curve.WindowStart, &curve.WindowEnd, &curve.Frozen, &curve.Version, &buckets, &curve.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(buckets, &curve.Buckets); err != nil {
		return nil, err
	}
	return &curve, nil
}

// Save upserts a cached curve.
func (r *CurveRepository) Save(ctx context.Context, curve *baseline.Curve) error {
	if r == nil || r.db == nil {
		return errors.New("curve repo: nil db")
	}
	buckets, err := json.Marshal(curve.Buckets)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO baseline_curves (facility_id, version, window_start, window_end, frozen, buckets, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (facility_id, version) DO UPDATE SET
	window_start = EXCLUDED.window_start,
	window_end = EXCLUDED.window_end,
	frozen = EXCLUDED.frozen,
	buckets = EXCLUDED.buckets,
	computed_at = EXCLUDED.computed_at`,
		curve.FacilityID,
		curve.Version,
		curve.WindowStart.UTC(),
		curve.WindowEnd.UTC(),
		curve.Frozen,
		buckets,
		curve.ComputedAt.UTC(),
	)
	return err
}

// DeleteForFacility drops every cached curve for a facility.
func (r *CurveRepository) DeleteForFacility(ctx context.Context, facilityID string) error {
	if r == nil || r.db == nil {
		return errors.New("curve repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM baseline_curves WHERE facility_id = $1`, facilityID)
	return err
}
