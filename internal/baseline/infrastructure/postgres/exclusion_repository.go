package postgres

import (
	"context"
	"errors"
	"time"

	baseline "vibelux-energy/internal/baseline/domain"
)

// ExclusionRepository is a Postgres implementation for baseline exclusions.
type ExclusionRepository struct {
	db DBTX
}

// NewExclusionRepository constructs a repository.
func NewExclusionRepository(db DBTX) *ExclusionRepository {
	return &ExclusionRepository{db: db}
}

// Save records an exclusion. The schedule id is the primary key, so event
// redelivery is a no-op.
func (r *ExclusionRepository) Save(ctx context.Context, exclusion *baseline.Exclusion) error {
	if r == nil || r.db == nil {
		return errors.New("exclusion repo: nil db")
	}
	if err := exclusion.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO baseline_exclusions (schedule_id, facility_id, zone_id, start_time, end_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (schedule_id) DO NOTHING`,
		exclusion.ScheduleID,
		exclusion.FacilityID,
		exclusion.ZoneID,
		exclusion.Start.UTC(),
		exclusion.End.UTC(),
		exclusion.CreatedAt.UTC(),
	)
	return err
}

// ListIntersecting returns exclusions intersecting [start, end).
func (r *ExclusionRepository) ListIntersecting(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Exclusion, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("exclusion repo: nil db")
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT schedule_id, facility_id, zone_id, start_time, end_time, created_at
FROM baseline_exclusions
WHERE facility_id = $1 AND start_time < $3 AND end_time > $2
ORDER BY schedule_id`,
		facilityID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exclusions []baseline.Exclusion
	for rows.Next() {
		var e baseline.Exclusion
		if err := rows.Scan(&e.ScheduleID, &e.FacilityID, &e.ZoneID, &e.Start, &e.End, &e.CreatedAt); err != nil {
			return nil, err
		}
		exclusions = append(exclusions, e)
	}
	return exclusions, rows.Err()
}
