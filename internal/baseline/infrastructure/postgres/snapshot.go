package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"vibelux-energy/internal/baseline/application"
	baseline "vibelux-energy/internal/baseline/domain"
)

// SnapshotSource opens REPEATABLE READ read-only transactions so one
// baseline computation sees readings, adjustments and exclusions at a
// single point in time.
type SnapshotSource struct {
	db *sql.DB
}

// NewSnapshotSource constructs a snapshot source.
func NewSnapshotSource(db *sql.DB) (*SnapshotSource, error) {
	if db == nil {
		return nil, errors.New("baseline snapshot: nil db")
	}
	return &SnapshotSource{db: db}, nil
}

// View runs fn against one consistent snapshot.
func (s *SnapshotSource) View(ctx context.Context, fn func(application.Snapshot) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&snapshot{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type snapshot struct {
	tx *sql.Tx
}

func (s *snapshot) Adjustments(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Adjustment, error) {
	return NewAdjustmentRepository(s.tx).ListIntersecting(ctx, facilityID, start, end)
}

func (s *snapshot) Exclusions(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Exclusion, error) {
	return NewExclusionRepository(s.tx).ListIntersecting(ctx, facilityID, start, end)
}

// DailyUsage aggregates readings per day with curtailment intervals carved
// out: a reading falling inside any recorded exclusion does not feed the
// baseline.
func (s *snapshot) DailyUsage(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.DayUsage, error) {
	rows, err := s.tx.QueryContext(ctx, `
SELECT date_trunc('day', r.ts) AS day_start,
	COALESCE(SUM(r.value) FILTER (WHERE r.kind = 'energy_kwh'), 0) AS energy_kwh,
	COALESCE(SUM(r.value) FILTER (WHERE r.kind = 'cost_usd'), 0) AS cost_usd,
	COUNT(*) FILTER (WHERE r.kind = 'energy_kwh') AS energy_count
FROM readings r
WHERE r.facility_id = $1
  AND r.ts >= $2 AND r.ts < $3
  AND NOT EXISTS (
	SELECT 1 FROM baseline_exclusions e
	WHERE e.facility_id = r.facility_id
	  AND r.ts >= e.start_time AND r.ts < e.end_time
  )
GROUP BY day_start
HAVING COUNT(*) FILTER (WHERE r.kind = 'energy_kwh') > 0
ORDER BY day_start`,
		facilityID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dailies []baseline.DayUsage
	for rows.Next() {
		var day baseline.DayUsage
		var costUSD float64
		var energyCount int
		if err := rows.Scan(&day.DayStart, &day.EnergyKWh, &costUSD, &energyCount); err != nil {
			return nil, err
		}
		day.CostCents = int64(math.Round(costUSD * 100))
		dailies = append(dailies, day)
	}
	return dailies, rows.Err()
}
