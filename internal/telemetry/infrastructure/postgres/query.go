package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// DayAggregate is one day of actual consumption for a facility.
type DayAggregate struct {
	DayStart    time.Time
	EnergyKWh   float64
	CostCents   int64
	PeakPowerKW float64
}

// ReadingQuery loads reading aggregates for savings and curtailment checks.
type ReadingQuery struct {
	db    *sql.DB
	table string
}

// NewReadingQuery constructs a query helper.
func NewReadingQuery(db *sql.DB, opts ...QueryOption) *ReadingQuery {
	q := &ReadingQuery{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QueryOption configures the query helper.
type QueryOption func(*ReadingQuery)

// WithQueryTable overrides the table name.
func WithQueryTable(table string) QueryOption {
	return func(q *ReadingQuery) {
		if table != "" {
			q.table = table
		}
	}
}

// ListDailyActuals returns per-day energy, cost and peak demand aggregates
// for [start, end). Days without any energy reading are absent.
func (q *ReadingQuery) ListDailyActuals(ctx context.Context, facilityID string, start, end time.Time) ([]DayAggregate, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("reading query: nil db")
	}
	query := fmt.Sprintf(`
SELECT
	date_trunc('day', ts) AS day_start,
	COALESCE(SUM(value) FILTER (WHERE kind = 'energy_kwh'), 0) AS energy_kwh,
	COALESCE(SUM(value) FILTER (WHERE kind = 'cost_usd'), 0) AS cost_usd,
	COALESCE(MAX(value) FILTER (WHERE kind = 'power_kw'), 0) AS peak_power_kw
FROM %s
WHERE facility_id = $1 AND ts >= $2 AND ts < $3
GROUP BY 1
HAVING COUNT(*) FILTER (WHERE kind = 'energy_kwh') > 0
ORDER BY 1 ASC`, q.table)

	rows, err := q.db.QueryContext(ctx, query, facilityID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DayAggregate
	for rows.Next() {
		var day DayAggregate
		var costUSD float64
		if err := rows.Scan(&day.DayStart, &day.EnergyKWh, &costUSD, &day.PeakPowerKW); err != nil {
			return nil, err
		}
		day.DayStart = day.DayStart.UTC()
		day.CostCents = int64(math.Round(costUSD * 100))
		result = append(result, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MeanPowerKW returns the mean power reading for a facility zone over
// [start, end). The second return is false when no samples exist.
func (q *ReadingQuery) MeanPowerKW(ctx context.Context, facilityID, zoneID string, start, end time.Time) (float64, bool, error) {
	if q == nil || q.db == nil {
		return 0, false, errors.New("reading query: nil db")
	}
	query := fmt.Sprintf(`
SELECT AVG(value), COUNT(*)
FROM %s
WHERE facility_id = $1
	AND ($2 = '' OR zone_id = $2)
	AND kind = 'power_kw'
	AND ts >= $3 AND ts < $4`, q.table)

	var avg sql.NullFloat64
	var count int
	if err := q.db.QueryRowContext(ctx, query, facilityID, zoneID, start, end).Scan(&avg, &count); err != nil {
		return 0, false, err
	}
	if count == 0 || !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}
