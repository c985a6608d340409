package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	telemetry "vibelux-energy/internal/telemetry/domain"
)

const defaultReadingsTable = "readings"

// valueEpsilon treats float re-deliveries within rounding noise as identical.
const valueEpsilon = 1e-9

// ReadingRepository is a Postgres implementation for canonical readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Upsert stores one reading keyed by (facility_id, device_id, ts, kind).
// Identical re-delivery is a no-op; a different value within the grace
// window replaces the stored value; past the window the row is immutable.
func (r *ReadingRepository) Upsert(ctx context.Context, reading telemetry.Reading, grace time.Duration) (telemetry.UpsertOutcome, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reading repo: nil db")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	selectQuery := fmt.Sprintf(`
SELECT value
FROM %s
WHERE facility_id = $1 AND device_id = $2 AND ts = $3 AND kind = $4
FOR UPDATE`, r.table)

	var existing float64
	err = tx.QueryRowContext(ctx, selectQuery,
		reading.FacilityID, reading.DeviceID, reading.TS, string(reading.Kind)).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	facility_id, device_id, zone_id, ts, kind, value, source, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
)
ON CONFLICT (facility_id, device_id, ts, kind)
DO NOTHING`, r.table)
		res, execErr := tx.ExecContext(ctx, insertQuery,
			reading.FacilityID, reading.DeviceID, nullString(reading.ZoneID), reading.TS,
			string(reading.Kind), reading.Value, string(reading.Source))
		if execErr != nil {
			_ = tx.Rollback()
			return 0, execErr
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			// Lost a race with a concurrent identical insert.
			return telemetry.OutcomeUnchanged, nil
		}
		return telemetry.OutcomeInserted, nil

	case err != nil:
		_ = tx.Rollback()
		return 0, err
	}

	if math.Abs(existing-reading.Value) <= valueEpsilon {
		_ = tx.Rollback()
		return telemetry.OutcomeUnchanged, nil
	}

	if time.Since(reading.TS) > grace {
		_ = tx.Rollback()
		return telemetry.OutcomeImmutable, nil
	}

	updateQuery := fmt.Sprintf(`
UPDATE %s
SET value = $1, source = $2, updated_at = NOW()
WHERE facility_id = $3 AND device_id = $4 AND ts = $5 AND kind = $6`, r.table)
	if _, err := tx.ExecContext(ctx, updateQuery,
		reading.Value, string(reading.Source),
		reading.FacilityID, reading.DeviceID, reading.TS, string(reading.Kind)); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return telemetry.OutcomeUpdated, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
