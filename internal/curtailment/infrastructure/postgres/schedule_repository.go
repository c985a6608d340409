package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	curtailment "vibelux-energy/internal/curtailment/domain"
)

// ScheduleRepository persists load-shedding schedules. Conflict resolution
// runs inside a transaction holding a pg advisory lock keyed on the
// (facility, zone) pair, and every status transition is a compare-and-swap
// on the previous status.
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository constructs a repository.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, facility_id, zone_id, start_time, end_time,
	target_reduction_kw, actual_reduction_kw, priority, reason, status,
	parent_id, cancel_reason, created_by, created_at, updated_at,
	activated_at, completed_at`

// Get fetches one schedule.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*curtailment.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+scheduleColumns+`
FROM load_shedding_schedules
WHERE id = $1
LIMIT 1`, id)
	return scanSchedule(row)
}

// List lists schedules by filter.
func (r *ScheduleRepository) List(ctx context.Context, filter curtailment.Filter) ([]curtailment.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	query := `
SELECT ` + scheduleColumns + `
FROM load_shedding_schedules
WHERE facility_id = $1`
	args := []any{filter.FacilityID}
	if filter.ZoneID != "" {
		args = append(args, filter.ZoneID)
		query += ` AND zone_id = $2`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		if filter.ZoneID != "" {
			query += ` AND status = $3`
		} else {
			query += ` AND status = $2`
		}
	}
	query += ` ORDER BY start_time`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// InZoneLock runs fn in a transaction holding the zone's advisory lock.
func (r *ScheduleRepository) InZoneLock(ctx context.Context, facilityID, zoneID string, fn func(curtailment.TxStore) error) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The xact lock releases with the transaction, so there is no unlock
	// path to forget on error.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, facilityID+"/"+zoneID); err != nil {
		return err
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDueActivations returns scheduled rows whose start has passed.
func (r *ScheduleRepository) ListDueActivations(ctx context.Context, now time.Time) ([]curtailment.Schedule, error) {
	return r.listDue(ctx, curtailment.StatusScheduled, "start_time", now)
}

// ListDueCompletions returns active rows whose end has passed.
func (r *ScheduleRepository) ListDueCompletions(ctx context.Context, now time.Time) ([]curtailment.Schedule, error) {
	return r.listDue(ctx, curtailment.StatusActive, "end_time", now)
}

func (r *ScheduleRepository) listDue(ctx context.Context, status, column string, now time.Time) ([]curtailment.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+scheduleColumns+`
FROM load_shedding_schedules
WHERE status = $1 AND `+column+` <= $2
ORDER BY `+column, status, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// TransitionCAS advances a schedule from one status to the next. Zero
// rows affected means another worker already moved it.
func (r *ScheduleRepository) TransitionCAS(ctx context.Context, id, from, to string, now time.Time, actualReductionKW float64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("schedule repo: nil db")
	}
	if !curtailment.CanTransition(from, to) {
		return false, curtailment.TransitionError(from, to)
	}

	var result sql.Result
	var err error
	switch to {
	case curtailment.StatusActive:
		result, err = r.db.ExecContext(ctx, `
UPDATE load_shedding_schedules
SET status = $3, activated_at = $4, updated_at = $4
WHERE id = $1 AND status = $2`, id, from, to, now.UTC())
	case curtailment.StatusCompleted:
		result, err = r.db.ExecContext(ctx, `
UPDATE load_shedding_schedules
SET status = $3, actual_reduction_kw = $4, completed_at = $5, updated_at = $5
WHERE id = $1 AND status = $2`, id, from, to, actualReductionKW, now.UTC())
	case curtailment.StatusCancelled:
		result, err = r.db.ExecContext(ctx, `
UPDATE load_shedding_schedules
SET status = $3, cancel_reason = 'cancelled by operator', updated_at = $4
WHERE id = $1 AND status = $2`, id, from, to, now.UTC())
	default:
		return false, curtailment.TransitionError(from, to)
	}
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type txStore struct {
	tx *sql.Tx
}

func (s *txStore) ListOverlapping(ctx context.Context, facilityID, zoneID string, window curtailment.Window) ([]curtailment.Schedule, error) {
	rows, err := s.tx.QueryContext(ctx, `
SELECT `+scheduleColumns+`
FROM load_shedding_schedules
WHERE facility_id = $1 AND zone_id = $2
  AND status IN ('scheduled','active')
  AND start_time < $4 AND end_time > $3
ORDER BY created_at`, facilityID, zoneID, window.Start.UTC(), window.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (s *txStore) Insert(ctx context.Context, schedule *curtailment.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO load_shedding_schedules (`+scheduleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		schedule.ID,
		schedule.FacilityID,
		schedule.ZoneID,
		schedule.Start.UTC(),
		schedule.End.UTC(),
		schedule.TargetReductionKW,
		schedule.ActualReductionKW,
		schedule.Priority,
		schedule.Reason,
		schedule.Status,
		nullString(schedule.ParentID),
		schedule.CancelReason,
		schedule.CreatedBy,
		schedule.CreatedAt.UTC(),
		schedule.UpdatedAt.UTC(),
		nullTime(schedule.ActivatedAt),
		nullTime(schedule.CompletedAt),
	)
	return err
}

func (s *txStore) Truncate(ctx context.Context, id string, newEnd time.Time) error {
	_, err := s.tx.ExecContext(ctx, `
UPDATE load_shedding_schedules
SET end_time = $2, updated_at = $3
WHERE id = $1 AND status IN ('scheduled','active')`, id, newEnd.UTC(), time.Now().UTC())
	return err
}

func (s *txStore) Cancel(ctx context.Context, id, reason string) error {
	_, err := s.tx.ExecContext(ctx, `
UPDATE load_shedding_schedules
SET status = 'cancelled', cancel_reason = $2, updated_at = $3
WHERE id = $1 AND status IN ('scheduled','active')`, id, reason, time.Now().UTC())
	return err
}

func scanSchedules(rows *sql.Rows) ([]curtailment.Schedule, error) {
	var schedules []curtailment.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row interface{ Scan(dest ...any) error }) (*curtailment.Schedule, error) {
	var schedule curtailment.Schedule
	var parentID sql.NullString
	var activatedAt, completedAt sql.NullTime
	err := row.Scan(
		&schedule.ID,
		&schedule.FacilityID,
		&schedule.ZoneID,
		&schedule.Start,
		&schedule.End,
		&schedule.TargetReductionKW,
		&schedule.ActualReductionKW,
		&schedule.Priority,
		&schedule.Reason,
		&schedule.Status,
		&parentID,
		&schedule.CancelReason,
		&schedule.CreatedBy,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
		&activatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		schedule.ParentID = parentID.String
	}
	if activatedAt.Valid {
		schedule.ActivatedAt = activatedAt.Time
	}
	if completedAt.Valid {
		schedule.CompletedAt = completedAt.Time
	}
	return &schedule, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
