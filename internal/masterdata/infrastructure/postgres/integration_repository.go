package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	masterdata "vibelux-energy/internal/masterdata/domain"
)

const defaultIntegrationsTable = "integrations"

// IntegrationRepository is a Postgres implementation for integrations.
type IntegrationRepository struct {
	db    *sql.DB
	table string
}

// NewIntegrationRepository constructs a repository.
func NewIntegrationRepository(db *sql.DB, opts ...IntegrationOption) *IntegrationRepository {
	repo := &IntegrationRepository{db: db, table: defaultIntegrationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// IntegrationOption configures the repository.
type IntegrationOption func(*IntegrationRepository)

// WithIntegrationTable overrides the table name.
func WithIntegrationTable(table string) IntegrationOption {
	return func(repo *IntegrationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads an integration by id.
func (r *IntegrationRepository) Get(ctx context.Context, id string) (*masterdata.Integration, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("integration repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, facility_id, name, connector, poll_interval_seconds, retry_budget,
	active, consecutive_failures, deactivated_reason, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)
	return scanIntegration(r.db.QueryRowContext(ctx, query, id))
}

// ListActive returns all active integrations.
func (r *IntegrationRepository) ListActive(ctx context.Context) ([]masterdata.Integration, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("integration repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, facility_id, name, connector, poll_interval_seconds, retry_budget,
	active, consecutive_failures, deactivated_reason, created_at, updated_at
FROM %s
WHERE active
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		if integration != nil {
			result = append(result, *integration)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts an integration.
func (r *IntegrationRepository) Save(ctx context.Context, integration *masterdata.Integration) error {
	if r == nil || r.db == nil {
		return errors.New("integration repo: nil db")
	}
	if integration == nil {
		return errors.New("integration repo: nil integration")
	}
	if err := integration.Validate(); err != nil {
		return err
	}
	connector, err := json.Marshal(integration.Connector)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, facility_id, name, connector, poll_interval_seconds, retry_budget,
	active, consecutive_failures, deactivated_reason, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	connector = EXCLUDED.connector,
	poll_interval_seconds = EXCLUDED.poll_interval_seconds,
	retry_budget = EXCLUDED.retry_budget,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err = r.db.ExecContext(ctx, query,
		integration.ID, integration.FacilityID, integration.Name, connector,
		int(integration.PollInterval.Seconds()), integration.RetryBudget,
		integration.Active, integration.ConsecutiveFailures, integration.DeactivatedReason,
		integration.CreatedAt, integration.UpdatedAt)
	return err
}

// RecordFailure increments the consecutive failure counter and returns it.
func (r *IntegrationRepository) RecordFailure(ctx context.Context, id string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("integration repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET consecutive_failures = consecutive_failures + 1, updated_at = $1
WHERE id = $2
RETURNING consecutive_failures`, r.table)
	var failures int
	if err := r.db.QueryRowContext(ctx, query, time.Now().UTC(), id).Scan(&failures); err != nil {
		return 0, err
	}
	return failures, nil
}

// ResetFailures clears the consecutive failure counter after a success.
func (r *IntegrationRepository) ResetFailures(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("integration repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET consecutive_failures = 0, updated_at = $1
WHERE id = $2`, r.table)
	_, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	return err
}

// Deactivate marks the integration inactive. The guard on active makes the
// call idempotent when several pollers race past the retry budget.
func (r *IntegrationRepository) Deactivate(ctx context.Context, id, reason string) error {
	if r == nil || r.db == nil {
		return errors.New("integration repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET active = FALSE, deactivated_reason = $1, updated_at = $2
WHERE id = $3 AND active`, r.table)
	_, err := r.db.ExecContext(ctx, query, reason, time.Now().UTC(), id)
	return err
}

func scanIntegration(row interface{ Scan(dest ...any) error }) (*masterdata.Integration, error) {
	var integration masterdata.Integration
	var connector []byte
	var pollSeconds int
	err := row.Scan(
		&integration.ID,
		&integration.FacilityID,
		&integration.Name,
		&connector,
		&pollSeconds,
		&integration.RetryBudget,
		&integration.Active,
		&integration.ConsecutiveFailures,
		&integration.DeactivatedReason,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(connector, &integration.Connector); err != nil {
		return nil, err
	}
	integration.PollInterval = time.Duration(pollSeconds) * time.Second
	integration.CreatedAt = integration.CreatedAt.UTC()
	integration.UpdatedAt = integration.UpdatedAt.UTC()
	return &integration, nil
}
