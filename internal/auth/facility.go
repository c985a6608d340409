package auth

import (
	"context"
	"database/sql"
	"errors"

	masterdatarepo "vibelux-energy/internal/masterdata/infrastructure/postgres"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// FacilityTenantChecker validates facility tenant ownership.
type FacilityTenantChecker interface {
	EnsureFacilityTenant(ctx context.Context, tenantID, facilityID string) error
}

// FacilityChecker checks facility ownership using masterdata.
type FacilityChecker struct {
	repo *masterdatarepo.FacilityRepository
}

// NewFacilityChecker constructs a FacilityChecker.
func NewFacilityChecker(db *sql.DB) *FacilityChecker {
	if db == nil {
		return nil
	}
	return &FacilityChecker{repo: masterdatarepo.NewFacilityRepository(db)}
}

// EnsureFacilityTenant verifies facility belongs to tenant.
func (c *FacilityChecker) EnsureFacilityTenant(ctx context.Context, tenantID, facilityID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || facilityID == "" {
		return nil
	}
	facility, err := c.repo.Get(ctx, facilityID)
	if err != nil {
		return err
	}
	if facility == nil {
		return ErrNotFound
	}
	if facility.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
