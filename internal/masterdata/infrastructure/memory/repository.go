package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	masterdata "vibelux-energy/internal/masterdata/domain"
)

// FacilityRepository is an in-memory facility store for tests.
type FacilityRepository struct {
	mu         sync.Mutex
	facilities map[string]masterdata.Facility
}

func NewFacilityRepository() *FacilityRepository {
	return &FacilityRepository{facilities: make(map[string]masterdata.Facility)}
}

func (r *FacilityRepository) Get(_ context.Context, id string) (*masterdata.Facility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	facility, ok := r.facilities[id]
	if !ok {
		return nil, nil
	}
	return &facility, nil
}

func (r *FacilityRepository) List(_ context.Context, tenantID string) ([]masterdata.Facility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []masterdata.Facility
	for _, facility := range r.facilities {
		if facility.TenantID == tenantID {
			result = append(result, facility)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *FacilityRepository) Save(_ context.Context, facility *masterdata.Facility) error {
	if facility == nil {
		return errors.New("facility repo: nil facility")
	}
	if err := facility.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facilities[facility.ID] = *facility
	return nil
}

// IntegrationRepository is an in-memory integration store for tests.
type IntegrationRepository struct {
	mu           sync.Mutex
	integrations map[string]masterdata.Integration
}

func NewIntegrationRepository() *IntegrationRepository {
	return &IntegrationRepository{integrations: make(map[string]masterdata.Integration)}
}

func (r *IntegrationRepository) Get(_ context.Context, id string) (*masterdata.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	integration, ok := r.integrations[id]
	if !ok {
		return nil, nil
	}
	return &integration, nil
}

func (r *IntegrationRepository) ListActive(_ context.Context) ([]masterdata.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []masterdata.Integration
	for _, integration := range r.integrations {
		if integration.Active {
			result = append(result, integration)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *IntegrationRepository) Save(_ context.Context, integration *masterdata.Integration) error {
	if integration == nil {
		return errors.New("integration repo: nil integration")
	}
	if err := integration.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[integration.ID] = *integration
	return nil
}

func (r *IntegrationRepository) RecordFailure(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	integration, ok := r.integrations[id]
	if !ok {
		return 0, errors.New("integration repo: not found")
	}
	integration.ConsecutiveFailures++
	integration.UpdatedAt = time.Now().UTC()
	r.integrations[id] = integration
	return integration.ConsecutiveFailures, nil
}

func (r *IntegrationRepository) ResetFailures(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	integration, ok := r.integrations[id]
	if !ok {
		return errors.New("integration repo: not found")
	}
	integration.ConsecutiveFailures = 0
	integration.UpdatedAt = time.Now().UTC()
	r.integrations[id] = integration
	return nil
}

func (r *IntegrationRepository) Deactivate(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	integration, ok := r.integrations[id]
	if !ok {
		return errors.New("integration repo: not found")
	}
	integration.Active = false
	integration.DeactivatedReason = reason
	integration.UpdatedAt = time.Now().UTC()
	r.integrations[id] = integration
	return nil
}
