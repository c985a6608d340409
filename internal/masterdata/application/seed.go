package application

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	masterdata "vibelux-energy/internal/masterdata/domain"
)

// SeedFile declares facilities and integrations to upsert at startup.
// It is meant for demo and single-tenant deployments where master data
// lives in version control rather than behind the admin API.
type SeedFile struct {
	Facilities   []seedFacility    `yaml:"facilities"`
	Integrations []seedIntegration `yaml:"integrations"`
}

type seedFacility struct {
	ID                  string  `yaml:"id"`
	TenantID            string  `yaml:"tenant_id"`
	Name                string  `yaml:"name"`
	Timezone            string  `yaml:"timezone"`
	EngagementStart     string  `yaml:"engagement_start"`
	BaselineWindowDays  int     `yaml:"baseline_window_days"`
	GuaranteedMinPct    float64 `yaml:"guaranteed_min_pct"`
	RevenueShareBps     int     `yaml:"revenue_share_bps"`
	Currency            string  `yaml:"currency"`
	RatePerKWhCents     int64   `yaml:"rate_per_kwh_cents"`
	DemandChargeCentsKW int64   `yaml:"demand_charge_cents_kw"`
}

type seedIntegration struct {
	ID                  string                     `yaml:"id"`
	FacilityID          string                     `yaml:"facility_id"`
	Name                string                     `yaml:"name"`
	Connector           masterdata.ConnectorConfig `yaml:"connector"`
	PollIntervalSeconds int                        `yaml:"poll_interval_seconds"`
	RetryBudget         int                        `yaml:"retry_budget"`
}

// LoadSeedFile reads and parses a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return &file, nil
}

// ApplySeed upserts the declared facilities and integrations. Entries that
// fail validation are skipped with a log line so one bad record does not
// block the rest of the file.
func ApplySeed(ctx context.Context, file *SeedFile, defaultTenantID string, facilities masterdata.FacilityRepository, integrations masterdata.IntegrationRepository, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	now := time.Now().UTC()
	for _, sf := range file.Facilities {
		facility := masterdata.Facility{
			ID:                  sf.ID,
			TenantID:            sf.TenantID,
			Name:                sf.Name,
			Timezone:            sf.Timezone,
			BaselineWindowDays:  sf.BaselineWindowDays,
			GuaranteedMinPct:    sf.GuaranteedMinPct,
			RevenueShareBps:     sf.RevenueShareBps,
			Currency:            sf.Currency,
			RatePerKWhCents:     sf.RatePerKWhCents,
			DemandChargeCentsKW: sf.DemandChargeCentsKW,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if facility.TenantID == "" {
			facility.TenantID = defaultTenantID
		}
		if sf.EngagementStart != "" {
			start, err := time.Parse(time.RFC3339, sf.EngagementStart)
			if err != nil {
				logger.Printf("seed: facility %s: bad engagement_start: %v", sf.ID, err)
				continue
			}
			facility.EngagementStart = start.UTC()
		}
		if err := facility.Validate(); err != nil {
			logger.Printf("seed: facility %s skipped: %v", sf.ID, err)
			continue
		}
		if err := facilities.Save(ctx, &facility); err != nil {
			return fmt.Errorf("seed: save facility %s: %w", sf.ID, err)
		}
	}
	for _, si := range file.Integrations {
		integration := masterdata.Integration{
			ID:           si.ID,
			FacilityID:   si.FacilityID,
			Name:         si.Name,
			Connector:    si.Connector,
			PollInterval: time.Duration(si.PollIntervalSeconds) * time.Second,
			RetryBudget:  si.RetryBudget,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := integration.Validate(); err != nil {
			logger.Printf("seed: integration %s skipped: %v", si.ID, err)
			continue
		}
		if err := integrations.Save(ctx, &integration); err != nil {
			return fmt.Errorf("seed: save integration %s: %w", si.ID, err)
		}
	}
	return nil
}
