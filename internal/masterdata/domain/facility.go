package masterdata

import (
	"context"
	"errors"
	"time"
)

// Facility represents a managed facility under an energy-savings contract.
type Facility struct {
	ID       string
	TenantID string
	Name     string
	Timezone string

	// Contract parameters. EngagementStart freezes the baseline window;
	// before it is set the baseline is a trailing window.
	EngagementStart     time.Time
	BaselineWindowDays  int
	GuaranteedMinPct    float64
	RevenueShareBps     int
	Currency            string
	RatePerKWhCents     int64
	DemandChargeCentsKW int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks facility invariants.
func (f Facility) Validate() error {
	if f.ID == "" {
		return errors.New("facility: empty id")
	}
	if f.TenantID == "" {
		return errors.New("facility: empty tenant id")
	}
	if f.Name == "" {
		return errors.New("facility: empty name")
	}
	if f.GuaranteedMinPct < 0 || f.GuaranteedMinPct > 100 {
		return errors.New("facility: guaranteed minimum pct out of range")
	}
	if f.RevenueShareBps < 0 || f.RevenueShareBps > 10000 {
		return errors.New("facility: revenue share bps out of range")
	}
	if f.BaselineWindowDays < 0 {
		return errors.New("facility: negative baseline window")
	}
	return nil
}

// FacilityRepository manages facility persistence.
type FacilityRepository interface {
	Get(ctx context.Context, id string) (*Facility, error)
	List(ctx context.Context, tenantID string) ([]Facility, error)
	Save(ctx context.Context, facility *Facility) error
}
