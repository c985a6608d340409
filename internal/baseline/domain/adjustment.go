package baseline

import (
	"context"
	"errors"
	"math"
	"time"
)

// demandApportionDays spreads a monthly demand charge across billing days
// when pricing a demand delta into daily buckets.
const demandApportionDays = 30

// Adjustment is an operator-entered delta applied to every baseline day its
// effective range intersects. Used for non-routine changes such as occupancy
// shifts or added equipment. A zero EffectiveEnd leaves the adjustment
// open-ended. Rate overrides are optional; zero means the facility tariff
// applies.
type Adjustment struct {
	ID             string    `json:"id"`
	FacilityID     string    `json:"facility_id"`
	EffectiveStart time.Time `json:"effective_start"`
	EffectiveEnd   time.Time `json:"effective_end,omitempty"`

	DeltaKWhPerDay float64 `json:"delta_kwh_per_day"`
	DemandKWDelta  float64 `json:"demand_kw_delta,omitempty"`

	RatePerKWhCents     int64 `json:"rate_per_kwh_cents,omitempty"`
	DemandChargeCentsKW int64 `json:"demand_charge_cents_kw,omitempty"`

	Reason    string    `json:"reason"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks adjustment invariants.
func (a Adjustment) Validate() error {
	if a.ID == "" {
		return errors.New("adjustment: empty id")
	}
	if a.FacilityID == "" {
		return errors.New("adjustment: empty facility id")
	}
	if a.EffectiveStart.IsZero() {
		return errors.New("adjustment: zero effective start")
	}
	if !a.EffectiveEnd.IsZero() && !a.EffectiveEnd.After(a.EffectiveStart) {
		return errors.New("adjustment: effective end not after start")
	}
	if a.DeltaKWhPerDay == 0 && a.DemandKWDelta == 0 {
		return errors.New("adjustment: zero delta")
	}
	if a.RatePerKWhCents < 0 || a.DemandChargeCentsKW < 0 {
		return errors.New("adjustment: negative rate override")
	}
	if a.Reason == "" {
		return errors.New("adjustment: reason required")
	}
	return nil
}

// Intersects reports whether the adjustment applies to [dayStart, dayEnd).
// An open-ended adjustment applies to every day at or after its start.
func (a Adjustment) Intersects(dayStart, dayEnd time.Time) bool {
	if !a.EffectiveStart.Before(dayEnd) {
		return false
	}
	return a.EffectiveEnd.IsZero() || a.EffectiveEnd.After(dayStart)
}

// DailyCostDeltaCents prices the adjustment's daily cost impact. Energy is
// priced per kWh and the demand delta carries a monthly demand charge
// apportioned per day. Facility tariffs fill in where the adjustment sets
// no override.
func (a Adjustment) DailyCostDeltaCents(facilityRateCents, facilityDemandCents int64) int64 {
	rate := a.RatePerKWhCents
	if rate == 0 {
		rate = facilityRateCents
	}
	demandRate := a.DemandChargeCentsKW
	if demandRate == 0 {
		demandRate = facilityDemandCents
	}
	delta := a.DeltaKWhPerDay*float64(rate) + a.DemandKWDelta*float64(demandRate)/demandApportionDays
	return int64(math.Round(delta))
}

// AdjustmentRepository manages adjustment persistence.
type AdjustmentRepository interface {
	Save(ctx context.Context, adjustment *Adjustment) error
	ListIntersecting(ctx context.Context, facilityID string, start, end time.Time) ([]Adjustment, error)
}
