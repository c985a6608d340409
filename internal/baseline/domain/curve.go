package baseline

import (
	"context"
	"time"
)

// MinHistoryDays is the minimum number of distinct days with actuals a
// window must contain before a baseline is considered established.
const MinHistoryDays = 14

// DefaultTrailingDays is the rolling window length used before a facility
// has an engagement start date.
const DefaultTrailingDays = 90

// DayBucket is one day of the expected-consumption curve. Values include
// adjustment deltas intersecting that day.
type DayBucket struct {
	DayStart  time.Time `json:"day_start"`
	EnergyKWh float64   `json:"energy_kwh"`
	CostCents int64     `json:"cost_cents"`
}

// Curve is a versioned expected-consumption curve over a historical window.
// The version changes whenever the window bounds, the adjustment set or the
// excluded-period set change, so consumers can detect staleness.
type Curve struct {
	FacilityID  string      `json:"facility_id"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Frozen      bool        `json:"frozen"`
	Version     string      `json:"version"`
	Buckets     []DayBucket `json:"buckets"`
	ComputedAt  time.Time   `json:"computed_at"`
}

// DailyMeanKWh is the mean daily usage over the bucketed days.
func (c Curve) DailyMeanKWh() float64 {
	if len(c.Buckets) == 0 {
		return 0
	}
	var total float64
	for _, bucket := range c.Buckets {
		total += bucket.EnergyKWh
	}
	return total / float64(len(c.Buckets))
}

// DailyMeanCostCents is the mean daily cost over the bucketed days.
func (c Curve) DailyMeanCostCents() int64 {
	if len(c.Buckets) == 0 {
		return 0
	}
	var total int64
	for _, bucket := range c.Buckets {
		total += bucket.CostCents
	}
	return total / int64(len(c.Buckets))
}

// DayUsage is one day of exclusion-corrected historical actuals.
type DayUsage struct {
	DayStart  time.Time
	EnergyKWh float64
	CostCents int64
}

// HistoryReader serves daily historical actuals with active-curtailment
// intervals already excluded from the aggregation.
type HistoryReader interface {
	ListDailyUsage(ctx context.Context, facilityID string, start, end time.Time) ([]DayUsage, error)
}

// CurveRepository caches computed curves keyed by facility and version.
type CurveRepository interface {
	Get(ctx context.Context, facilityID, version string) (*Curve, error)
	Save(ctx context.Context, curve *Curve) error
	DeleteForFacility(ctx context.Context, facilityID string) error
}
