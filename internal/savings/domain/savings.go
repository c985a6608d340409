package savings

import (
	"errors"
	"fmt"
	"time"
)

// ErrIncompleteData is returned when actuals do not cover the whole
// billing period and the caller did not ask for a best-effort estimate.
// Final invoicing never extrapolates.
var ErrIncompleteData = errors.New("savings: incomplete actuals for billing period")

// Period is one calendar billing month.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// ParsePeriod parses "2006-01".
func ParsePeriod(raw string) (Period, error) {
	parsed, err := time.Parse("2006-01", raw)
	if err != nil {
		return Period{}, fmt.Errorf("savings: invalid period %q", raw)
	}
	return Period{Year: parsed.Year(), Month: parsed.Month()}, nil
}

// Start is the inclusive period start.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the exclusive period end.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Days is the number of days in the period.
func (p Period) Days() int {
	return int(p.End().Sub(p.Start()).Hours() / 24)
}

// String renders "2006-01".
func (p Period) String() string {
	return p.Start().Format("2006-01")
}

// Result is the measured outcome of one billing period. Monetary values
// are integer cents; the percentage is float for display only.
type Result struct {
	FacilityID        string `json:"facility_id"`
	Period            Period `json:"period"`
	ActualKWh         float64 `json:"actual_kwh"`
	ActualCostCents   int64   `json:"actual_cost_cents"`
	BaselineKWh       float64 `json:"baseline_kwh"`
	BaselineCostCents int64   `json:"baseline_cost_cents"`
	SavingsPct        float64 `json:"savings_pct"`
	SavingsCents      int64   `json:"savings_cents"`
	BaselineVersion   string  `json:"baseline_version"`
	BestEffort        bool    `json:"best_effort"`
	CoverageDays      int     `json:"coverage_days"`
	PeriodDays        int     `json:"period_days"`
}

// Pct computes the savings percentage, clamped to [-100, 100].
func Pct(baselineKWh, actualKWh float64) float64 {
	if baselineKWh <= 0 {
		return 0
	}
	ratio := (baselineKWh - actualKWh) / baselineKWh
	if ratio > 1 {
		ratio = 1
	}
	if ratio < -1 {
		ratio = -1
	}
	return ratio * 100
}
