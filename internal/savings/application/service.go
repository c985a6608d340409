package application

import (
	"context"
	"errors"
	"log"
	"time"

	baseline "vibelux-energy/internal/baseline/domain"
	"vibelux-energy/internal/observability/metrics"
	savings "vibelux-energy/internal/savings/domain"
)

// DayActual is one day of measured consumption inside a billing period.
type DayActual struct {
	DayStart  time.Time
	EnergyKWh float64
	CostCents int64
}

// ActualsReader lists measured daily consumption.
type ActualsReader interface {
	ListDailyActuals(ctx context.Context, facilityID string, start, end time.Time) ([]DayActual, error)
}

// CurveSource serves the current baseline curve.
type CurveSource interface {
	Compute(ctx context.Context, facilityID string, asOf time.Time) (*baseline.Curve, error)
}

// Service measures savings against the baseline.
type Service struct {
	curves  CurveSource
	actuals ActualsReader
	logger  *log.Logger
}

// NewService constructs the savings service.
func NewService(curves CurveSource, actuals ActualsReader, logger *log.Logger) (*Service, error) {
	if curves == nil || actuals == nil {
		return nil, errors.New("savings service: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{curves: curves, actuals: actuals, logger: logger}, nil
}

// Compute measures one billing period. A missing baseline or incomplete
// actuals always surface as errors; bestEffort only relaxes the coverage
// requirement for preview use, never the baseline requirement.
func (s *Service) Compute(ctx context.Context, facilityID string, period savings.Period, bestEffort bool) (*savings.Result, error) {
	curve, err := s.curves.Compute(ctx, facilityID, period.Start())
	if err != nil {
		metrics.IncSavingsCompute(metrics.ResultError)
		return nil, err
	}

	actuals, err := s.actuals.ListDailyActuals(ctx, facilityID, period.Start(), period.End())
	if err != nil {
		metrics.IncSavingsCompute(metrics.ResultError)
		return nil, err
	}

	periodDays := period.Days()
	coverage := len(actuals)
	if coverage < periodDays && !bestEffort {
		metrics.IncSavingsCompute(metrics.ResultError)
		return nil, savings.ErrIncompleteData
	}
	if coverage == 0 {
		metrics.IncSavingsCompute(metrics.ResultError)
		return nil, savings.ErrIncompleteData
	}

	var actualKWh float64
	var actualCostCents int64
	for _, day := range actuals {
		actualKWh += day.EnergyKWh
		actualCostCents += day.CostCents
	}

	// A best-effort estimate compares only the covered days, so a partial
	// month is never measured against a full month of baseline.
	compareDays := periodDays
	if bestEffort && coverage < periodDays {
		compareDays = coverage
	}
	baselineKWh := curve.DailyMeanKWh() * float64(compareDays)
	baselineCostCents := curve.DailyMeanCostCents() * int64(compareDays)

	result := &savings.Result{
		FacilityID:        facilityID,
		Period:            period,
		ActualKWh:         actualKWh,
		ActualCostCents:   actualCostCents,
		BaselineKWh:       baselineKWh,
		BaselineCostCents: baselineCostCents,
		SavingsPct:        savings.Pct(baselineKWh, actualKWh),
		SavingsCents:      baselineCostCents - actualCostCents,
		BaselineVersion:   curve.Version,
		BestEffort:        bestEffort && coverage < periodDays,
		CoverageDays:      coverage,
		PeriodDays:        periodDays,
	}
	metrics.IncSavingsCompute(metrics.ResultSuccess)
	return result, nil
}
