package application_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	baseline "vibelux-energy/internal/baseline/domain"
	"vibelux-energy/internal/savings/application"
	savings "vibelux-energy/internal/savings/domain"
)

type fixedCurve struct {
	curve *baseline.Curve
	err   error
}

func (s fixedCurve) Compute(context.Context, string, time.Time) (*baseline.Curve, error) {
	return s.curve, s.err
}

type fixedActuals struct {
	days []application.DayActual
}

func (a fixedActuals) ListDailyActuals(context.Context, string, time.Time, time.Time) ([]application.DayActual, error) {
	return a.days, nil
}

func flatCurve(dailyKWh float64, dailyCostCents int64, days int) *baseline.Curve {
	start := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	curve := &baseline.Curve{
		FacilityID:  "fac-1",
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, days),
		Version:     "v-test",
	}
	for d := 0; d < days; d++ {
		curve.Buckets = append(curve.Buckets, baseline.DayBucket{
			DayStart:  start.AddDate(0, 0, d),
			EnergyKWh: dailyKWh,
			CostCents: dailyCostCents,
		})
	}
	return curve
}

func fullMonthActuals(period savings.Period, dailyKWh float64, dailyCostCents int64) []application.DayActual {
	var days []application.DayActual
	for d := 0; d < period.Days(); d++ {
		days = append(days, application.DayActual{
			DayStart:  period.Start().AddDate(0, 0, d),
			EnergyKWh: dailyKWh,
			CostCents: dailyCostCents,
		})
	}
	return days
}

func TestCompute_FullPeriod(t *testing.T) {
	period := savings.Period{Year: 2026, Month: time.February} // 28 days
	curve := flatCurve(100, 1500, 30)
	actuals := fullMonthActuals(period, 78, 1200)

	service, err := application.NewService(fixedCurve{curve: curve}, fixedActuals{days: actuals}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := service.Compute(context.Background(), "fac-1", period, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if result.BaselineKWh != 2800 {
		t.Fatalf("baseline kwh = %v, want 2800", result.BaselineKWh)
	}
	if result.ActualKWh != 78*28 {
		t.Fatalf("actual kwh = %v", result.ActualKWh)
	}
	if math.Abs(result.SavingsPct-22) > 1e-9 {
		t.Fatalf("savings pct = %v, want 22", result.SavingsPct)
	}
	if result.SavingsCents != (1500-1200)*28 {
		t.Fatalf("savings cents = %v, want %v", result.SavingsCents, (1500-1200)*28)
	}
	if result.BestEffort {
		t.Fatal("full coverage must not be flagged best effort")
	}
	if result.BaselineVersion != "v-test" {
		t.Fatalf("baseline version = %q", result.BaselineVersion)
	}
}

func TestCompute_IncompleteWithoutBestEffort(t *testing.T) {
	period := savings.Period{Year: 2026, Month: time.February}
	service, err := application.NewService(
		fixedCurve{curve: flatCurve(100, 1500, 30)},
		fixedActuals{days: fullMonthActuals(period, 80, 1200)[:10]},
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := service.Compute(context.Background(), "fac-1", period, false); !errors.Is(err, savings.ErrIncompleteData) {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestCompute_BestEffortComparesCoveredDaysOnly(t *testing.T) {
	period := savings.Period{Year: 2026, Month: time.February}
	service, err := application.NewService(
		fixedCurve{curve: flatCurve(100, 1500, 30)},
		fixedActuals{days: fullMonthActuals(period, 80, 1200)[:10]},
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := service.Compute(context.Background(), "fac-1", period, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !result.BestEffort {
		t.Fatal("partial coverage must be flagged best effort")
	}
	if result.CoverageDays != 10 || result.PeriodDays != 28 {
		t.Fatalf("coverage = %d/%d", result.CoverageDays, result.PeriodDays)
	}
	// Baseline scales to the covered days, not the whole month.
	if result.BaselineKWh != 1000 {
		t.Fatalf("baseline kwh = %v, want 1000", result.BaselineKWh)
	}
	if math.Abs(result.SavingsPct-20) > 1e-9 {
		t.Fatalf("savings pct = %v, want 20", result.SavingsPct)
	}
}

func TestCompute_NoActualsEvenBestEffort(t *testing.T) {
	period := savings.Period{Year: 2026, Month: time.February}
	service, err := application.NewService(
		fixedCurve{curve: flatCurve(100, 1500, 30)},
		fixedActuals{},
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := service.Compute(context.Background(), "fac-1", period, true); !errors.Is(err, savings.ErrIncompleteData) {
		t.Fatalf("expected ErrIncompleteData, got %v", err)
	}
}

func TestCompute_BaselineErrorPropagates(t *testing.T) {
	period := savings.Period{Year: 2026, Month: time.February}
	service, err := application.NewService(
		fixedCurve{err: baseline.ErrBaselineNotEstablished},
		fixedActuals{},
		nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := service.Compute(context.Background(), "fac-1", period, true); !errors.Is(err, baseline.ErrBaselineNotEstablished) {
		t.Fatalf("expected ErrBaselineNotEstablished, got %v", err)
	}
}
