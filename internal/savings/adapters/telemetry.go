package adapters

import (
	"context"
	"errors"
	"time"

	"vibelux-energy/internal/savings/application"
	telemetrypg "vibelux-energy/internal/telemetry/infrastructure/postgres"
)

// TelemetryActuals adapts the telemetry daily aggregation to the savings
// calculator's reader.
type TelemetryActuals struct {
	query *telemetrypg.ReadingQuery
}

// NewTelemetryActuals constructs the adapter.
func NewTelemetryActuals(query *telemetrypg.ReadingQuery) (*TelemetryActuals, error) {
	if query == nil {
		return nil, errors.New("savings adapter: nil reading query")
	}
	return &TelemetryActuals{query: query}, nil
}

// ListDailyActuals implements application.ActualsReader.
func (a *TelemetryActuals) ListDailyActuals(ctx context.Context, facilityID string, start, end time.Time) ([]application.DayActual, error) {
	aggregates, err := a.query.ListDailyActuals(ctx, facilityID, start, end)
	if err != nil {
		return nil, err
	}
	actuals := make([]application.DayActual, 0, len(aggregates))
	for _, aggregate := range aggregates {
		actuals = append(actuals, application.DayActual{
			DayStart:  aggregate.DayStart,
			EnergyKWh: aggregate.EnergyKWh,
			CostCents: aggregate.CostCents,
		})
	}
	return actuals, nil
}
