package adapters

import (
	"context"
	"errors"
	"time"

	telemetrypg "vibelux-energy/internal/telemetry/infrastructure/postgres"
)

// TelemetryEstimator measures the achieved reduction of an activation as
// the mean zone power over the hour preceding the window minus the mean
// power during it, clamped at zero.
type TelemetryEstimator struct {
	query *telemetrypg.ReadingQuery
}

// NewTelemetryEstimator constructs the estimator.
func NewTelemetryEstimator(query *telemetrypg.ReadingQuery) (*TelemetryEstimator, error) {
	if query == nil {
		return nil, errors.New("reduction estimator: nil reading query")
	}
	return &TelemetryEstimator{query: query}, nil
}

// Estimate implements application.ReductionEstimator.
func (e *TelemetryEstimator) Estimate(ctx context.Context, facilityID, zoneID string, start, end time.Time) (float64, bool, error) {
	before, beforeOK, err := e.query.MeanPowerKW(ctx, facilityID, zoneID, start.Add(-time.Hour), start)
	if err != nil {
		return 0, false, err
	}
	during, duringOK, err := e.query.MeanPowerKW(ctx, facilityID, zoneID, start, end)
	if err != nil {
		return 0, false, err
	}
	if !beforeOK || !duringOK {
		return 0, false, nil
	}

	reduction := before - during
	if reduction < 0 {
		reduction = 0
	}
	return reduction, true, nil
}
