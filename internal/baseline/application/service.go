package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/auth"
	baseline "vibelux-energy/internal/baseline/domain"
	masterdata "vibelux-energy/internal/masterdata/domain"
	"vibelux-energy/internal/observability/metrics"
)

// Snapshot serves the three inputs of a baseline computation from one
// consistent view, so the curve is never built half against pre-update and
// half against post-update data.
type Snapshot interface {
	Adjustments(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Adjustment, error)
	Exclusions(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Exclusion, error)
	DailyUsage(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.DayUsage, error)
}

// SnapshotSource opens a consistent read view.
type SnapshotSource interface {
	View(ctx context.Context, fn func(Snapshot) error) error
}

// Service computes versioned baseline curves.
type Service struct {
	snapshots  SnapshotSource
	curves     baseline.CurveRepository
	facilities masterdata.FacilityRepository
	auditor    audit.Logger
	logger     *log.Logger
}

// NewService constructs the baseline service.
func NewService(snapshots SnapshotSource, curves baseline.CurveRepository, facilities masterdata.FacilityRepository, auditor audit.Logger, logger *log.Logger) (*Service, error) {
	if snapshots == nil || curves == nil || facilities == nil {
		return nil, errors.New("baseline service: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		snapshots:  snapshots,
		curves:     curves,
		facilities: facilities,
		auditor:    auditor,
		logger:     logger,
	}, nil
}

// Window resolves the historical window for a facility. Once the
// engagement start date is reached the window is frozen at the fixed
// pre-engagement range; before that it trails asOf.
func Window(facility *masterdata.Facility, asOf time.Time) (start, end time.Time, frozen bool) {
	asOf = asOf.UTC().Truncate(24 * time.Hour)
	days := facility.BaselineWindowDays
	if days <= 0 {
		days = baseline.DefaultTrailingDays
	}
	if !facility.EngagementStart.IsZero() && !asOf.Before(facility.EngagementStart.UTC().Truncate(24*time.Hour)) {
		end = facility.EngagementStart.UTC().Truncate(24 * time.Hour)
		return end.AddDate(0, 0, -days), end, true
	}
	return asOf.AddDate(0, 0, -days), asOf, false
}

// Compute builds (or serves from cache) the baseline curve for a facility
// as of the given time.
func (s *Service) Compute(ctx context.Context, facilityID string, asOf time.Time) (*baseline.Curve, error) {
	started := time.Now()
	curve, err := s.compute(ctx, facilityID, asOf)
	if err != nil {
		metrics.ObserveBaselineCompute(metrics.ResultError, time.Since(started))
		return nil, err
	}
	metrics.ObserveBaselineCompute(metrics.ResultSuccess, time.Since(started))
	return curve, nil
}

func (s *Service) compute(ctx context.Context, facilityID string, asOf time.Time) (*baseline.Curve, error) {
	facility, err := s.facilities.Get(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if facility == nil {
		return nil, baseline.ErrFacilityNotFound
	}

	windowStart, windowEnd, frozen := Window(facility, asOf)

	var curve *baseline.Curve
	err = s.snapshots.View(ctx, func(snap Snapshot) error {
		adjustments, err := snap.Adjustments(ctx, facilityID, windowStart, windowEnd)
		if err != nil {
			return err
		}
		exclusions, err := snap.Exclusions(ctx, facilityID, windowStart, windowEnd)
		if err != nil {
			return err
		}

		version := baseline.ComputeVersion(windowStart, windowEnd, adjustments, exclusions)
		cached, err := s.curves.Get(ctx, facilityID, version)
		if err != nil {
			return err
		}
		if cached != nil {
			curve = cached
			return nil
		}

		dailies, err := snap.DailyUsage(ctx, facilityID, windowStart, windowEnd)
		if err != nil {
			return err
		}
		if len(dailies) < baseline.MinHistoryDays {
			return baseline.ErrBaselineNotEstablished
		}

		curve = buildCurve(facility, windowStart, windowEnd, frozen, version, dailies, adjustments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.curves.Save(ctx, curve); err != nil {
		// The curve is still usable; caching is best effort.
		s.logger.Printf("baseline: cache save for %s: %v", facilityID, err)
	}
	return curve, nil
}

// Rebaseline drops cached curves and recomputes, leaving an audit trail.
// Past invoices are untouched; repricing an issued invoice is an explicit
// amendment, never a side effect of recomputing the baseline.
func (s *Service) Rebaseline(ctx context.Context, facilityID, actor, reason string) (*baseline.Curve, error) {
	if err := s.curves.DeleteForFacility(ctx, facilityID); err != nil {
		return nil, err
	}
	curve, err := s.Compute(ctx, facilityID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		meta, _ := json.Marshal(map[string]string{"reason": reason, "version": curve.Version})
		entry := audit.Entry{
			ID:           audit.NewID(),
			TenantID:     auth.TenantIDFromContext(ctx),
			Actor:        actor,
			Action:       "baseline.rebaseline",
			ResourceType: "baseline",
			ResourceID:   curve.Version,
			FacilityID:   facilityID,
			Metadata:     meta,
			IP:           auth.ClientIPFromContext(ctx),
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.auditor.Log(ctx, entry); err != nil {
			s.logger.Printf("baseline: audit log: %v", err)
		}
	}
	return curve, nil
}

func buildCurve(facility *masterdata.Facility, windowStart, windowEnd time.Time, frozen bool, version string, dailies []baseline.DayUsage, adjustments []baseline.Adjustment) *baseline.Curve {
	buckets := make([]baseline.DayBucket, 0, len(dailies))
	for _, day := range dailies {
		bucket := baseline.DayBucket{
			DayStart:  day.DayStart,
			EnergyKWh: day.EnergyKWh,
			CostCents: day.CostCents,
		}
		dayEnd := day.DayStart.AddDate(0, 0, 1)
		for _, adjustment := range adjustments {
			if adjustment.Intersects(day.DayStart, dayEnd) {
				bucket.EnergyKWh += adjustment.DeltaKWhPerDay
				bucket.CostCents += adjustment.DailyCostDeltaCents(facility.RatePerKWhCents, facility.DemandChargeCentsKW)
			}
		}
		buckets = append(buckets, bucket)
	}
	return &baseline.Curve{
		FacilityID:  facility.ID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Frozen:      frozen,
		Version:     version,
		Buckets:     buckets,
		ComputedAt:  time.Now().UTC(),
	}
}
