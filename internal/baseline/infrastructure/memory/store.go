package memory

import (
	"context"
	"sync"
	"time"

	"vibelux-energy/internal/baseline/application"
	baseline "vibelux-energy/internal/baseline/domain"
)

// Store is an in-memory stand-in for the baseline persistence: snapshot
// source, adjustment/exclusion repositories and curve cache in one.
type Store struct {
	mu          sync.RWMutex
	readings    map[string][]DayReading
	adjustments []baseline.Adjustment
	exclusions  []baseline.Exclusion
	curves      map[string]*baseline.Curve
}

// DayReading is a raw stored observation used by the daily aggregation.
type DayReading struct {
	TS        time.Time
	EnergyKWh float64
	CostCents int64
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		readings: make(map[string][]DayReading),
		curves:   make(map[string]*baseline.Curve),
	}
}

// AddReading seeds a historical observation.
func (s *Store) AddReading(facilityID string, ts time.Time, energyKWh float64, costCents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[facilityID] = append(s.readings[facilityID], DayReading{TS: ts.UTC(), EnergyKWh: energyKWh, CostCents: costCents})
}

// View runs fn against the store itself; the store mutates only through
// seeding helpers, so the view is trivially consistent.
func (s *Store) View(_ context.Context, fn func(application.Snapshot) error) error {
	return fn(s)
}

// Adjustments implements application.Snapshot.
func (s *Store) Adjustments(_ context.Context, facilityID string, start, end time.Time) ([]baseline.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []baseline.Adjustment
	for _, a := range s.adjustments {
		if a.FacilityID == facilityID && a.Intersects(start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Exclusions implements application.Snapshot.
func (s *Store) Exclusions(_ context.Context, facilityID string, start, end time.Time) ([]baseline.Exclusion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []baseline.Exclusion
	for _, e := range s.exclusions {
		if e.FacilityID == facilityID && e.Start.Before(end) && e.End.After(start) {
			out = append(out, e)
		}
	}
	return out, nil
}

// DailyUsage implements application.Snapshot with exclusion carving.
func (s *Store) DailyUsage(_ context.Context, facilityID string, start, end time.Time) ([]baseline.DayUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make(map[time.Time]*baseline.DayUsage)
	var order []time.Time
	for _, reading := range s.readings[facilityID] {
		if reading.TS.Before(start) || !reading.TS.Before(end) || s.excludedLocked(facilityID, reading.TS) {
			continue
		}
		dayStart := reading.TS.Truncate(24 * time.Hour)
		usage, ok := days[dayStart]
		if !ok {
			usage = &baseline.DayUsage{DayStart: dayStart}
			days[dayStart] = usage
			order = append(order, dayStart)
		}
		usage.EnergyKWh += reading.EnergyKWh
		usage.CostCents += reading.CostCents
	}

	sortTimes(order)
	out := make([]baseline.DayUsage, 0, len(order))
	for _, dayStart := range order {
		out = append(out, *days[dayStart])
	}
	return out, nil
}

func (s *Store) excludedLocked(facilityID string, ts time.Time) bool {
	for _, e := range s.exclusions {
		if e.FacilityID == facilityID && !ts.Before(e.Start) && ts.Before(e.End) {
			return true
		}
	}
	return false
}

// Save implements baseline.AdjustmentRepository.
func (s *Store) Save(_ context.Context, adjustment *baseline.Adjustment) error {
	if err := adjustment.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.adjustments {
		if existing.ID == adjustment.ID {
			return nil
		}
	}
	s.adjustments = append(s.adjustments, *adjustment)
	return nil
}

// ListIntersecting implements baseline.AdjustmentRepository.
func (s *Store) ListIntersecting(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Adjustment, error) {
	return s.Adjustments(ctx, facilityID, start, end)
}

// SaveExclusion records an exclusion, idempotent on schedule id.
func (s *Store) SaveExclusion(_ context.Context, exclusion *baseline.Exclusion) error {
	if err := exclusion.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.exclusions {
		if existing.ScheduleID == exclusion.ScheduleID {
			return nil
		}
	}
	s.exclusions = append(s.exclusions, *exclusion)
	return nil
}

// RemoveExclusion drops an exclusion; used by regression tests.
func (s *Store) RemoveExclusion(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.exclusions[:0]
	for _, e := range s.exclusions {
		if e.ScheduleID != scheduleID {
			kept = append(kept, e)
		}
	}
	s.exclusions = kept
}

// Get implements baseline.CurveRepository.
func (s *Store) Get(_ context.Context, facilityID, version string) (*baseline.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	curve, ok := s.curves[facilityID+"|"+version]
	if !ok {
		return nil, nil
	}
	copied := *curve
	return &copied, nil
}

// SaveCurve implements baseline.CurveRepository's Save.
func (s *Store) SaveCurve(_ context.Context, curve *baseline.Curve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *curve
	s.curves[curve.FacilityID+"|"+curve.Version] = &copied
	return nil
}

// DeleteForFacility implements baseline.CurveRepository.
func (s *Store) DeleteForFacility(_ context.Context, facilityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, curve := range s.curves {
		if curve.FacilityID == facilityID {
			delete(s.curves, key)
		}
	}
	return nil
}

// CurveCache adapts Store to baseline.CurveRepository.
type CurveCache struct{ *Store }

// Save implements baseline.CurveRepository.
func (c CurveCache) Save(ctx context.Context, curve *baseline.Curve) error {
	return c.SaveCurve(ctx, curve)
}

// ExclusionRepo adapts Store to baseline.ExclusionRepository.
type ExclusionRepo struct{ *Store }

// Save implements baseline.ExclusionRepository.
func (r ExclusionRepo) Save(ctx context.Context, exclusion *baseline.Exclusion) error {
	return r.SaveExclusion(ctx, exclusion)
}

// ListIntersecting implements baseline.ExclusionRepository.
func (r ExclusionRepo) ListIntersecting(ctx context.Context, facilityID string, start, end time.Time) ([]baseline.Exclusion, error) {
	return r.Exclusions(ctx, facilityID, start, end)
}

func sortTimes(times []time.Time) {
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j].Before(times[j-1]); j-- {
			times[j], times[j-1] = times[j-1], times[j]
		}
	}
}
