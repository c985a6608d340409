package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	curtailment "vibelux-energy/internal/curtailment/domain"
)

// ScheduleRepository is an in-memory double mirroring the zone lock and
// CAS semantics of the Postgres implementation.
type ScheduleRepository struct {
	mu        sync.Mutex
	schedules map[string]*curtailment.Schedule
}

// NewScheduleRepository constructs an empty repository.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{schedules: make(map[string]*curtailment.Schedule)}
}

// Get implements curtailment.ScheduleRepository.
func (r *ScheduleRepository) Get(_ context.Context, id string) (*curtailment.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[id]
	if !ok {
		return nil, nil
	}
	copied := *schedule
	return &copied, nil
}

// List implements curtailment.ScheduleRepository.
func (r *ScheduleRepository) List(_ context.Context, filter curtailment.Filter) ([]curtailment.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []curtailment.Schedule
	for _, schedule := range r.schedules {
		if filter.FacilityID != "" && schedule.FacilityID != filter.FacilityID {
			continue
		}
		if filter.ZoneID != "" && schedule.ZoneID != filter.ZoneID {
			continue
		}
		if filter.Status != "" && schedule.Status != filter.Status {
			continue
		}
		out = append(out, *schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// InZoneLock implements curtailment.ScheduleRepository. The single mutex
// over-serializes relative to per-zone locking, which is fine for tests.
func (r *ScheduleRepository) InZoneLock(_ context.Context, _, _ string, fn func(curtailment.TxStore) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&txStore{repo: r})
}

// ListDueActivations implements curtailment.ScheduleRepository.
func (r *ScheduleRepository) ListDueActivations(_ context.Context, now time.Time) ([]curtailment.Schedule, error) {
	return r.listDue(curtailment.StatusScheduled, func(s *curtailment.Schedule) time.Time { return s.Start }, now)
}

// ListDueCompletions implements curtailment.ScheduleRepository.
func (r *ScheduleRepository) ListDueCompletions(_ context.Context, now time.Time) ([]curtailment.Schedule, error) {
	return r.listDue(curtailment.StatusActive, func(s *curtailment.Schedule) time.Time { return s.End }, now)
}

func (r *ScheduleRepository) listDue(status string, boundary func(*curtailment.Schedule) time.Time, now time.Time) ([]curtailment.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []curtailment.Schedule
	for _, schedule := range r.schedules {
		if schedule.Status == status && !boundary(schedule).After(now) {
			due = append(due, *schedule)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// TransitionCAS implements curtailment.ScheduleRepository.
func (r *ScheduleRepository) TransitionCAS(_ context.Context, id, from, to string, now time.Time, actualReductionKW float64) (bool, error) {
	if !curtailment.CanTransition(from, to) {
		return false, curtailment.TransitionError(from, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[id]
	if !ok || schedule.Status != from {
		return false, nil
	}
	schedule.Status = to
	schedule.UpdatedAt = now
	switch to {
	case curtailment.StatusActive:
		schedule.ActivatedAt = now
	case curtailment.StatusCompleted:
		schedule.ActualReductionKW = actualReductionKW
		schedule.CompletedAt = now
	case curtailment.StatusCancelled:
		schedule.CancelReason = "cancelled by operator"
	}
	return true, nil
}

type txStore struct {
	repo *ScheduleRepository
}

func (s *txStore) ListOverlapping(_ context.Context, facilityID, zoneID string, window curtailment.Window) ([]curtailment.Schedule, error) {
	var out []curtailment.Schedule
	for _, schedule := range s.repo.schedules {
		if schedule.FacilityID != facilityID || schedule.ZoneID != zoneID {
			continue
		}
		if schedule.Status != curtailment.StatusScheduled && schedule.Status != curtailment.StatusActive {
			continue
		}
		if (curtailment.Window{Start: schedule.Start, End: schedule.End}).Overlaps(window) {
			out = append(out, *schedule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *txStore) Insert(_ context.Context, schedule *curtailment.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	copied := *schedule
	s.repo.schedules[schedule.ID] = &copied
	return nil
}

func (s *txStore) Truncate(_ context.Context, id string, newEnd time.Time) error {
	schedule, ok := s.repo.schedules[id]
	if !ok {
		return curtailment.ErrScheduleNotFound
	}
	schedule.End = newEnd
	schedule.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *txStore) Cancel(_ context.Context, id, reason string) error {
	schedule, ok := s.repo.schedules[id]
	if !ok {
		return curtailment.ErrScheduleNotFound
	}
	schedule.Status = curtailment.StatusCancelled
	schedule.CancelReason = reason
	schedule.UpdatedAt = time.Now().UTC()
	return nil
}
