package curtailment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrScheduleNotFound is returned when no schedule matches.
	ErrScheduleNotFound = errors.New("schedule: not found")
	// ErrWindowFullyPreempted is returned when a new schedule loses its
	// entire window to more urgent overlapping schedules.
	ErrWindowFullyPreempted = errors.New("schedule: window fully preempted by more urgent schedules")
	// ErrScheduleConflict is returned instead of preempting when the
	// caller disabled automatic preemption.
	ErrScheduleConflict = errors.New("schedule: conflicting schedules exist")
)

// Filter narrows schedule listings. Zero values match everything.
type Filter struct {
	FacilityID string
	ZoneID     string
	Status     string
}

// TxStore is the repository surface available inside a zone-locked
// transaction during conflict resolution.
type TxStore interface {
	ListOverlapping(ctx context.Context, facilityID, zoneID string, window Window) ([]Schedule, error)
	Insert(ctx context.Context, schedule *Schedule) error
	// Truncate shortens an active schedule's end, keeping history
	// append-only elsewhere.
	Truncate(ctx context.Context, id string, newEnd time.Time) error
	Cancel(ctx context.Context, id, reason string) error
}

// ScheduleRepository persists schedules and drives the CAS state machine.
type ScheduleRepository interface {
	Get(ctx context.Context, id string) (*Schedule, error)
	List(ctx context.Context, filter Filter) ([]Schedule, error)

	// InZoneLock runs fn holding the per-(facility, zone) exclusive lock
	// so two concurrent creations cannot both win the same window.
	InZoneLock(ctx context.Context, facilityID, zoneID string, fn func(TxStore) error) error

	// ListDueActivations returns scheduled rows whose start has passed.
	ListDueActivations(ctx context.Context, now time.Time) ([]Schedule, error)
	// ListDueCompletions returns active rows whose end has passed.
	ListDueCompletions(ctx context.Context, now time.Time) ([]Schedule, error)

	// TransitionCAS advances id from to, returning false when another
	// worker already moved it. actualReductionKW applies on completion.
	TransitionCAS(ctx context.Context, id, from, to string, now time.Time, actualReductionKW float64) (bool, error)
}
