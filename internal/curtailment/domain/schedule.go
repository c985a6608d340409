package curtailment

import (
	"errors"
	"fmt"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	ReasonPeakDemand       = "peak_demand"
	ReasonGridEvent        = "grid_event"
	ReasonCostOptimization = "cost_optimization"
	ReasonManual           = "manual"
)

// Priority bounds: 1 is most urgent, 3 least.
const (
	PriorityMin = 1
	PriorityMax = 3
)

// ParseReason validates a schedule reason.
func ParseReason(value string) (string, error) {
	switch value {
	case ReasonPeakDemand, ReasonGridEvent, ReasonCostOptimization, ReasonManual:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unknown reason %q", ErrInvalidSchedule, value)
	}
}

// Schedule is one load-shedding interval for a zone. Preemption never
// rewrites a window in place: a split replaces the row with residual rows,
// keeping the interval history append-only.
type Schedule struct {
	ID         string `json:"id"`
	FacilityID string `json:"facility_id"`
	ZoneID     string `json:"zone_id"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	TargetReductionKW float64 `json:"target_reduction_kw"`
	ActualReductionKW float64 `json:"actual_reduction_kw,omitempty"`
	// Priority is ordinal urgency, 1 is most urgent.
	Priority int    `json:"priority"`
	Reason   string `json:"reason"`
	Status   string `json:"status"`

	// ParentID links a residual row to the schedule it was split from.
	ParentID string `json:"parent_id,omitempty"`

	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ActivatedAt  time.Time `json:"activated_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// ErrInvalidSchedule wraps all schedule validation failures.
var ErrInvalidSchedule = errors.New("schedule: invalid")

// Validate checks schedule invariants.
func (s Schedule) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidSchedule)
	case s.FacilityID == "" || s.ZoneID == "":
		return fmt.Errorf("%w: facility and zone required", ErrInvalidSchedule)
	case !s.End.After(s.Start):
		return fmt.Errorf("%w: end not after start", ErrInvalidSchedule)
	case s.TargetReductionKW <= 0:
		return fmt.Errorf("%w: target reduction must be positive", ErrInvalidSchedule)
	case s.Priority < PriorityMin || s.Priority > PriorityMax:
		return fmt.Errorf("%w: priority must be between %d and %d", ErrInvalidSchedule, PriorityMin, PriorityMax)
	}
	if _, err := ParseReason(s.Reason); err != nil {
		return err
	}
	return nil
}

// CanTransition reports whether a status transition is legal. The machine
// only moves forward: scheduled -> active -> completed, with cancellation
// allowed from scheduled and active.
func CanTransition(from, to string) bool {
	switch from {
	case StatusScheduled:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// ErrInvalidTransition is returned for illegal status transitions.
var ErrInvalidTransition = errors.New("schedule: invalid status transition")

// TransitionError describes a rejected transition.
func TransitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
