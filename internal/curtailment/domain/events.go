package curtailment

import "time"

// CurtailmentStarted is emitted when a schedule becomes active.
type CurtailmentStarted struct {
	ScheduleID        string    `json:"schedule_id"`
	FacilityID        string    `json:"facility_id"`
	ZoneID            string    `json:"zone_id"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	TargetReductionKW float64   `json:"target_reduction_kw"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// CurtailmentCompleted is emitted when an activation finishes. The
// baseline context consumes it to exclude the interval from future
// aggregation.
type CurtailmentCompleted struct {
	ScheduleID        string    `json:"schedule_id"`
	FacilityID        string    `json:"facility_id"`
	ZoneID            string    `json:"zone_id"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	ActualReductionKW float64   `json:"actual_reduction_kw"`
	Estimated         bool      `json:"estimated"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// SchedulePreempted is emitted when a schedule loses its window to a more
// urgent one.
type SchedulePreempted struct {
	ScheduleID   string    `json:"schedule_id"`
	PreemptedBy  string    `json:"preempted_by"`
	FacilityID   string    `json:"facility_id"`
	ZoneID       string    `json:"zone_id"`
	ResidualIDs  []string  `json:"residual_ids,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
