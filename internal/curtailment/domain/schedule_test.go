package curtailment

import (
	"errors"
	"testing"
	"time"
)

func validSchedule() Schedule {
	start := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
	return Schedule{
		ID:                "sched-1",
		FacilityID:        "fac-1",
		ZoneID:            "zone-a",
		Start:             start,
		End:               start.Add(time.Hour),
		TargetReductionKW: 50,
		Priority:          2,
		Reason:            ReasonPeakDemand,
		Status:            StatusScheduled,
	}
}

func TestScheduleValidate_PriorityBounds(t *testing.T) {
	for _, priority := range []int{0, -1, 4, 5} {
		s := validSchedule()
		s.Priority = priority
		if err := s.Validate(); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("priority %d should be rejected, got %v", priority, err)
		}
	}
	for priority := PriorityMin; priority <= PriorityMax; priority++ {
		s := validSchedule()
		s.Priority = priority
		if err := s.Validate(); err != nil {
			t.Fatalf("priority %d should be accepted: %v", priority, err)
		}
	}
}

func TestScheduleValidate_Reason(t *testing.T) {
	for _, reason := range []string{ReasonPeakDemand, ReasonGridEvent, ReasonCostOptimization, ReasonManual} {
		s := validSchedule()
		s.Reason = reason
		if err := s.Validate(); err != nil {
			t.Fatalf("reason %q should be accepted: %v", reason, err)
		}
	}
	for _, reason := range []string{"", "urgent", "grid emergency", "PEAK_DEMAND"} {
		s := validSchedule()
		s.Reason = reason
		if err := s.Validate(); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("reason %q should be rejected, got %v", reason, err)
		}
	}
}

func TestParseReason(t *testing.T) {
	if got, err := ParseReason("grid_event"); err != nil || got != ReasonGridEvent {
		t.Fatalf("ParseReason(grid_event) = %q, %v", got, err)
	}
	if _, err := ParseReason("maintenance"); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("unknown reason should fail, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusScheduled, StatusActive, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusScheduled, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusActive, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
