package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	curtailment "vibelux-energy/internal/curtailment/domain"
)

func seedSchedule(repo *ScheduleRepository, id, status string) {
	start := time.Date(2026, time.March, 10, 14, 0, 0, 0, time.UTC)
	repo.schedules[id] = &curtailment.Schedule{
		ID:         id,
		FacilityID: "fac-1",
		ZoneID:     "zone-a",
		Start:      start,
		End:        start.Add(time.Hour),
		Status:     status,
	}
}

func TestTransitionCAS_RejectsIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		from, to string
	}{
		{"scheduled skips active", curtailment.StatusScheduled, curtailment.StatusCompleted},
		{"active moves backward", curtailment.StatusActive, curtailment.StatusScheduled},
		{"completed is terminal", curtailment.StatusCompleted, curtailment.StatusCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewScheduleRepository()
			seedSchedule(repo, "sched-1", tc.from)

			ok, err := repo.TransitionCAS(ctx, "sched-1", tc.from, tc.to, now, 0)
			if ok {
				t.Fatalf("%s -> %s must not succeed", tc.from, tc.to)
			}
			if !errors.Is(err, curtailment.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			stored, _ := repo.Get(ctx, "sched-1")
			if stored.Status != tc.from {
				t.Fatalf("status must be unchanged, got %s", stored.Status)
			}
		})
	}
}

func TestTransitionCAS_StaleFromLosesRace(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	repo := NewScheduleRepository()
	seedSchedule(repo, "sched-1", curtailment.StatusActive)

	// A legal transition whose expected status no longer matches is a lost
	// race, not an error.
	ok, err := repo.TransitionCAS(ctx, "sched-1", curtailment.StatusScheduled, curtailment.StatusActive, now, 0)
	if err != nil {
		t.Fatalf("stale CAS should not error: %v", err)
	}
	if ok {
		t.Fatal("stale CAS must report failure")
	}
}
