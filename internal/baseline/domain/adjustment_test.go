package baseline

import (
	"testing"
	"time"
)

func testAdjustment() Adjustment {
	return Adjustment{
		ID:             "adj-1",
		FacilityID:     "fac-1",
		EffectiveStart: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		DeltaKWhPerDay: 10,
		Reason:         "added grow room",
		CreatedBy:      "operator",
	}
}

func TestAdjustmentValidate(t *testing.T) {
	if err := testAdjustment().Validate(); err != nil {
		t.Fatalf("open-ended adjustment should be valid: %v", err)
	}

	a := testAdjustment()
	a.EffectiveEnd = a.EffectiveStart.AddDate(0, 1, 0)
	if err := a.Validate(); err != nil {
		t.Fatalf("bounded adjustment should be valid: %v", err)
	}

	a = testAdjustment()
	a.EffectiveEnd = a.EffectiveStart
	if err := a.Validate(); err == nil {
		t.Fatal("end at start must be rejected")
	}

	a = testAdjustment()
	a.DeltaKWhPerDay = 0
	if err := a.Validate(); err == nil {
		t.Fatal("zero energy and demand delta must be rejected")
	}
	a.DemandKWDelta = 5
	if err := a.Validate(); err != nil {
		t.Fatalf("demand-only adjustment should be valid: %v", err)
	}

	a = testAdjustment()
	a.RatePerKWhCents = -1
	if err := a.Validate(); err == nil {
		t.Fatal("negative rate override must be rejected")
	}
}

func TestAdjustmentIntersects_OpenEnded(t *testing.T) {
	a := testAdjustment()
	day := func(offset int) (time.Time, time.Time) {
		start := a.EffectiveStart.AddDate(0, 0, offset)
		return start, start.AddDate(0, 0, 1)
	}

	before, beforeEnd := day(-2)
	if a.Intersects(before, beforeEnd) {
		t.Fatal("day before start must not intersect")
	}
	far, farEnd := day(365)
	if !a.Intersects(far, farEnd) {
		t.Fatal("open-ended adjustment must cover all future days")
	}

	a.EffectiveEnd = a.EffectiveStart.AddDate(0, 0, 10)
	inside, insideEnd := day(9)
	if !a.Intersects(inside, insideEnd) {
		t.Fatal("last covered day must intersect")
	}
	after, afterEnd := day(10)
	if a.Intersects(after, afterEnd) {
		t.Fatal("day at effective end must not intersect")
	}
}

func TestDailyCostDeltaCents(t *testing.T) {
	a := testAdjustment()
	a.DeltaKWhPerDay = 10

	// Facility tariff applies when the adjustment sets no override.
	if got := a.DailyCostDeltaCents(12, 0); got != 120 {
		t.Fatalf("energy delta at facility rate: got %d, want 120", got)
	}

	a.RatePerKWhCents = 20
	if got := a.DailyCostDeltaCents(12, 0); got != 200 {
		t.Fatalf("rate override must win: got %d, want 200", got)
	}

	// A demand delta spreads the monthly demand charge over 30 days.
	a = testAdjustment()
	a.DeltaKWhPerDay = 0
	a.DemandKWDelta = 3
	if got := a.DailyCostDeltaCents(0, 1500); got != 150 {
		t.Fatalf("demand delta apportionment: got %d, want 150", got)
	}

	a.DeltaKWhPerDay = -10
	if got := a.DailyCostDeltaCents(12, 1500); got != 30 {
		t.Fatalf("combined delta: got %d, want 30", got)
	}
}
