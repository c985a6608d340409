package baseline

import (
	"testing"
	"time"
)

func TestComputeVersion_OrderIndependent(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	a1 := Adjustment{ID: "adj-1", EffectiveStart: start, EffectiveEnd: end, DeltaKWhPerDay: 5}
	a2 := Adjustment{ID: "adj-2", EffectiveStart: start, EffectiveEnd: end, DeltaKWhPerDay: -3}
	e1 := Exclusion{ScheduleID: "sched-1", Start: start.AddDate(0, 0, 3), End: start.AddDate(0, 0, 4)}
	e2 := Exclusion{ScheduleID: "sched-2", Start: start.AddDate(0, 0, 8), End: start.AddDate(0, 0, 9)}

	v1 := ComputeVersion(start, end, []Adjustment{a1, a2}, []Exclusion{e1, e2})
	v2 := ComputeVersion(start, end, []Adjustment{a2, a1}, []Exclusion{e2, e1})
	if v1 != v2 {
		t.Fatalf("version must not depend on input order: %s != %s", v1, v2)
	}
	if len(v1) != 64 {
		t.Fatalf("expected sha256 hex version, got %q", v1)
	}
}

func TestComputeVersion_SensitiveToInputs(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	base := ComputeVersion(start, end, nil, nil)

	if got := ComputeVersion(start, end.AddDate(0, 0, 1), nil, nil); got == base {
		t.Fatal("window change must change the version")
	}
	adj := Adjustment{ID: "adj-1", EffectiveStart: start, EffectiveEnd: end, DeltaKWhPerDay: 5}
	if got := ComputeVersion(start, end, []Adjustment{adj}, nil); got == base {
		t.Fatal("adjustment must change the version")
	}
	adjDelta := adj
	adjDelta.DeltaKWhPerDay = 6
	if ComputeVersion(start, end, []Adjustment{adj}, nil) == ComputeVersion(start, end, []Adjustment{adjDelta}, nil) {
		t.Fatal("delta change must change the version")
	}
	excl := Exclusion{ScheduleID: "sched-1", Start: start, End: start.AddDate(0, 0, 1)}
	if got := ComputeVersion(start, end, nil, []Exclusion{excl}); got == base {
		t.Fatal("exclusion must change the version")
	}
}
