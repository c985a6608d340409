package savings

import (
	"math"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	period, err := ParsePeriod("2026-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if period.Year != 2026 || period.Month != time.February {
		t.Fatalf("unexpected period: %+v", period)
	}
	if period.Days() != 28 {
		t.Fatalf("february 2026 has 28 days, got %d", period.Days())
	}
	if period.String() != "2026-02" {
		t.Fatalf("round trip: %s", period)
	}

	for _, raw := range []string{"", "2026", "2026-13", "feb-2026"} {
		if _, err := ParsePeriod(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestPct(t *testing.T) {
	cases := []struct {
		name     string
		baseline float64
		actual   float64
		want     float64
	}{
		{"typical savings", 1000, 780, 22},
		{"no savings", 1000, 1000, 0},
		{"overuse", 1000, 1100, -10},
		{"clamped high", 1000, -500, 100},
		{"clamped low", 1000, 3000, -100},
		{"zero baseline", 0, 500, 0},
		{"negative baseline", -10, 500, 0},
	}
	for _, tc := range cases {
		if got := Pct(tc.baseline, tc.actual); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: Pct(%v, %v) = %v, want %v", tc.name, tc.baseline, tc.actual, got, tc.want)
		}
	}
}

func TestPct_Monotonic(t *testing.T) {
	prev := Pct(1000, 0)
	for actual := 100.0; actual <= 2000; actual += 100 {
		got := Pct(1000, actual)
		if got > prev {
			t.Fatalf("Pct must not increase with actual usage: Pct(1000, %v) = %v > %v", actual, got, prev)
		}
		prev = got
	}
}
