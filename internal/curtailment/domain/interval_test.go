package curtailment

import (
	"testing"
	"time"
)

func window(startHour, startMin, endHour, endMin int) Window {
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	return Window{
		Start: day.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute),
		End:   day.Add(time.Duration(endHour)*time.Hour + time.Duration(endMin)*time.Minute),
	}
}

func TestWindowOverlaps(t *testing.T) {
	base := window(14, 0, 16, 0)

	cases := []struct {
		name  string
		other Window
		want  bool
	}{
		{"inside", window(14, 30, 15, 0), true},
		{"covers", window(13, 0, 17, 0), true},
		{"head", window(13, 0, 14, 30), true},
		{"tail", window(15, 30, 17, 0), true},
		{"adjacent before", window(13, 0, 14, 0), false},
		{"adjacent after", window(16, 0, 17, 0), false},
		{"disjoint", window(10, 0, 11, 0), false},
	}
	for _, tc := range cases {
		if got := base.Overlaps(tc.other); got != tc.want {
			t.Errorf("%s: overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWindowSubtract(t *testing.T) {
	base := window(14, 0, 16, 0)

	// Winner in the middle splits into head and tail.
	residuals := base.Subtract(window(15, 0, 15, 30))
	if len(residuals) != 2 {
		t.Fatalf("expected 2 residuals, got %d", len(residuals))
	}
	if !residuals[0].Start.Equal(base.Start) || !residuals[0].End.Equal(window(15, 0, 15, 30).Start) {
		t.Fatalf("head residual wrong: %+v", residuals[0])
	}
	if !residuals[1].Start.Equal(window(15, 0, 15, 30).End) || !residuals[1].End.Equal(base.End) {
		t.Fatalf("tail residual wrong: %+v", residuals[1])
	}

	// Winner covering the whole window leaves nothing.
	if residuals := base.Subtract(window(13, 0, 17, 0)); len(residuals) != 0 {
		t.Fatalf("expected full containment, got %+v", residuals)
	}

	// Winner overlapping the head leaves only the tail.
	residuals = base.Subtract(window(13, 0, 15, 0))
	if len(residuals) != 1 || !residuals[0].Start.Equal(window(15, 0, 16, 0).Start) {
		t.Fatalf("expected single tail residual, got %+v", residuals)
	}

	// Disjoint winner leaves the window untouched.
	residuals = base.Subtract(window(10, 0, 11, 0))
	if len(residuals) != 1 || residuals[0] != base {
		t.Fatalf("expected untouched window, got %+v", residuals)
	}
}

func TestSubtractAll(t *testing.T) {
	windows := []Window{window(14, 0, 16, 0)}
	windows = SubtractAll(windows, window(14, 30, 15, 0))
	windows = SubtractAll(windows, window(15, 30, 15, 45))
	if len(windows) != 3 {
		t.Fatalf("expected 3 fragments, got %d: %+v", len(windows), windows)
	}
}

func TestWins(t *testing.T) {
	earlier := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	if !Wins(1, later, 3, earlier) {
		t.Fatal("lower priority number must win regardless of age")
	}
	if Wins(3, earlier, 1, later) {
		t.Fatal("higher priority number must lose")
	}
	if !Wins(2, earlier, 2, later) {
		t.Fatal("equal priority: earlier creation must win")
	}
	if Wins(2, later, 2, earlier) {
		t.Fatal("equal priority: later creation must lose")
	}
}
