package curtailment

import "time"

// Window is a half-open [Start, End) time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Duration is the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Subtract removes the winner's window from w and returns the residual
// windows in order: at most a head before the winner and a tail after it.
// An empty result means w was fully contained.
func (w Window) Subtract(winner Window) []Window {
	if !w.Overlaps(winner) {
		return []Window{w}
	}
	var residuals []Window
	if w.Start.Before(winner.Start) {
		residuals = append(residuals, Window{Start: w.Start, End: winner.Start})
	}
	if winner.End.Before(w.End) {
		residuals = append(residuals, Window{Start: winner.End, End: w.End})
	}
	return residuals
}

// SubtractAll removes every winner window from the given set.
func SubtractAll(windows []Window, winner Window) []Window {
	var out []Window
	for _, w := range windows {
		out = append(out, w.Subtract(winner)...)
	}
	return out
}

// Wins reports whether the challenger preempts the incumbent. Lower
// priority numbers are more urgent; equal priority resolves in favor of
// the earlier-created schedule so resolution stays deterministic.
func Wins(challengerPriority int, challengerCreated time.Time, incumbentPriority int, incumbentCreated time.Time) bool {
	if challengerPriority != incumbentPriority {
		return challengerPriority < incumbentPriority
	}
	return challengerCreated.Before(incumbentCreated)
}
