package baseline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ComputeVersion derives the curve version from everything that determines
// its shape: the window bounds, the adjustment set and the excluded-period
// set. Inputs are canonicalized so ordering differences do not change the
// hash.
func ComputeVersion(windowStart, windowEnd time.Time, adjustments []Adjustment, exclusions []Exclusion) string {
	lines := make([]string, 0, len(adjustments)+len(exclusions)+1)
	lines = append(lines, fmt.Sprintf("window|%d|%d", windowStart.UTC().Unix(), windowEnd.UTC().Unix()))

	for _, a := range adjustments {
		// Open-ended adjustments hash a zero end marker.
		end := int64(0)
		if !a.EffectiveEnd.IsZero() {
			end = a.EffectiveEnd.UTC().Unix()
		}
		lines = append(lines, fmt.Sprintf("adj|%s|%d|%d|%.6f|%.6f|%d|%d",
			a.ID, a.EffectiveStart.UTC().Unix(), end,
			a.DeltaKWhPerDay, a.DemandKWDelta, a.RatePerKWhCents, a.DemandChargeCentsKW))
	}
	for _, e := range exclusions {
		lines = append(lines, fmt.Sprintf("excl|%s|%d|%d",
			e.ScheduleID, e.Start.UTC().Unix(), e.End.UTC().Unix()))
	}
	sort.Strings(lines[1:])

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
