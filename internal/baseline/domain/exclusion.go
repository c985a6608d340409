package baseline

import (
	"context"
	"errors"
	"time"
)

// Exclusion marks an interval during which readings are not representative
// consumption and must not feed the baseline aggregation. One row is
// recorded per completed curtailment activation.
type Exclusion struct {
	ScheduleID string    `json:"schedule_id"`
	FacilityID string    `json:"facility_id"`
	ZoneID     string    `json:"zone_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks exclusion invariants.
func (e Exclusion) Validate() error {
	if e.ScheduleID == "" {
		return errors.New("exclusion: empty schedule id")
	}
	if e.FacilityID == "" {
		return errors.New("exclusion: empty facility id")
	}
	if !e.End.After(e.Start) {
		return errors.New("exclusion: end not after start")
	}
	return nil
}

// ExclusionRepository manages exclusion persistence. Save is idempotent on
// schedule id so event redelivery cannot duplicate an exclusion.
type ExclusionRepository interface {
	Save(ctx context.Context, exclusion *Exclusion) error
	ListIntersecting(ctx context.Context, facilityID string, start, end time.Time) ([]Exclusion, error)
}
