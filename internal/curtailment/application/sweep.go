package application

import (
	"context"
	"time"

	curtailment "vibelux-energy/internal/curtailment/domain"
	"vibelux-energy/internal/observability/metrics"
)

// DefaultSweepInterval is how often the scheduler examines due rows.
const DefaultSweepInterval = 30 * time.Second

// ReductionEstimator measures the achieved reduction of a completed
// activation from telemetry. ok is false when telemetry is absent.
type ReductionEstimator interface {
	Estimate(ctx context.Context, facilityID, zoneID string, start, end time.Time) (kw float64, ok bool, err error)
}

// SweepLoop runs Sweep on a ticker until ctx is cancelled.
func (s *Scheduler) SweepLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx, time.Now().UTC()); err != nil {
				s.logger.Printf("sweep: %v", err)
			}
		}
	}
}

// Sweep activates due scheduled rows and completes elapsed active rows.
// Every transition is a CAS, so concurrent sweeps from multiple workers
// never double-transition a schedule; losing a race is not an error.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) error {
	started := time.Now()
	defer func() { metrics.ObserveSweep(time.Since(started)) }()

	due, err := s.repo.ListDueActivations(ctx, now)
	if err != nil {
		return err
	}
	for _, schedule := range due {
		ok, err := s.repo.TransitionCAS(ctx, schedule.ID, curtailment.StatusScheduled, curtailment.StatusActive, now, 0)
		if err != nil {
			s.logger.Printf("sweep: activate %s: %v", schedule.ID, err)
			continue
		}
		if !ok {
			continue
		}
		metrics.IncSweepTransition("activate")
		s.publish(ctx, curtailment.CurtailmentStarted{
			ScheduleID:        schedule.ID,
			FacilityID:        schedule.FacilityID,
			ZoneID:            schedule.ZoneID,
			Start:             schedule.Start,
			End:               schedule.End,
			TargetReductionKW: schedule.TargetReductionKW,
			OccurredAt:        now,
		})
	}

	elapsed, err := s.repo.ListDueCompletions(ctx, now)
	if err != nil {
		return err
	}
	for _, schedule := range elapsed {
		actual, estimated := s.measure(ctx, schedule)
		ok, err := s.repo.TransitionCAS(ctx, schedule.ID, curtailment.StatusActive, curtailment.StatusCompleted, now, actual)
		if err != nil {
			s.logger.Printf("sweep: complete %s: %v", schedule.ID, err)
			continue
		}
		if !ok {
			continue
		}
		metrics.IncSweepTransition("complete")
		s.publish(ctx, curtailment.CurtailmentCompleted{
			ScheduleID:        schedule.ID,
			FacilityID:        schedule.FacilityID,
			ZoneID:            schedule.ZoneID,
			Start:             schedule.Start,
			End:               schedule.End,
			ActualReductionKW: actual,
			Estimated:         estimated,
			OccurredAt:        now,
		})
	}
	return nil
}

// measure returns the achieved reduction, falling back to the target when
// telemetry cannot support a measurement.
func (s *Scheduler) measure(ctx context.Context, schedule curtailment.Schedule) (float64, bool) {
	if s.estimator == nil {
		return schedule.TargetReductionKW, true
	}
	kw, ok, err := s.estimator.Estimate(ctx, schedule.FacilityID, schedule.ZoneID, schedule.Start, schedule.End)
	if err != nil {
		s.logger.Printf("sweep: estimate %s: %v", schedule.ID, err)
		return schedule.TargetReductionKW, true
	}
	if !ok {
		return schedule.TargetReductionKW, true
	}
	return kw, false
}

func (s *Scheduler) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("sweep: publish: %v", err)
	}
}
