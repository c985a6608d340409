package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/auth"
	curtailment "vibelux-energy/internal/curtailment/domain"
	"vibelux-energy/internal/observability/metrics"
)

// EventPublisher emits scheduler events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// CreateRequest describes a new load-shedding schedule.
type CreateRequest struct {
	FacilityID        string
	ZoneID            string
	Start             time.Time
	End               time.Time
	TargetReductionKW float64
	Priority          int
	Reason            string
	Actor             string
	// DisablePreemption makes overlaps an error instead of resolving them.
	DisablePreemption bool
}

// CreateResult reports the outcome of conflict resolution.
type CreateResult struct {
	// Created holds the rows the new schedule occupies, in window order.
	Created []curtailment.Schedule `json:"created"`
	// Preempted lists schedule ids that lost all or part of their window.
	Preempted []string `json:"preempted,omitempty"`
}

// Scheduler creates schedules with priority preemption and drives the
// background sweep.
type Scheduler struct {
	repo      curtailment.ScheduleRepository
	estimator ReductionEstimator
	publisher EventPublisher
	auditor   audit.Logger
	logger    *log.Logger
}

// NewScheduler constructs the scheduler. The auditor may be nil; operator
// cancellations then leave no audit trail.
func NewScheduler(repo curtailment.ScheduleRepository, estimator ReductionEstimator, publisher EventPublisher, auditor audit.Logger, logger *log.Logger) (*Scheduler, error) {
	if repo == nil {
		return nil, errors.New("scheduler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{repo: repo, estimator: estimator, publisher: publisher, auditor: auditor, logger: logger}, nil
}

// Create resolves conflicts under the zone lock and persists the new
// schedule. More urgent overlapping schedules truncate the new one; less
// urgent ones are truncated or cancelled, their remainders re-inserted as
// residual rows.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	root := curtailment.Schedule{
		ID:                id,
		FacilityID:        req.FacilityID,
		ZoneID:            req.ZoneID,
		Start:             req.Start.UTC(),
		End:               req.End.UTC(),
		TargetReductionKW: req.TargetReductionKW,
		Priority:          req.Priority,
		Reason:            req.Reason,
		Status:            curtailment.StatusScheduled,
		CreatedBy:         req.Actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := root.Validate(); err != nil {
		metrics.IncScheduleCreate(metrics.ResultError)
		return nil, err
	}

	var result *CreateResult
	var preemptEvents []curtailment.SchedulePreempted
	err := s.repo.InZoneLock(ctx, req.FacilityID, req.ZoneID, func(tx curtailment.TxStore) error {
		var err error
		result, preemptEvents, err = s.resolve(ctx, tx, root, req.DisablePreemption)
		return err
	})
	if err != nil {
		metrics.IncScheduleCreate(metrics.ResultError)
		return nil, err
	}

	metrics.IncScheduleCreate(metrics.ResultSuccess)
	for _, event := range preemptEvents {
		metrics.IncPreemption()
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Printf("scheduler: publish preemption: %v", err)
			}
		}
	}
	return result, nil
}

func (s *Scheduler) resolve(ctx context.Context, tx curtailment.TxStore, root curtailment.Schedule, disablePreemption bool) (*CreateResult, []curtailment.SchedulePreempted, error) {
	window := curtailment.Window{Start: root.Start, End: root.End}
	overlapping, err := tx.ListOverlapping(ctx, root.FacilityID, root.ZoneID, window)
	if err != nil {
		return nil, nil, err
	}
	if disablePreemption && len(overlapping) > 0 {
		return nil, nil, curtailment.ErrScheduleConflict
	}

	var winners, losers []curtailment.Schedule
	for _, existing := range overlapping {
		if curtailment.Wins(root.Priority, root.CreatedAt, existing.Priority, existing.CreatedAt) {
			losers = append(losers, existing)
		} else {
			winners = append(winners, existing)
		}
	}

	// More urgent incumbents carve the new schedule's window first.
	remaining := []curtailment.Window{window}
	for _, winner := range winners {
		remaining = curtailment.SubtractAll(remaining, curtailment.Window{Start: winner.Start, End: winner.End})
	}
	if len(remaining) == 0 {
		return nil, nil, curtailment.ErrWindowFullyPreempted
	}

	// Deterministic processing order for the rows we truncate.
	sort.Slice(losers, func(i, j int) bool { return losers[i].CreatedAt.Before(losers[j].CreatedAt) })

	var events []curtailment.SchedulePreempted
	var preemptedIDs []string
	for _, loser := range losers {
		residualIDs, err := s.preempt(ctx, tx, loser, root.ID, remaining)
		if err != nil {
			return nil, nil, err
		}
		preemptedIDs = append(preemptedIDs, loser.ID)
		events = append(events, curtailment.SchedulePreempted{
			ScheduleID:  loser.ID,
			PreemptedBy: root.ID,
			FacilityID:  loser.FacilityID,
			ZoneID:      loser.ZoneID,
			ResidualIDs: residualIDs,
			OccurredAt:  time.Now().UTC(),
		})
	}

	created := make([]curtailment.Schedule, 0, len(remaining))
	for i, win := range remaining {
		row := root
		row.Start = win.Start
		row.End = win.End
		if i > 0 {
			row.ID = fmt.Sprintf("%s-r%d", root.ID, i+1)
			row.ParentID = root.ID
		}
		if err := tx.Insert(ctx, &row); err != nil {
			return nil, nil, err
		}
		created = append(created, row)
	}
	return &CreateResult{Created: created, Preempted: preemptedIDs}, events, nil
}

// preempt carves the occupied windows out of a loser. Scheduled losers
// are cancelled and their residuals re-inserted; active losers keep their
// running head truncated in place and get residual rows for the tail.
func (s *Scheduler) preempt(ctx context.Context, tx curtailment.TxStore, loser curtailment.Schedule, winnerID string, occupied []curtailment.Window) ([]string, error) {
	residuals := []curtailment.Window{{Start: loser.Start, End: loser.End}}
	for _, win := range occupied {
		residuals = curtailment.SubtractAll(residuals, win)
	}
	reason := "preempted by " + winnerID

	switch loser.Status {
	case curtailment.StatusScheduled:
		if err := tx.Cancel(ctx, loser.ID, reason); err != nil {
			return nil, err
		}
		return s.insertResiduals(ctx, tx, loser, residuals)
	case curtailment.StatusActive:
		// An active schedule with a running head keeps it under its own id.
		if len(residuals) > 0 && residuals[0].Start.Equal(loser.Start) {
			if err := tx.Truncate(ctx, loser.ID, residuals[0].End); err != nil {
				return nil, err
			}
			return s.insertResiduals(ctx, tx, loser, residuals[1:])
		}
		if err := tx.Cancel(ctx, loser.ID, reason); err != nil {
			return nil, err
		}
		return s.insertResiduals(ctx, tx, loser, residuals)
	default:
		return nil, curtailment.TransitionError(loser.Status, curtailment.StatusCancelled)
	}
}

func (s *Scheduler) insertResiduals(ctx context.Context, tx curtailment.TxStore, parent curtailment.Schedule, windows []curtailment.Window) ([]string, error) {
	now := time.Now().UTC()
	ids := make([]string, 0, len(windows))
	for i, win := range windows {
		residual := parent
		residual.ID = fmt.Sprintf("%s-r%d", parent.ID, i+1)
		residual.ParentID = parent.ID
		residual.Start = win.Start
		residual.End = win.End
		residual.Status = curtailment.StatusScheduled
		residual.ActualReductionKW = 0
		residual.CancelReason = ""
		residual.ActivatedAt = time.Time{}
		residual.UpdatedAt = now
		if err := tx.Insert(ctx, &residual); err != nil {
			return nil, err
		}
		ids = append(ids, residual.ID)
	}
	return ids, nil
}

// Cancel moves a schedule to cancelled if its state machine allows it,
// recording who asked and why in the audit trail.
func (s *Scheduler) Cancel(ctx context.Context, id, reason, actor string) (*curtailment.Schedule, error) {
	schedule, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, curtailment.ErrScheduleNotFound
	}
	if !curtailment.CanTransition(schedule.Status, curtailment.StatusCancelled) {
		return nil, curtailment.TransitionError(schedule.Status, curtailment.StatusCancelled)
	}

	ok, err := s.repo.TransitionCAS(ctx, id, schedule.Status, curtailment.StatusCancelled, time.Now().UTC(), 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, curtailment.TransitionError(schedule.Status, curtailment.StatusCancelled)
	}

	if s.auditor != nil {
		meta, _ := json.Marshal(map[string]string{"reason": reason, "previous_status": schedule.Status})
		entry := audit.Entry{
			ID:           audit.NewID(),
			TenantID:     auth.TenantIDFromContext(ctx),
			Actor:        actor,
			Action:       "schedule.cancel",
			ResourceType: "schedule",
			ResourceID:   id,
			FacilityID:   schedule.FacilityID,
			Metadata:     meta,
			IP:           auth.ClientIPFromContext(ctx),
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.auditor.Log(ctx, entry); err != nil {
			s.logger.Printf("scheduler: audit cancel %s: %v", id, err)
		}
	}
	return s.repo.Get(ctx, id)
}

// List proxies schedule listings.
func (s *Scheduler) List(ctx context.Context, filter curtailment.Filter) ([]curtailment.Schedule, error) {
	return s.repo.List(ctx, filter)
}
