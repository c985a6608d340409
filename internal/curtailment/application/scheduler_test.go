package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/curtailment/application"
	curtailment "vibelux-energy/internal/curtailment/domain"
	"vibelux-energy/internal/curtailment/infrastructure/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(match func(any) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, event := range p.events {
		if match(event) {
			count++
		}
	}
	return count
}

type captureAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *captureAuditor) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type fixedEstimator struct {
	kw  float64
	ok  bool
	err error
}

func (e fixedEstimator) Estimate(context.Context, string, string, time.Time, time.Time) (float64, bool, error) {
	return e.kw, e.ok, e.err
}

func newScheduler(t *testing.T, repo curtailment.ScheduleRepository, estimator application.ReductionEstimator, publisher application.EventPublisher) *application.Scheduler {
	t.Helper()
	scheduler, err := application.NewScheduler(repo, estimator, publisher, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 10, hour, min, 0, 0, time.UTC)
}

func TestCreate_PreemptionSplitsLowerPriority(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	publisher := &capturePublisher{}
	scheduler := newScheduler(t, repo, nil, publisher)

	routine, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID:        "fac-1",
		ZoneID:            "zone-a",
		Start:             at(14, 0),
		End:               at(16, 0),
		TargetReductionKW: 50,
		Priority:          3,
		Reason:            curtailment.ReasonPeakDemand,
		Actor:             "operator",
	})
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}
	if len(routine.Created) != 1 {
		t.Fatalf("routine should occupy one row, got %d", len(routine.Created))
	}
	routineID := routine.Created[0].ID

	urgent, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID:        "fac-1",
		ZoneID:            "zone-a",
		Start:             at(15, 0),
		End:               at(15, 30),
		TargetReductionKW: 80,
		Priority:          1,
		Reason:            curtailment.ReasonGridEvent,
		Actor:             "operator",
	})
	if err != nil {
		t.Fatalf("create urgent: %v", err)
	}
	if len(urgent.Created) != 1 {
		t.Fatalf("urgent schedule must keep its full window, got %d rows", len(urgent.Created))
	}
	if !urgent.Created[0].Start.Equal(at(15, 0)) || !urgent.Created[0].End.Equal(at(15, 30)) {
		t.Fatalf("urgent window altered: %+v", urgent.Created[0])
	}
	if len(urgent.Preempted) != 1 || urgent.Preempted[0] != routineID {
		t.Fatalf("expected routine %s preempted, got %v", routineID, urgent.Preempted)
	}

	cancelled, err := repo.Get(ctx, routineID)
	if err != nil || cancelled == nil {
		t.Fatalf("get routine: %v", err)
	}
	if cancelled.Status != curtailment.StatusCancelled {
		t.Fatalf("routine should be cancelled, got %s", cancelled.Status)
	}

	residuals, err := repo.List(ctx, curtailment.Filter{FacilityID: "fac-1", Status: curtailment.StatusScheduled})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var gotWindows []curtailment.Window
	for _, residual := range residuals {
		if residual.ParentID == routineID {
			gotWindows = append(gotWindows, curtailment.Window{Start: residual.Start, End: residual.End})
		}
	}
	if len(gotWindows) != 2 {
		t.Fatalf("expected 2 residuals, got %d (%+v)", len(gotWindows), residuals)
	}
	if !gotWindows[0].Start.Equal(at(14, 0)) || !gotWindows[0].End.Equal(at(15, 0)) {
		t.Fatalf("head residual wrong: %+v", gotWindows[0])
	}
	if !gotWindows[1].Start.Equal(at(15, 30)) || !gotWindows[1].End.Equal(at(16, 0)) {
		t.Fatalf("tail residual wrong: %+v", gotWindows[1])
	}

	preempted := publisher.byType(func(e any) bool {
		_, ok := e.(curtailment.SchedulePreempted)
		return ok
	})
	if preempted != 1 {
		t.Fatalf("expected one preemption event, got %d", preempted)
	}
}

func TestCreate_FullyPreemptedByHigherPriority(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	scheduler := newScheduler(t, repo, nil, nil)

	if _, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 0), End: at(16, 0),
		TargetReductionKW: 50, Priority: 1,
		Reason: curtailment.ReasonGridEvent, Actor: "operator",
	}); err != nil {
		t.Fatalf("create incumbent: %v", err)
	}

	_, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 30), End: at(15, 30),
		TargetReductionKW: 20, Priority: 3,
		Reason: curtailment.ReasonManual, Actor: "operator",
	})
	if !errors.Is(err, curtailment.ErrWindowFullyPreempted) {
		t.Fatalf("expected ErrWindowFullyPreempted, got %v", err)
	}
}

func TestCreate_DisablePreemptionConflicts(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	scheduler := newScheduler(t, repo, nil, nil)

	if _, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 0), End: at(15, 0),
		TargetReductionKW: 50, Priority: 3,
		Reason: curtailment.ReasonManual, Actor: "operator",
	}); err != nil {
		t.Fatalf("create incumbent: %v", err)
	}

	_, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 30), End: at(15, 30),
		TargetReductionKW: 80, Priority: 1,
		Reason: curtailment.ReasonGridEvent, Actor: "operator",
		DisablePreemption: true,
	})
	if !errors.Is(err, curtailment.ErrScheduleConflict) {
		t.Fatalf("expected ErrScheduleConflict, got %v", err)
	}
}

func TestCreate_NonOverlappingZonesIndependent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	scheduler := newScheduler(t, repo, nil, nil)

	for _, zone := range []string{"zone-a", "zone-b"} {
		result, err := scheduler.Create(ctx, application.CreateRequest{
			FacilityID: "fac-1", ZoneID: zone,
			Start: at(14, 0), End: at(16, 0),
			TargetReductionKW: 50, Priority: 1,
			Reason: curtailment.ReasonGridEvent, Actor: "operator",
		})
		if err != nil {
			t.Fatalf("create %s: %v", zone, err)
		}
		if len(result.Preempted) != 0 {
			t.Fatalf("zone %s must not preempt the other zone", zone)
		}
	}
}

func TestCancel_StateMachine(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	scheduler := newScheduler(t, repo, nil, nil)

	result, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 0), End: at(15, 0),
		TargetReductionKW: 50, Priority: 3,
		Reason: curtailment.ReasonManual, Actor: "operator",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := result.Created[0].ID

	cancelled, err := scheduler.Cancel(ctx, id, "operator request", "operator")
	if err != nil {
		t.Fatalf("cancel scheduled: %v", err)
	}
	if cancelled.Status != curtailment.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// Cancelling a terminal schedule must be rejected.
	if _, err := scheduler.Cancel(ctx, id, "again", "operator"); !errors.Is(err, curtailment.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := scheduler.Cancel(ctx, "missing", "x", "operator"); !errors.Is(err, curtailment.ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestCancel_WritesAuditEntry(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	auditor := &captureAuditor{}
	scheduler, err := application.NewScheduler(repo, nil, nil, auditor, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	result, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 0), End: at(15, 0),
		TargetReductionKW: 50, Priority: 3,
		Reason: curtailment.ReasonManual, Actor: "operator",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := result.Created[0].ID

	if _, err := scheduler.Cancel(ctx, id, "operator request", "alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	var cancels []audit.Entry
	for _, entry := range auditor.entries {
		if entry.Action == "schedule.cancel" {
			cancels = append(cancels, entry)
		}
	}
	if len(cancels) != 1 {
		t.Fatalf("expected one schedule.cancel entry, got %d", len(cancels))
	}
	entry := cancels[0]
	if entry.Actor != "alice" || entry.ResourceID != id || entry.FacilityID != "fac-1" {
		t.Fatalf("audit entry mismatch: %+v", entry)
	}
	if !strings.Contains(string(entry.Metadata), "operator request") {
		t.Fatalf("metadata should carry the reason, got %s", entry.Metadata)
	}
}

func TestSweep_ActivatesAndCompletesIdempotently(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	publisher := &capturePublisher{}
	scheduler := newScheduler(t, repo, fixedEstimator{kw: 42.5, ok: true}, publisher)

	result, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 0), End: at(15, 0),
		TargetReductionKW: 50, Priority: 2,
		Reason: curtailment.ReasonManual, Actor: "operator",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := result.Created[0].ID

	// Repeated sweeps at the same instant must transition exactly once.
	for i := 0; i < 3; i++ {
		if err := scheduler.Sweep(ctx, at(14, 5)); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	active, _ := repo.Get(ctx, id)
	if active.Status != curtailment.StatusActive {
		t.Fatalf("expected active, got %s", active.Status)
	}
	started := publisher.byType(func(e any) bool {
		_, ok := e.(curtailment.CurtailmentStarted)
		return ok
	})
	if started != 1 {
		t.Fatalf("expected one started event, got %d", started)
	}

	for i := 0; i < 3; i++ {
		if err := scheduler.Sweep(ctx, at(15, 5)); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	completed, _ := repo.Get(ctx, id)
	if completed.Status != curtailment.StatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.ActualReductionKW != 42.5 {
		t.Fatalf("expected measured reduction 42.5, got %v", completed.ActualReductionKW)
	}
	done := publisher.byType(func(e any) bool {
		_, ok := e.(curtailment.CurtailmentCompleted)
		return ok
	})
	if done != 1 {
		t.Fatalf("expected one completed event, got %d", done)
	}
}

func TestSweep_FallsBackToTargetWhenTelemetryMissing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewScheduleRepository()
	publisher := &capturePublisher{}
	scheduler := newScheduler(t, repo, fixedEstimator{ok: false}, publisher)

	result, err := scheduler.Create(ctx, application.CreateRequest{
		FacilityID: "fac-1", ZoneID: "zone-a",
		Start: at(14, 0), End: at(15, 0),
		TargetReductionKW: 75, Priority: 2,
		Reason: curtailment.ReasonManual, Actor: "operator",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := result.Created[0].ID

	if err := scheduler.Sweep(ctx, at(14, 5)); err != nil {
		t.Fatalf("activate sweep: %v", err)
	}
	if err := scheduler.Sweep(ctx, at(15, 5)); err != nil {
		t.Fatalf("complete sweep: %v", err)
	}

	schedule, _ := repo.Get(ctx, id)
	if schedule.ActualReductionKW != 75 {
		t.Fatalf("expected target fallback 75, got %v", schedule.ActualReductionKW)
	}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	for _, event := range publisher.events {
		if done, ok := event.(curtailment.CurtailmentCompleted); ok {
			if !done.Estimated {
				t.Fatal("fallback completion must be flagged as estimated")
			}
		}
	}
}
