package application_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"vibelux-energy/internal/telemetry/application"
	telemetry "vibelux-energy/internal/telemetry/domain"
	"vibelux-energy/internal/telemetry/infrastructure/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, any) error {
	return errors.New("bus down")
}

func reading(deviceID string, ts time.Time, kind telemetry.Kind, value float64) telemetry.Reading {
	return telemetry.Reading{
		DeviceID: deviceID,
		ZoneID:   "zone-a",
		TS:       ts,
		Kind:     kind,
		Value:    value,
	}
}

func TestIngest_AcceptsAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReadingRepository()
	publisher := &recordingPublisher{}
	service, err := application.NewIngestService(repo, publisher)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ts := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	batch := []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 12.5),
		reading("meter-1", ts.Add(15*time.Minute), telemetry.KindEnergyKWh, 13.1),
	}

	result, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, batch)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Accepted != 2 || result.Deduped != 0 {
		t.Fatalf("first batch: %+v", result)
	}

	// Redelivering the identical batch is a no-op, not an error.
	result, err = service.Ingest(ctx, "fac-1", telemetry.SourceAPI, batch)
	if err != nil {
		t.Fatalf("ingest redelivery: %v", err)
	}
	if result.Accepted != 0 || result.Deduped != 2 {
		t.Fatalf("redelivery: %+v", result)
	}
	if repo.Count() != 2 {
		t.Fatalf("store must hold 2 rows, got %d", repo.Count())
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.events) != 1 {
		t.Fatalf("only the accepting batch publishes, got %d events", len(publisher.events))
	}
	if event, ok := publisher.events[0].(application.ReadingsIngested); !ok || event.Accepted != 2 {
		t.Fatalf("unexpected event: %+v", publisher.events[0])
	}
}

func TestIngest_PublishFailureIsLoggedNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReadingRepository()
	var buf bytes.Buffer
	service, err := application.NewIngestService(repo, failingPublisher{},
		application.WithIngestLogger(log.New(&buf, "", 0)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ts := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	result, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 12.5),
	})
	if err != nil {
		t.Fatalf("ingest must not fail on a lost event: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", result.Accepted)
	}
	if repo.Count() != 1 {
		t.Fatalf("reading must be stored, got %d rows", repo.Count())
	}
	if !strings.Contains(buf.String(), "publish") {
		t.Fatalf("publish failure must be logged, got %q", buf.String())
	}
}

func TestIngest_CorrectionInsideGraceWindow(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReadingRepository()
	service, err := application.NewIngestService(repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ts := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	if _, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 10),
	}); err != nil {
		t.Fatalf("ingest original: %v", err)
	}

	result, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 11.5),
	})
	if err != nil {
		t.Fatalf("ingest correction: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("correction must be accepted: %+v", result)
	}
	stored, ok := repo.Get("fac-1", "meter-1", ts, telemetry.KindEnergyKWh)
	if !ok || stored.Value != 11.5 {
		t.Fatalf("stored value = %v", stored.Value)
	}
}

func TestIngest_ConflictPastGraceWindowIsImmutable(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReadingRepository()
	service, err := application.NewIngestService(repo, nil, application.WithGraceWindow(time.Hour))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ts := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	if _, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 10),
	}); err != nil {
		t.Fatalf("ingest original: %v", err)
	}

	result, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 99),
	})
	if err != nil {
		t.Fatalf("ingest late conflict: %v", err)
	}
	if result.Accepted != 0 || len(result.Errors) != 1 {
		t.Fatalf("late conflict must be rejected per item: %+v", result)
	}
	stored, _ := repo.Get("fac-1", "meter-1", ts, telemetry.KindEnergyKWh)
	if stored.Value != 10 {
		t.Fatalf("original value must survive, got %v", stored.Value)
	}
}

func TestIngest_PerItemValidation(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewReadingRepository()
	service, err := application.NewIngestService(repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ts := time.Now().UTC().Add(-time.Hour)
	batch := []telemetry.Reading{
		reading("meter-1", ts, telemetry.KindEnergyKWh, 12.5),
		reading("meter-1", ts, telemetry.KindEnergyKWh, -4), // negative energy
		reading("", ts, telemetry.KindEnergyKWh, 5),         // missing device
		reading("meter-2", ts, telemetry.KindPowerFactor, 1.4),
		reading("meter-3", time.Time{}, telemetry.KindPowerKW, 3), // missing timestamp
	}

	result, err := service.Ingest(ctx, "fac-1", telemetry.SourceAPI, batch)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", result.Accepted)
	}
	if len(result.Errors) != 4 {
		t.Fatalf("errors = %d, want 4: %+v", len(result.Errors), result.Errors)
	}
	for _, itemErr := range result.Errors {
		if itemErr.Index == 0 {
			t.Fatalf("valid item flagged: %+v", itemErr)
		}
	}
}

func TestIngest_RequiresFacility(t *testing.T) {
	repo := memory.NewReadingRepository()
	service, err := application.NewIngestService(repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := service.Ingest(context.Background(), "", telemetry.SourceAPI, nil); err == nil {
		t.Fatal("expected error for missing facility id")
	}
}
