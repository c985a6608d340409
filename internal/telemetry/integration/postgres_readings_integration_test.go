package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	telemetry "vibelux-energy/internal/telemetry/domain"
	telemetrypostgres "vibelux-energy/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestReadingUpsert_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "readings") {
		t.Skip("readings missing; run migrations")
	}

	ctx := context.Background()
	facilityID := "fac-it"
	deviceID := "meter-it"

	_, _ = db.ExecContext(ctx, "DELETE FROM readings WHERE facility_id = $1", facilityID)

	repo := telemetrypostgres.NewReadingRepository(db)
	grace := 24 * time.Hour

	recent := time.Now().UTC().Truncate(time.Hour)
	stale := recent.Add(-72 * time.Hour)

	reading := telemetry.Reading{
		FacilityID: facilityID,
		DeviceID:   deviceID,
		ZoneID:     "zone-it",
		TS:         recent,
		Kind:       telemetry.KindEnergyKWh,
		Value:      10,
		Source:     telemetry.SourceMeter,
	}

	outcome, err := repo.Upsert(ctx, reading, grace)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if outcome != telemetry.OutcomeInserted {
		t.Fatalf("expected insert, got %v", outcome)
	}

	// Identical re-delivery dedupes.
	outcome, err = repo.Upsert(ctx, reading, grace)
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if outcome != telemetry.OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %v", outcome)
	}

	// A changed value inside the grace window replaces the stored row.
	reading.Value = 11.5
	outcome, err = repo.Upsert(ctx, reading, grace)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if outcome != telemetry.OutcomeUpdated {
		t.Fatalf("expected update, got %v", outcome)
	}

	var stored float64
	if err := db.QueryRowContext(ctx, `
SELECT value FROM readings
WHERE facility_id = $1 AND device_id = $2 AND ts = $3 AND kind = $4`,
		facilityID, deviceID, recent, string(telemetry.KindEnergyKWh)).Scan(&stored); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if stored != 11.5 {
		t.Fatalf("stored value: got=%v want=11.5", stored)
	}

	// Past the grace window the row is immutable.
	old := reading
	old.TS = stale
	old.Value = 20
	if outcome, err = repo.Upsert(ctx, old, grace); err != nil {
		t.Fatalf("insert stale: %v", err)
	}
	if outcome != telemetry.OutcomeInserted {
		t.Fatalf("expected stale insert, got %v", outcome)
	}
	old.Value = 25
	if outcome, err = repo.Upsert(ctx, old, grace); err != nil {
		t.Fatalf("conflict stale: %v", err)
	}
	if outcome != telemetry.OutcomeImmutable {
		t.Fatalf("expected immutable, got %v", outcome)
	}
}

func TestReadingQuery_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "readings") {
		t.Skip("readings missing; run migrations")
	}

	ctx := context.Background()
	facilityID := "fac-it-query"

	_, _ = db.ExecContext(ctx, "DELETE FROM readings WHERE facility_id = $1", facilityID)

	repo := telemetrypostgres.NewReadingRepository(db)
	query := telemetrypostgres.NewReadingQuery(db)

	dayStart := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	grace := 24 * time.Hour
	samples := []telemetry.Reading{
		{FacilityID: facilityID, DeviceID: "m1", ZoneID: "z1", TS: dayStart.Add(6 * time.Hour), Kind: telemetry.KindEnergyKWh, Value: 40, Source: telemetry.SourceMeter},
		{FacilityID: facilityID, DeviceID: "m1", ZoneID: "z1", TS: dayStart.Add(18 * time.Hour), Kind: telemetry.KindEnergyKWh, Value: 60, Source: telemetry.SourceMeter},
		{FacilityID: facilityID, DeviceID: "m1", ZoneID: "z1", TS: dayStart.Add(6 * time.Hour), Kind: telemetry.KindCostUSD, Value: 12.5, Source: telemetry.SourceMeter},
		{FacilityID: facilityID, DeviceID: "m1", ZoneID: "z1", TS: dayStart.Add(12 * time.Hour), Kind: telemetry.KindPowerKW, Value: 80, Source: telemetry.SourceMeter},
		{FacilityID: facilityID, DeviceID: "m1", ZoneID: "z1", TS: dayStart.Add(13 * time.Hour), Kind: telemetry.KindPowerKW, Value: 100, Source: telemetry.SourceMeter},
	}
	for _, sample := range samples {
		if _, err := repo.Upsert(ctx, sample, grace); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	days, err := query.ListDailyActuals(ctx, facilityID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list daily actuals: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	day := days[0]
	if day.EnergyKWh != 100 {
		t.Fatalf("energy: got=%v want=100", day.EnergyKWh)
	}
	if day.CostCents != 1250 {
		t.Fatalf("cost cents: got=%d want=1250", day.CostCents)
	}
	if day.PeakPowerKW != 100 {
		t.Fatalf("peak: got=%v want=100", day.PeakPowerKW)
	}

	mean, ok, err := query.MeanPowerKW(ctx, facilityID, "z1", dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("mean power: %v", err)
	}
	if !ok || mean != 90 {
		t.Fatalf("mean power: got=%v ok=%v want=90", mean, ok)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
