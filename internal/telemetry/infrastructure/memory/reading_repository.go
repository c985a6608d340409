package memory

import (
	"context"
	"math"
	"sync"
	"time"

	telemetry "vibelux-energy/internal/telemetry/domain"
)

type readingKey struct {
	facilityID string
	deviceID   string
	ts         time.Time
	kind       telemetry.Kind
}

// ReadingRepository is an in-memory repository for readings.
type ReadingRepository struct {
	mu   sync.RWMutex
	data map[readingKey]telemetry.Reading
}

// NewReadingRepository constructs a repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{data: make(map[readingKey]telemetry.Reading)}
}

// Upsert mirrors the Postgres grace-window semantics.
func (r *ReadingRepository) Upsert(ctx context.Context, reading telemetry.Reading, grace time.Duration) (telemetry.UpsertOutcome, error) {
	_ = ctx
	key := readingKey{
		facilityID: reading.FacilityID,
		deviceID:   reading.DeviceID,
		ts:         reading.TS,
		kind:       reading.Kind,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[key]
	if !ok {
		r.data[key] = reading
		return telemetry.OutcomeInserted, nil
	}
	if math.Abs(existing.Value-reading.Value) <= 1e-9 {
		return telemetry.OutcomeUnchanged, nil
	}
	if time.Since(reading.TS) > grace {
		return telemetry.OutcomeImmutable, nil
	}
	r.data[key] = reading
	return telemetry.OutcomeUpdated, nil
}

// Count returns the stored row count, for assertion convenience.
func (r *ReadingRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Get returns the stored reading for a key, for assertion convenience.
func (r *ReadingRepository) Get(facilityID, deviceID string, ts time.Time, kind telemetry.Kind) (telemetry.Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reading, ok := r.data[readingKey{facilityID: facilityID, deviceID: deviceID, ts: ts, kind: kind}]
	return reading, ok
}
