package telemetry

import (
	"context"
	"time"
)

// Kind identifies what a reading measures.
type Kind string

const (
	KindPowerKW     Kind = "power_kw"
	KindEnergyKWh   Kind = "energy_kwh"
	KindVoltage     Kind = "voltage"
	KindCurrent     Kind = "current"
	KindPowerFactor Kind = "power_factor"
	KindCostUSD     Kind = "cost_usd"
)

// ParseKind validates a kind string.
func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindPowerKW, KindEnergyKWh, KindVoltage, KindCurrent, KindPowerFactor, KindCostUSD:
		return Kind(value), true
	default:
		return "", false
	}
}

// Source identifies how a reading entered the system.
type Source string

const (
	SourceMeter  Source = "meter"
	SourceAPI    Source = "api"
	SourceManual Source = "manual"
	SourceCSV    Source = "csv"
)

// ParseSource validates a source string.
func ParseSource(value string) (Source, bool) {
	switch Source(value) {
	case SourceMeter, SourceAPI, SourceManual, SourceCSV:
		return Source(value), true
	default:
		return "", false
	}
}

// Reading is a canonical normalized telemetry or bill value.
// (FacilityID, DeviceID, TS, Kind) is the uniqueness key.
type Reading struct {
	FacilityID string
	DeviceID   string
	ZoneID     string
	TS         time.Time
	Kind       Kind
	Value      float64
	Source     Source
}

// Validate checks plausibility ranges for a single reading.
func (r Reading) Validate() error {
	if r.FacilityID == "" {
		return &ValidationError{Field: "facilityId", Reason: "required"}
	}
	if r.DeviceID == "" {
		return &ValidationError{Field: "deviceId", Reason: "required"}
	}
	if r.TS.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "required"}
	}
	if _, ok := ParseKind(string(r.Kind)); !ok {
		return &ValidationError{Field: "kind", Reason: "unknown kind"}
	}
	if _, ok := ParseSource(string(r.Source)); !ok {
		return &ValidationError{Field: "source", Reason: "unknown source"}
	}

	switch r.Kind {
	case KindEnergyKWh:
		if r.Value < 0 {
			return &ValidationError{Field: "value", Reason: "negative energy"}
		}
	case KindPowerFactor:
		if r.Value < 0 || r.Value > 1.0 {
			return &ValidationError{Field: "value", Reason: "power factor outside [0,1]"}
		}
	case KindVoltage, KindCurrent:
		if r.Value < 0 {
			return &ValidationError{Field: "value", Reason: "negative " + string(r.Kind)}
		}
	case KindCostUSD:
		if r.Value < 0 {
			return &ValidationError{Field: "value", Reason: "negative cost"}
		}
	}
	return nil
}

// UpsertOutcome reports what the store did with a reading.
type UpsertOutcome int

const (
	// OutcomeInserted means the reading was new.
	OutcomeInserted UpsertOutcome = iota
	// OutcomeUpdated means an in-grace-window correction replaced the value.
	OutcomeUpdated
	// OutcomeUnchanged means an identical tuple was re-delivered.
	OutcomeUnchanged
	// OutcomeImmutable means a conflicting value arrived past the grace window.
	OutcomeImmutable
)

// ReadingRepository persists canonical readings.
type ReadingRepository interface {
	Upsert(ctx context.Context, reading Reading, grace time.Duration) (UpsertOutcome, error)
}

// ItemError reports a single rejected reading within a batch.
type ItemError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestResult summarizes a batch ingest.
type IngestResult struct {
	Accepted int         `json:"accepted"`
	Deduped  int         `json:"deduped"`
	Errors   []ItemError `json:"errors,omitempty"`
}
