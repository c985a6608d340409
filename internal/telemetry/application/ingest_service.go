package application

import (
	"context"
	"errors"
	"log"
	"time"

	"vibelux-energy/internal/observability/metrics"
	telemetry "vibelux-energy/internal/telemetry/domain"
)

// DefaultGraceWindow is how long a stored reading stays correctable.
const DefaultGraceWindow = 24 * time.Hour

// ReadingsIngested is emitted after a batch with at least one accepted reading.
type ReadingsIngested struct {
	FacilityID string    `json:"facility_id"`
	Source     string    `json:"source"`
	Accepted   int       `json:"accepted"`
	Deduped    int       `json:"deduped"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher emits ingest events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// IngestService normalizes and stores reading batches.
type IngestService struct {
	repo      telemetry.ReadingRepository
	publisher EventPublisher
	grace     time.Duration
	logger    *log.Logger
}

// IngestOption configures the service.
type IngestOption func(*IngestService)

// WithGraceWindow overrides the correction grace window.
func WithGraceWindow(grace time.Duration) IngestOption {
	return func(s *IngestService) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

// WithIngestLogger overrides the service logger.
func WithIngestLogger(logger *log.Logger) IngestOption {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIngestService constructs the service.
func NewIngestService(repo telemetry.ReadingRepository, publisher EventPublisher, opts ...IngestOption) (*IngestService, error) {
	if repo == nil {
		return nil, errors.New("ingest service: nil repository")
	}
	s := &IngestService{repo: repo, publisher: publisher, grace: DefaultGraceWindow, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest validates and upserts a batch. Items are accepted or rejected
// individually; a batch never fails wholesale on item errors.
func (s *IngestService) Ingest(ctx context.Context, facilityID string, source telemetry.Source, readings []telemetry.Reading) (telemetry.IngestResult, error) {
	start := time.Now()
	result := telemetry.IngestResult{}
	if facilityID == "" {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return result, errors.New("ingest service: facility id required")
	}

	for i, reading := range readings {
		reading.FacilityID = facilityID
		if reading.Source == "" {
			reading.Source = source
		}
		reading.TS = reading.TS.UTC()

		if err := reading.Validate(); err != nil {
			result.Errors = append(result.Errors, telemetry.ItemError{Index: i, Reason: err.Error()})
			metrics.AddRejected("validation", 1)
			continue
		}

		outcome, err := s.repo.Upsert(ctx, reading, s.grace)
		if err != nil {
			metrics.ObserveIngest(metrics.ResultError, time.Since(start))
			return result, err
		}
		switch outcome {
		case telemetry.OutcomeInserted, telemetry.OutcomeUpdated:
			result.Accepted++
		case telemetry.OutcomeUnchanged:
			result.Deduped++
		case telemetry.OutcomeImmutable:
			result.Errors = append(result.Errors, telemetry.ItemError{
				Index:  i,
				Reason: "reading older than grace window is immutable; record an adjustment instead",
			})
			metrics.AddRejected("immutable", 1)
		}
	}

	metrics.AddIngested("accepted", result.Accepted)
	metrics.AddIngested("deduped", result.Deduped)
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))

	if s.publisher != nil && result.Accepted > 0 {
		event := ReadingsIngested{
			FacilityID: facilityID,
			Source:     string(source),
			Accepted:   result.Accepted,
			Deduped:    result.Deduped,
			OccurredAt: time.Now().UTC(),
		}
		// The batch is already stored; a lost event is log-worthy, not fatal.
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Printf("ingest %s: publish: %v", facilityID, err)
		}
	}
	return result, nil
}
