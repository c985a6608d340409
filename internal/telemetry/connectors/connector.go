package connectors

import (
	"context"

	telemetry "vibelux-energy/internal/telemetry/domain"
)

// Connector pulls normalized readings from an external source. Poll is
// called on the integration's interval and returns readings observed since
// the previous call.
type Connector interface {
	Poll(ctx context.Context) ([]telemetry.Reading, error)
}

// PushConnector receives readings pushed by the source instead of being
// polled. Start blocks until ctx is cancelled.
type PushConnector interface {
	Start(ctx context.Context) error
}

// Sink accepts polled batches. The ingest application service satisfies it.
type Sink interface {
	Ingest(ctx context.Context, facilityID string, source telemetry.Source, readings []telemetry.Reading) (telemetry.IngestResult, error)
}

// Alerter notifies operators about connector incidents.
type Alerter interface {
	Notify(ctx context.Context, subject, message string) error
}
