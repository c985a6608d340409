package connectors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	masterdata "vibelux-energy/internal/masterdata/domain"
	"vibelux-energy/internal/observability/metrics"
)

const (
	// DefaultRetryBudget deactivates an integration after this many
	// consecutive failed polls when the integration sets no budget.
	DefaultRetryBudget = 5

	pollTimeout = 30 * time.Second
)

// Poller drives one polled integration: a ticker at the integration's
// interval, a per-poll timeout, and a consecutive-failure budget that
// deactivates the integration and alerts the operator when exhausted.
type Poller struct {
	integration masterdata.Integration
	connector   Connector
	sink        Sink
	integrations masterdata.IntegrationRepository
	alerter     Alerter
	logger      *log.Logger
}

// NewPoller constructs a poller for one integration.
func NewPoller(integration masterdata.Integration, connector Connector, sink Sink, integrations masterdata.IntegrationRepository, alerter Alerter, logger *log.Logger) (*Poller, error) {
	if connector == nil {
		return nil, errors.New("connectors: nil connector")
	}
	if sink == nil {
		return nil, errors.New("connectors: nil sink")
	}
	if integrations == nil {
		return nil, errors.New("connectors: nil integration repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		integration:  integration,
		connector:    connector,
		sink:         sink,
		integrations: integrations,
		alerter:      alerter,
		logger:       logger,
	}, nil
}

// Run polls until ctx is cancelled or the integration is deactivated.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.integration.PollInterval
	if interval <= 0 {
		return fmt.Errorf("connectors: integration %s has no poll interval", p.integration.ID)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		deactivated, err := p.pollOnce(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if deactivated {
			return nil
		}
	}
}

// pollOnce runs a single poll cycle. It reports whether the integration
// was deactivated by budget exhaustion.
func (p *Poller) pollOnce(ctx context.Context) (bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	readings, err := p.connector.Poll(pollCtx)
	if err != nil {
		metrics.IncConnectorPoll(metrics.ResultError)
		metrics.IncConnectorFailure(p.integration.ID)
		return p.recordFailure(ctx, err)
	}

	if len(readings) > 0 {
		result, err := p.sink.Ingest(pollCtx, p.integration.FacilityID, readings[0].Source, readings)
		if err != nil {
			metrics.IncConnectorPoll(metrics.ResultError)
			metrics.IncConnectorFailure(p.integration.ID)
			return p.recordFailure(ctx, err)
		}
		if len(result.Errors) > 0 {
			p.logger.Printf("connector %s: %d readings rejected", p.integration.ID, len(result.Errors))
		}
	}

	metrics.IncConnectorPoll(metrics.ResultSuccess)
	if err := p.integrations.ResetFailures(ctx, p.integration.ID); err != nil {
		p.logger.Printf("connector %s: reset failures: %v", p.integration.ID, err)
	}
	return false, nil
}

func (p *Poller) recordFailure(ctx context.Context, cause error) (bool, error) {
	p.logger.Printf("connector %s: poll failed: %v", p.integration.ID, cause)

	failures, err := p.integrations.RecordFailure(ctx, p.integration.ID)
	if err != nil {
		p.logger.Printf("connector %s: record failure: %v", p.integration.ID, err)
		return false, cause
	}

	budget := p.integration.RetryBudget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	if failures < budget {
		return false, cause
	}

	reason := fmt.Sprintf("%d consecutive poll failures, last: %v", failures, cause)
	if err := p.integrations.Deactivate(ctx, p.integration.ID, reason); err != nil {
		p.logger.Printf("connector %s: deactivate: %v", p.integration.ID, err)
		return false, cause
	}
	p.logger.Printf("connector %s: deactivated after %d consecutive failures", p.integration.ID, failures)

	if p.alerter != nil {
		subject := fmt.Sprintf("integration %s deactivated", p.integration.Name)
		message := fmt.Sprintf("facility %s: %s", p.integration.FacilityID, reason)
		if err := p.alerter.Notify(ctx, subject, message); err != nil {
			p.logger.Printf("connector %s: alert: %v", p.integration.ID, err)
		}
	}
	return true, cause
}
