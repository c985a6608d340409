package connectors

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	masterdata "vibelux-energy/internal/masterdata/domain"
)

// Manager fans out one goroutine per active integration: pollers on their
// intervals, push subscribers as long-lived consumers.
type Manager struct {
	integrations masterdata.IntegrationRepository
	sink         Sink
	alerter      Alerter
	logger       *log.Logger
}

// NewManager constructs a connector manager.
func NewManager(integrations masterdata.IntegrationRepository, sink Sink, alerter Alerter, logger *log.Logger) (*Manager, error) {
	if integrations == nil {
		return nil, errors.New("connectors: nil integration repository")
	}
	if sink == nil {
		return nil, errors.New("connectors: nil sink")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{integrations: integrations, sink: sink, alerter: alerter, logger: logger}, nil
}

// Run starts connectors for every active integration and blocks until ctx
// is cancelled. Each connector is isolated: a poller exiting, whether from
// deactivation, a bad config or a broker failure, never takes the other
// integrations down with it. Only ctx cancellation stops the group.
func (m *Manager) Run(ctx context.Context) error {
	active, err := m.integrations.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		m.logger.Printf("connector manager: no active integrations")
		<-ctx.Done()
		return ctx.Err()
	}

	var group errgroup.Group
	for _, integration := range active {
		integration := integration
		connector, push, err := Build(integration, m.sink, m.logger)
		if err != nil {
			m.logger.Printf("connector manager: skipping %s: %v", integration.ID, err)
			continue
		}

		if push != nil {
			group.Go(func() error {
				if err := push.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					m.logger.Printf("connector manager: %s stopped: %v", integration.ID, err)
				}
				return nil
			})
			continue
		}

		poller, err := NewPoller(integration, connector, m.sink, m.integrations, m.alerter, m.logger)
		if err != nil {
			m.logger.Printf("connector manager: skipping %s: %v", integration.ID, err)
			continue
		}
		group.Go(func() error {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Printf("connector manager: %s stopped: %v", integration.ID, err)
			}
			return nil
		})
	}
	_ = group.Wait()
	return ctx.Err()
}
