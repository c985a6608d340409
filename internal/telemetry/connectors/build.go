package connectors

import (
	"fmt"
	"log"

	masterdata "vibelux-energy/internal/masterdata/domain"
)

// Build resolves an integration's connector config into a runnable
// connector. Exactly one of the returned values is non-nil: polled types
// yield a Connector, push types a PushConnector.
func Build(integration masterdata.Integration, sink Sink, logger *log.Logger) (Connector, PushConnector, error) {
	if err := integration.Connector.Validate(); err != nil {
		return nil, nil, err
	}
	switch integration.Connector.Type {
	case masterdata.ConnectorAPI:
		poller, err := NewAPIPoller(integration)
		return poller, nil, err
	case masterdata.ConnectorOAuthUtility:
		poller, err := NewOAuthUtilityPoller(integration)
		return poller, nil, err
	case masterdata.ConnectorCSV:
		poller, err := NewCSVPoller(integration)
		return poller, nil, err
	case masterdata.ConnectorModbus:
		poller, err := NewModbusPoller(integration)
		return poller, nil, err
	case masterdata.ConnectorMQTT:
		sub, err := NewMQTTSubscriber(integration, sink, logger)
		return nil, sub, err
	default:
		return nil, nil, fmt.Errorf("connectors: unknown type %q", integration.Connector.Type)
	}
}
