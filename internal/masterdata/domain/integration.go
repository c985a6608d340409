package masterdata

import (
	"context"
	"errors"
	"time"
)

// Connector types supported by the ingest pollers.
const (
	ConnectorAPI          = "api"
	ConnectorOAuthUtility = "oauth_utility"
	ConnectorCSV          = "csv"
	ConnectorMQTT         = "mqtt"
	ConnectorModbus       = "modbus"
)

// APIConnector holds plain HTTP poll settings.
type APIConnector struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Token   string `json:"token" yaml:"token"`
}

// OAuthUtilityConnector holds OAuth-connected utility account settings.
type OAuthUtilityConnector struct {
	BaseURL      string `json:"base_url" yaml:"base_url"`
	TokenURL     string `json:"token_url" yaml:"token_url"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
	AccountID    string `json:"account_id" yaml:"account_id"`
}

// CSVConnector holds watched-directory CSV upload settings.
type CSVConnector struct {
	Dir string `json:"dir" yaml:"dir"`
}

// MQTTConnector holds device-push broker settings.
type MQTTConnector struct {
	BrokerURL string `json:"broker_url" yaml:"broker_url"`
	Topic     string `json:"topic" yaml:"topic"`
	ClientID  string `json:"client_id" yaml:"client_id"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
}

// ModbusConnector holds register-poll gateway settings. Only the normalized
// reading shape is consumed here; register decoding happens in the gateway.
type ModbusConnector struct {
	GatewayURL string `json:"gateway_url" yaml:"gateway_url"`
	UnitID     int    `json:"unit_id" yaml:"unit_id"`
}

// ConnectorConfig is a tagged variant: Type selects exactly one branch.
type ConnectorConfig struct {
	Type   string                 `json:"type" yaml:"type"`
	API    *APIConnector          `json:"api,omitempty" yaml:"api,omitempty"`
	OAuth  *OAuthUtilityConnector `json:"oauth,omitempty" yaml:"oauth,omitempty"`
	CSV    *CSVConnector          `json:"csv,omitempty" yaml:"csv,omitempty"`
	MQTT   *MQTTConnector         `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Modbus *ModbusConnector       `json:"modbus,omitempty" yaml:"modbus,omitempty"`
}

// Validate checks that the selected branch is present and the others absent.
func (c ConnectorConfig) Validate() error {
	switch c.Type {
	case ConnectorAPI:
		if c.API == nil {
			return errors.New("connector: missing api settings")
		}
	case ConnectorOAuthUtility:
		if c.OAuth == nil {
			return errors.New("connector: missing oauth settings")
		}
	case ConnectorCSV:
		if c.CSV == nil {
			return errors.New("connector: missing csv settings")
		}
	case ConnectorMQTT:
		if c.MQTT == nil {
			return errors.New("connector: missing mqtt settings")
		}
	case ConnectorModbus:
		if c.Modbus == nil {
			return errors.New("connector: missing modbus settings")
		}
	default:
		return errors.New("connector: unknown type " + c.Type)
	}
	return nil
}

// Integration binds a facility to a telemetry source.
type Integration struct {
	ID         string
	FacilityID string
	Name       string
	Connector  ConnectorConfig

	PollInterval time.Duration
	RetryBudget  int

	Active              bool
	ConsecutiveFailures int
	DeactivatedReason   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks integration invariants.
func (i Integration) Validate() error {
	if i.ID == "" {
		return errors.New("integration: empty id")
	}
	if i.FacilityID == "" {
		return errors.New("integration: empty facility id")
	}
	if i.PollInterval <= 0 && i.Connector.Type != ConnectorMQTT {
		return errors.New("integration: poll interval required")
	}
	return i.Connector.Validate()
}

// IntegrationRepository manages integration persistence.
type IntegrationRepository interface {
	Get(ctx context.Context, id string) (*Integration, error)
	ListActive(ctx context.Context) ([]Integration, error)
	Save(ctx context.Context, integration *Integration) error
	RecordFailure(ctx context.Context, id string) (int, error)
	ResetFailures(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id, reason string) error
}
