package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	masterdata "vibelux-energy/internal/masterdata/domain"
	telemetry "vibelux-energy/internal/telemetry/domain"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQoS            = 1
)

// MQTTSubscriber receives device-push readings from a broker topic and
// forwards them to the ingest sink. Message handling is idempotent because
// the reading store dedupes on the reading key, so QoS 1 redelivery is safe.
type MQTTSubscriber struct {
	integration masterdata.Integration
	cfg         masterdata.MQTTConnector
	sink        Sink
	logger      *log.Logger
}

// NewMQTTSubscriber constructs an MQTT push subscriber.
func NewMQTTSubscriber(integration masterdata.Integration, sink Sink, logger *log.Logger) (*MQTTSubscriber, error) {
	cfg := integration.Connector.MQTT
	if cfg == nil || cfg.BrokerURL == "" || cfg.Topic == "" {
		return nil, errors.New("connectors: mqtt connector missing broker or topic")
	}
	if sink == nil {
		return nil, errors.New("connectors: nil sink")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MQTTSubscriber{integration: integration, cfg: *cfg, sink: sink, logger: logger}, nil
}

// Start connects, subscribes and blocks until ctx is cancelled.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.clientID()).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		token := client.Subscribe(s.cfg.Topic, mqttQoS, s.handle(ctx))
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Printf("mqtt connector %s: subscribe error: %v", s.integration.ID, err)
		}
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return &telemetry.ConnectorError{IntegrationID: s.integration.ID, Op: "connect", Err: errors.New("timeout")}
	}
	if err := token.Error(); err != nil {
		return &telemetry.ConnectorError{IntegrationID: s.integration.ID, Op: "connect", Err: err}
	}
	s.logger.Printf("mqtt connector %s: connected to %s", s.integration.ID, s.cfg.BrokerURL)

	<-ctx.Done()
	client.Disconnect(250)
	return ctx.Err()
}

func (s *MQTTSubscriber) handle(ctx context.Context) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		var wire []wireReading
		if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
			// Single-object payloads are also accepted.
			var single wireReading
			if err2 := json.Unmarshal(msg.Payload(), &single); err2 != nil {
				s.logger.Printf("mqtt connector %s: bad payload on %s: %v", s.integration.ID, msg.Topic(), err)
				return
			}
			wire = []wireReading{single}
		}

		readings, _ := decodeWire(s.integration.FacilityID, telemetry.SourceMeter, wire)
		ingestCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		result, err := s.sink.Ingest(ingestCtx, s.integration.FacilityID, telemetry.SourceMeter, readings)
		if err != nil {
			s.logger.Printf("mqtt connector %s: ingest error: %v", s.integration.ID, err)
			return
		}
		if len(result.Errors) > 0 {
			s.logger.Printf("mqtt connector %s: %d readings rejected", s.integration.ID, len(result.Errors))
		}
	}
}

func (s *MQTTSubscriber) clientID() string {
	if s.cfg.ClientID != "" {
		return s.cfg.ClientID
	}
	return fmt.Sprintf("vibelux-ingest-%s", s.integration.ID)
}
