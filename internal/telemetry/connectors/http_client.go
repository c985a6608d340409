package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	masterdata "vibelux-energy/internal/masterdata/domain"
	telemetry "vibelux-energy/internal/telemetry/domain"
)

const httpClientTimeout = 10 * time.Second

// APIPoller polls a plain token-authenticated readings endpoint. The remote
// side exposes GET /readings?since=<RFC3339> returning normalized readings.
type APIPoller struct {
	integration masterdata.Integration
	baseURL     string
	token       string
	client      *http.Client

	mu    sync.Mutex
	since time.Time
}

// NewAPIPoller constructs an API poller.
func NewAPIPoller(integration masterdata.Integration) (*APIPoller, error) {
	cfg := integration.Connector.API
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("connectors: api connector missing base url")
	}
	return &APIPoller{
		integration: integration,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		client:      &http.Client{Timeout: httpClientTimeout},
		since:       time.Now().UTC().Add(-24 * time.Hour),
	}, nil
}

// Poll fetches readings observed since the previous successful poll.
func (p *APIPoller) Poll(ctx context.Context) ([]telemetry.Reading, error) {
	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	path := "/readings?since=" + url.QueryEscape(since.Format(time.RFC3339))
	var wire []wireReading
	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}
	if err := doJSON(ctx, p.client, http.MethodGet, p.baseURL+path, header, nil, &wire); err != nil {
		return nil, &telemetry.ConnectorError{IntegrationID: p.integration.ID, Op: "poll", Err: err}
	}

	readings, latest := decodeWire(p.integration.FacilityID, telemetry.SourceAPI, wire)
	if latest.After(since) {
		p.mu.Lock()
		p.since = latest
		p.mu.Unlock()
	}
	return readings, nil
}

// ModbusPoller polls a modbus gateway that decodes registers and serves the
// same normalized reading shape over HTTP.
type ModbusPoller struct {
	integration masterdata.Integration
	gatewayURL  string
	unitID      int
	client      *http.Client
}

// NewModbusPoller constructs a modbus gateway poller.
func NewModbusPoller(integration masterdata.Integration) (*ModbusPoller, error) {
	cfg := integration.Connector.Modbus
	if cfg == nil || cfg.GatewayURL == "" {
		return nil, errors.New("connectors: modbus connector missing gateway url")
	}
	return &ModbusPoller{
		integration: integration,
		gatewayURL:  strings.TrimRight(cfg.GatewayURL, "/"),
		unitID:      cfg.UnitID,
		client:      &http.Client{Timeout: httpClientTimeout},
	}, nil
}

// Poll reads the gateway's current register snapshot.
func (p *ModbusPoller) Poll(ctx context.Context) ([]telemetry.Reading, error) {
	path := fmt.Sprintf("/units/%d/readings", p.unitID)
	var wire []wireReading
	if err := doJSON(ctx, p.client, http.MethodGet, p.gatewayURL+path, nil, nil, &wire); err != nil {
		return nil, &telemetry.ConnectorError{IntegrationID: p.integration.ID, Op: "poll", Err: err}
	}
	readings, _ := decodeWire(p.integration.FacilityID, telemetry.SourceMeter, wire)
	return readings, nil
}

// wireReading is the shape remote sources and gateways serve.
type wireReading struct {
	DeviceID string  `json:"deviceId"`
	ZoneID   string  `json:"zoneId,omitempty"`
	TS       string  `json:"ts"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
}

func decodeWire(facilityID string, source telemetry.Source, wire []wireReading) ([]telemetry.Reading, time.Time) {
	readings := make([]telemetry.Reading, 0, len(wire))
	var latest time.Time
	for _, item := range wire {
		ts, err := time.Parse(time.RFC3339, item.TS)
		if err != nil {
			// Carry the zero time through; per-item validation rejects it.
			ts = time.Time{}
		} else if ts.After(latest) {
			latest = ts
		}
		readings = append(readings, telemetry.Reading{
			FacilityID: facilityID,
			DeviceID:   item.DeviceID,
			ZoneID:     item.ZoneID,
			TS:         ts.UTC(),
			Kind:       telemetry.Kind(item.Kind),
			Value:      item.Value,
			Source:     source,
		})
	}
	return readings, latest
}

func doJSON(ctx context.Context, client *http.Client, method, rawURL string, header http.Header, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("connectors: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
