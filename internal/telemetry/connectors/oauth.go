package connectors

import (
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

// tokenSkew subtracts from the reported expiry so a token is refreshed
// before the remote side rejects it.
const tokenSkew = 30 * time.Second

// OAuthUtilityPoller polls an OAuth-connected utility account. Access
// tokens are obtained from the refresh token and renewed on expiry.
type OAuthUtilityPoller struct {
	integration masterdata.Integration
	cfg         masterdata.OAuthUtilityConnector
	client      *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	since       time.Time
}

// NewOAuthUtilityPoller constructs an OAuth utility poller.
func NewOAuthUtilityPoller(integration masterdata.Integration) (*OAuthUtilityPoller, error) {
	cfg := integration.Connector.OAuth
	if cfg == nil {
		return nil, errors.New("connectors: oauth connector missing settings")
	}
	if cfg.BaseURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("connectors: oauth connector missing urls")
	}
	return &OAuthUtilityPoller{
		integration: integration,
		cfg:         *cfg,
		client:      &http.Client{Timeout: httpClientTimeout},
		since:       time.Now().UTC().Add(-24 * time.Hour),
	}, nil
}

// Poll fetches usage readings for the connected account.
func (p *OAuthUtilityPoller) Poll(ctx context.Context) ([]telemetry.Reading, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, &telemetry.ConnectorError{IntegrationID: p.integration.ID, Op: "token", Err: err}
	}

	p.mu.Lock()
	since := p.since
	p.mu.Unlock()

	path := fmt.Sprintf("/accounts/%s/usage?since=%s",
		url.PathEscape(p.cfg.AccountID), url.QueryEscape(since.Format(time.RFC3339)))
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	var wire []wireReading
	if err := doJSON(ctx, p.client, http.MethodGet, strings.TrimRight(p.cfg.BaseURL, "/")+path, header, nil, &wire); err != nil {
		// A rejected token is retried with a fresh one on the next poll.
		if strings.Contains(err.Error(), "401") {
			p.mu.Lock()
			p.accessToken = ""
			p.mu.Unlock()
		}
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

func (p *OAuthUtilityPoller) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.accessToken != "" && time.Now().Before(p.expiresAt) {
		token := p.accessToken
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", p.cfg.RefreshToken)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("connectors: token http %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", err
	}
	if grant.AccessToken == "" {
		return "", errors.New("connectors: empty access token")
	}

	expiry := time.Duration(grant.ExpiresIn) * time.Second
	if expiry <= tokenSkew {
		expiry = time.Minute
	}

	p.mu.Lock()
	p.accessToken = grant.AccessToken
	p.expiresAt = time.Now().Add(expiry - tokenSkew)
	p.mu.Unlock()
	return grant.AccessToken, nil
}
