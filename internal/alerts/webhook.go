package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// WebhookNotifier posts alerts to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts one alert.
func (n *WebhookNotifier) Notify(ctx context.Context, subject, message string) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[Vibelux Alert] %s\n", subject)
	b.WriteString(message)

	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: strings.TrimSpace(b.String())},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook notifier: non-2xx")
	}
	return nil
}

// LogNotifier writes alerts to the process log. Used when no webhook is
// configured so alerting never silently disappears.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs one alert.
func (n *LogNotifier) Notify(_ context.Context, subject, message string) error {
	n.logger.Printf("alert: %s: %s", subject, message)
	return nil
}
