package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifier_PostsAlert(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got=%s want=POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	if err := notifier.Notify(context.Background(), "integration int-1 deactivated", "facility fac-1: 5 consecutive poll failures"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if got.MsgType != "text" {
		t.Fatalf("msgtype: %s", got.MsgType)
	}
	if !strings.Contains(got.Text.Content, "integration int-1 deactivated") {
		t.Fatalf("content missing subject: %q", got.Text.Content)
	}
	if !strings.Contains(got.Text.Content, "fac-1") {
		t.Fatalf("content missing message: %q", got.Text.Content)
	}
}

func TestWebhookNotifier_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	if err := notifier.Notify(context.Background(), "subject", "message"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestWebhookNotifier_EmptyURL(t *testing.T) {
	notifier := NewWebhookNotifier("")
	if err := notifier.Notify(context.Background(), "subject", "message"); err == nil {
		t.Fatal("expected error for empty url")
	}
}
