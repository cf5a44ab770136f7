package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	msg := RunMessage{
		RunID:         "run-1",
		TotalSuccess:  10,
		TotalFailed:   2,
		MetersHandled: 2,
		FailedMeters:  []string{"1002"},
	}
	if err := notifier.Notify(context.Background(), msg); err != nil {
		t.Fatalf("notify: %v", err)
	}

	payload := <-payloadCh
	if payload.MsgType != "text" {
		t.Fatalf("msgtype = %q", payload.MsgType)
	}
	content := payload.Text.Content
	for _, want := range []string{"run-1", "10 ok, 2 failed", "1002"} {
		if !strings.Contains(content, want) {
			t.Fatalf("content %q missing %q", content, want)
		}
	}
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	if err := notifier.Notify(context.Background(), RunMessage{RunID: "run-1"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookNotifierEmptyURL(t *testing.T) {
	notifier := NewWebhookNotifier("")
	if err := notifier.Notify(context.Background(), RunMessage{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
