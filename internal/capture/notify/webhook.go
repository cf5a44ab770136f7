package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RunMessage summarizes a finished capture run for notification.
type RunMessage struct {
	RunID         string
	TotalSuccess  int
	TotalFailed   int
	Cancelled     bool
	MetersHandled int
	FailedMeters  []string
}

// Notifier delivers run completion notifications.
type Notifier interface {
	Notify(ctx context.Context, msg RunMessage) error
}

// WebhookNotifier sends run summaries via webhook.
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

// Notify sends a run summary to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg RunMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatRunMessage(msg)},
	}
	body, err := json.Marshal(payload)
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

func formatRunMessage(msg RunMessage) string {
	var b strings.Builder
	b.WriteString("[Chart Capture]\n")
	if msg.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", msg.RunID)
	}
	fmt.Fprintf(&b, "Meters: %d\n", msg.MetersHandled)
	fmt.Fprintf(&b, "Charts: %d ok, %d failed\n", msg.TotalSuccess, msg.TotalFailed)
	if msg.Cancelled {
		b.WriteString("Cancelled before completion\n")
	}
	if len(msg.FailedMeters) > 0 {
		fmt.Fprintf(&b, "Failed meters: %s\n", strings.Join(msg.FailedMeters, ", "))
	}
	return b.String()
}
