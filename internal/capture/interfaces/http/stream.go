package http

import (
	"encoding/json"
	"net/http"
	"sync"

	capture "meterscope/internal/capture/domain"
)

// SSEBroker fans capture run events out to connected clients and doubles
// as a capture observer.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

type streamEvent struct {
	Type         string                `json:"type"`
	Current      int                   `json:"current,omitempty"`
	Total        int                   `json:"total,omitempty"`
	MeterNumber  string                `json:"meter_number,omitempty"`
	MetricTitle  string                `json:"metric_title,omitempty"`
	BatchLabel   string                `json:"batch_label,omitempty"`
	Paused       *bool                 `json:"paused,omitempty"`
	Cancelled    *bool                 `json:"cancelled,omitempty"`
	TotalSuccess int                   `json:"total_success,omitempty"`
	TotalFailed  int                   `json:"total_failed,omitempty"`
	Log          []capture.LogEntry    `json:"log,omitempty"`
	MeterResult  *capture.MeterResult  `json:"meter_result,omitempty"`
	Results      []capture.MeterResult `json:"results,omitempty"`
}

// OnProgress implements the capture observer.
func (b *SSEBroker) OnProgress(current, total int, meterNumber, metricTitle, batchLabel string) {
	b.publish(streamEvent{
		Type:        "progress",
		Current:     current,
		Total:       total,
		MeterNumber: meterNumber,
		MetricTitle: metricTitle,
		BatchLabel:  batchLabel,
	})
}

// OnLogUpdate implements the capture observer.
func (b *SSEBroker) OnLogUpdate(entries []capture.LogEntry) {
	b.publish(streamEvent{Type: "log", Log: entries})
}

// OnMeterComplete implements the capture observer.
func (b *SSEBroker) OnMeterComplete(result capture.MeterResult) {
	b.publish(streamEvent{Type: "meter_complete", MeterResult: &result})
}

// OnComplete implements the capture observer.
func (b *SSEBroker) OnComplete(totalSuccess, totalFailed int, cancelled bool, entries []capture.LogEntry, results []capture.MeterResult) {
	b.publish(streamEvent{
		Type:         "complete",
		TotalSuccess: totalSuccess,
		TotalFailed:  totalFailed,
		Cancelled:    &cancelled,
		Log:          entries,
		Results:      results,
	})
}

// OnPauseStateChange implements the capture observer.
func (b *SSEBroker) OnPauseStateChange(paused bool) {
	b.publish(streamEvent{Type: "pause", Paused: &paused})
}

func (b *SSEBroker) publish(event streamEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	clients := make([]chan []byte, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// StreamHandler serves the SSE capture event stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/capture/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
