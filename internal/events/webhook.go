package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/model"
)

// WebhookForwarder POSTs each event as JSON to a configured endpoint.
// Headless worker deployments use it to reach tenants with no live
// subscribers. Delivery runs on its own goroutine behind a buffered
// queue, so a slow endpoint never stalls the publishing run; a full
// queue drops the event with a warning, like the hub. A failed POST is
// logged, never retried, and never fails the campaign.
type WebhookForwarder struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	closed bool
	queue  chan model.CampaignEvent
	done   chan struct{}
}

// NewWebhookForwarder creates a forwarder for the given endpoint holding
// up to buffer undelivered events.
func NewWebhookForwarder(url string, buffer int) *WebhookForwarder {
	if buffer <= 0 {
		buffer = 64
	}
	f := &WebhookForwarder{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan model.CampaignEvent, buffer),
		done:   make(chan struct{}),
	}
	go f.forward()
	return f
}

// Publish hands the event to the delivery goroutine. It never blocks.
func (f *WebhookForwarder) Publish(_ context.Context, event model.CampaignEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	select {
	case f.queue <- event:
	default:
		zap.L().Warn("webhook queue full, event dropped",
			zap.String("campaign_id", event.CampaignID),
			zap.String("event_type", string(event.Type)),
		)
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
func (f *WebhookForwarder) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()
	<-f.done
}

func (f *WebhookForwarder) forward() {
	defer close(f.done)
	for event := range f.queue {
		if err := f.send(event); err != nil {
			zap.L().Warn("webhook delivery failed",
				zap.String("campaign_id", event.CampaignID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}

// send delivers one event. The client timeout bounds it; the publishing
// run's context deliberately does not, since the run may already be done.
func (f *WebhookForwarder) send(event model.CampaignEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "events: marshal event")
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "events: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "events: post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return eris.Errorf("events: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
