// Package events is the push channel: campaign lifecycle and progress
// events flow from the engine to live subscribers (SSE connections) and,
// in headless deployments, to a webhook.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/model"
)

// Publisher delivers campaign events. Publishing never blocks campaign
// execution: slow consumers lose events rather than stalling the run.
type Publisher interface {
	Publish(ctx context.Context, event model.CampaignEvent)
}

// Subscription is one subscriber's event feed.
type Subscription struct {
	C      <-chan model.CampaignEvent
	cancel func()
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.cancel()
}

// Hub fans events out to in-process subscribers, filtered by tenant. Each
// subscriber gets its own buffered channel; when a buffer is full the
// event is dropped for that subscriber and logged.
type Hub struct {
	mu         sync.RWMutex
	nextID     int
	subs       map[int]*subscriber
	bufferSize int
}

type subscriber struct {
	tenantID string
	ch       chan model.CampaignEvent
}

// NewHub creates a hub with the given per-subscriber buffer depth.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subs:       make(map[int]*subscriber),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a feed of events for one tenant. An empty tenantID
// subscribes to every tenant.
func (h *Hub) Subscribe(tenantID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &subscriber{
		tenantID: tenantID,
		ch:       make(chan model.CampaignEvent, h.bufferSize),
	}
	h.subs[id] = sub

	return &Subscription{
		C: sub.ch,
		cancel: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		},
	}
}

// Publish delivers the event to every matching subscriber without
// blocking.
func (h *Hub) Publish(_ context.Context, event model.CampaignEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.tenantID != "" && sub.tenantID != event.TenantID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			zap.L().Warn("event dropped for slow subscriber",
				zap.String("campaign_id", event.CampaignID),
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Multi fans one Publish out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event model.CampaignEvent) {
	for _, p := range m {
		p.Publish(ctx, event)
	}
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, model.CampaignEvent) {}
