package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/campaign-engine/internal/model"
)

func testEvent(tenantID string, typ model.EventType) model.CampaignEvent {
	return model.CampaignEvent{
		CampaignID: "camp-1",
		TenantID:   tenantID,
		Type:       typ,
		At:         time.Now().UTC(),
	}
}

func TestHubDeliversToTenantSubscriber(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("tenant-1")
	defer sub.Close()

	hub.Publish(context.Background(), testEvent("tenant-1", model.EventStarted))

	select {
	case got := <-sub.C:
		assert.Equal(t, model.EventStarted, got.Type)
		assert.Equal(t, "camp-1", got.CampaignID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubFiltersByTenant(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("tenant-2")
	defer sub.Close()

	hub.Publish(context.Background(), testEvent("tenant-1", model.EventStarted))

	select {
	case got := <-sub.C:
		t.Fatalf("unexpected event for other tenant: %+v", got)
	default:
	}
}

func TestHubWildcardSubscriber(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("")
	defer sub.Close()

	hub.Publish(context.Background(), testEvent("tenant-1", model.EventQueued))
	hub.Publish(context.Background(), testEvent("tenant-2", model.EventQueued))

	assert.Len(t, sub.C, 2)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe("tenant-1")
	defer sub.Close()

	// Second publish overflows the buffer and must not block.
	done := make(chan struct{})
	go func() {
		hub.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
		hub.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber buffer")
	}
	assert.Len(t, sub.C, 1)
}

func TestHubCloseDetachesSubscriber(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe("tenant-1")
	require.Equal(t, 1, hub.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount())

	// Closing twice is safe.
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)
}

func TestMultiFansOut(t *testing.T) {
	hub1 := NewHub(4)
	hub2 := NewHub(4)
	sub1 := hub1.Subscribe("tenant-1")
	sub2 := hub2.Subscribe("tenant-1")
	defer sub1.Close()
	defer sub2.Close()

	Multi{hub1, hub2}.Publish(context.Background(), testEvent("tenant-1", model.EventCompleted))

	assert.Len(t, sub1.C, 1)
	assert.Len(t, sub2.C, 1)
}

type webhookRequest struct {
	contentType string
	body        []byte
}

func TestWebhookForwarderPostsEvent(t *testing.T) {
	requests := make(chan webhookRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- webhookRequest{contentType: r.Header.Get("Content-Type"), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := NewWebhookForwarder(server.URL, 4)
	f.Publish(context.Background(), testEvent("tenant-1", model.EventFailed))
	f.Close()

	req := <-requests
	assert.Equal(t, "application/json", req.contentType)

	var got model.CampaignEvent
	require.NoError(t, json.Unmarshal(req.body, &got))
	assert.Equal(t, model.EventFailed, got.Type)
	assert.Equal(t, "tenant-1", got.TenantID)
}

func TestWebhookForwarderDoesNotBlockOnSlowEndpoint(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	f := NewWebhookForwarder(server.URL, 4)

	start := time.Now()
	f.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
	f.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond,
		"publish must hand off to the delivery goroutine, not wait for the endpoint")
}

func TestWebhookForwarderDropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		delivered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := NewWebhookForwarder(server.URL, 1)

	// First event occupies the delivery goroutine; wait so the queue state
	// is deterministic.
	f.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
	<-delivered

	// Second fills the buffer, third must be dropped without blocking.
	done := make(chan struct{})
	go func() {
		f.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
		f.Publish(context.Background(), testEvent("tenant-1", model.EventProgress))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full webhook queue")
	}

	close(release)
	f.Close()
	assert.Len(t, delivered, 1, "only the buffered event is delivered after the drop")
}

func TestWebhookForwarderToleratesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewWebhookForwarder(server.URL, 4)
	// Must not panic or block; delivery failures are logged only.
	f.Publish(context.Background(), testEvent("tenant-1", model.EventCompleted))
	f.Close()
}

func TestWebhookForwarderPublishAfterCloseIsNoop(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := NewWebhookForwarder(server.URL, 4)
	f.Close()
	f.Publish(context.Background(), testEvent("tenant-1", model.EventCompleted))
	assert.Equal(t, 0, hits)
}
