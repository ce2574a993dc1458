// Package engine executes campaigns: the lifecycle surface that queues and
// cancels them, the worker pool that claims jobs, and the enrichment
// pipeline that fans out to providers, deduplicates, and promotes leads.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/queue"
	"github.com/sells-group/campaign-engine/internal/store"
)

// Lifecycle handles user-initiated campaign state changes. Starting and
// cancelling go through the store's conditional transition, so concurrent
// requests race safely: exactly one wins, the rest get
// store.ErrInvalidTransition.
type Lifecycle struct {
	store  store.Store
	queue  queue.Queue
	events events.Publisher
}

// NewLifecycle creates the lifecycle surface.
func NewLifecycle(s store.Store, q queue.Queue, pub events.Publisher) *Lifecycle {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Lifecycle{store: s, queue: q, events: pub}
}

// Start queues a campaign for execution. Legal from draft or any terminal
// state; a restart from a terminal state gets a clean slate of counters,
// warnings, and failure reason. A campaign already queued or running is
// rejected with store.ErrInvalidTransition.
func (l *Lifecycle) Start(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := l.store.TransitionCampaign(ctx, id, model.StartableFrom(), model.StatusQueued, "start requested")
	if err != nil {
		return nil, err
	}

	// A fresh run always begins with zeroed run state; from draft this is
	// a no-op, from a terminal state it is the restart reset.
	if err := l.store.ResetRunState(ctx, id); err != nil {
		return nil, eris.Wrap(err, "engine: reset run state")
	}
	c.Counters = model.Counters{}
	c.Warnings = nil
	c.FailureReason = ""

	ref, err := l.queue.Enqueue(ctx, id, queue.JobKindExecute)
	if err != nil {
		// The campaign is queued in the store but has no job; fail it so
		// the user sees the problem instead of a run that never starts.
		reason := "enqueue failed: " + err.Error()
		_ = l.store.SetFailureReason(ctx, id, reason)
		if _, terr := l.store.TransitionCampaign(ctx, id,
			[]model.CampaignStatus{model.StatusQueued}, model.StatusFailed, reason); terr != nil {
			zap.L().Error("failed to mark campaign failed after enqueue error",
				zap.String("campaign_id", id), zap.Error(terr))
		}
		return nil, eris.Wrap(err, "engine: enqueue campaign")
	}

	if err := l.store.SetJobRef(ctx, id, ref); err != nil {
		return nil, eris.Wrap(err, "engine: set job ref")
	}
	c.JobRef = ref

	zap.L().Info("campaign queued",
		zap.String("campaign_id", id),
		zap.String("job_ref", ref),
	)
	l.events.Publish(ctx, lifecycleEvent(c, model.EventQueued, nil))
	return c, nil
}

// Cancel requests cooperative cancellation. Legal from queued or running;
// a running pipeline observes the persisted status at its next checkpoint
// and stops. Work already persisted stays.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := l.store.TransitionCampaign(ctx, id, model.CancellableFrom(), model.StatusCancelled, "cancel requested")
	if err != nil {
		return nil, err
	}

	zap.L().Info("campaign cancelled", zap.String("campaign_id", id))
	l.events.Publish(ctx, lifecycleEvent(c, model.EventCancelled, nil))
	return c, nil
}

// lifecycleEvent builds an event for a campaign with an optional payload.
func lifecycleEvent(c *model.Campaign, typ model.EventType, payload map[string]any) model.CampaignEvent {
	return model.CampaignEvent{
		CampaignID: c.ID,
		TenantID:   c.TenantID,
		Type:       typ,
		Payload:    payload,
		At:         time.Now().UTC(),
	}
}
