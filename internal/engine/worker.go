package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/events"
	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/queue"
	"github.com/sells-group/campaign-engine/internal/store"
)

// Pool runs campaign jobs from the queue on a bounded set of workers.
// The pool size caps concurrent campaign executions across all tenants,
// protecting the shared provider rate limits.
type Pool struct {
	store     store.Store
	queue     queue.Queue
	pipeline  *Pipeline
	events    events.Publisher
	size      int
	wallClock time.Duration
	hostID    string
}

// NewPool creates a worker pool of the given size. wallClock is the hard
// per-campaign execution ceiling.
func NewPool(s store.Store, q queue.Queue, pipeline *Pipeline, pub events.Publisher, size int, wallClock time.Duration) *Pool {
	if pub == nil {
		pub = events.Nop{}
	}
	if size <= 0 {
		size = 1
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()[:8]
	}
	return &Pool{
		store:     s,
		queue:     q,
		pipeline:  pipeline,
		events:    pub,
		size:      size,
		wallClock: wallClock,
		hostID:    host,
	}
}

// Run blocks dequeuing and executing jobs until ctx is cancelled. In-flight
// campaigns finish their current run before Run returns.
func (p *Pool) Run(ctx context.Context) {
	zap.L().Info("worker pool starting",
		zap.Int("size", p.size),
		zap.Duration("wall_clock", p.wallClock),
	)

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.work(ctx, fmt.Sprintf("%s-%d", p.hostID, n))
		}(i)
	}
	wg.Wait()

	zap.L().Info("worker pool stopped")
}

func (p *Pool) work(ctx context.Context, owner string) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Error("dequeue failed", zap.String("worker", owner), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		p.execute(ctx, owner, job)
	}
}

// execute runs one job end to end. The claim record blocks concurrent
// execution of the same campaign; the queued->running transition rejects
// stale and duplicate deliveries, which are acked as no-ops.
func (p *Pool) execute(ctx context.Context, owner string, job *queue.Job) {
	log := zap.L().With(
		zap.String("worker", owner),
		zap.String("campaign_id", job.CampaignID),
		zap.String("job_ref", job.Ref),
		zap.Int("attempts", job.Attempts),
	)

	claimed, err := p.store.AcquireClaim(ctx, job.CampaignID, owner)
	if err != nil {
		log.Error("claim acquisition failed", zap.Error(err))
		_ = p.queue.Fail(ctx, job.Ref, true)
		return
	}
	if !claimed {
		// Another worker holds the campaign; this delivery is a duplicate.
		log.Warn("campaign already claimed, acking duplicate delivery")
		_ = p.queue.Ack(ctx, job.Ref)
		return
	}
	defer func() {
		if err := p.store.ReleaseClaim(ctx, job.CampaignID, owner); err != nil {
			log.Error("claim release failed", zap.Error(err))
		}
	}()

	c, err := p.store.TransitionCampaign(ctx, job.CampaignID,
		[]model.CampaignStatus{model.StatusQueued}, model.StatusRunning, "claimed by "+owner)
	switch {
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
		// Already executed, cancelled while queued, or gone. Nothing to run.
		log.Info("job is stale, acking", zap.Error(err))
		_ = p.queue.Ack(ctx, job.Ref)
		return
	case err != nil:
		log.Error("transition to running failed", zap.Error(err))
		_ = p.queue.Fail(ctx, job.Ref, true)
		return
	}

	log.Info("campaign execution started")
	p.events.Publish(ctx, lifecycleEvent(c, model.EventStarted, nil))

	runCtx, cancel := context.WithTimeout(ctx, p.wallClock)
	runErr := p.pipeline.Run(runCtx, c)
	cancel()

	p.finish(ctx, log, c, runErr)
	if err := p.queue.Ack(ctx, job.Ref); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// finish records the terminal state for a completed run and emits the
// final event. Transitions run on the parent context so a wall-clock
// expiry does not block the bookkeeping.
func (p *Pool) finish(ctx context.Context, log *zap.Logger, c *model.Campaign, runErr error) {
	switch {
	case runErr == nil:
		done, err := p.store.TransitionCampaign(ctx, c.ID,
			[]model.CampaignStatus{model.StatusRunning}, model.StatusCompleted, "pipeline completed")
		if err != nil {
			log.Error("transition to completed failed", zap.Error(err))
			return
		}
		log.Info("campaign completed",
			zap.Int("targets_found", done.Counters.TargetsFound),
			zap.Int("leads_created", done.Counters.LeadsCreated),
			zap.Int("duplicates_skipped", done.Counters.DuplicatesSkipped),
			zap.Int("errors", done.Counters.ErrorsCount),
			zap.Strings("warnings", done.Warnings),
		)
		p.events.Publish(ctx, lifecycleEvent(done, model.EventCompleted, map[string]any{
			"targets_found":      done.Counters.TargetsFound,
			"leads_created":      done.Counters.LeadsCreated,
			"duplicates_skipped": done.Counters.DuplicatesSkipped,
			"errors_count":       done.Counters.ErrorsCount,
			"warnings":           done.Warnings,
		}))

	case errors.Is(runErr, errCancelled):
		// The cancel request already transitioned the campaign and emitted
		// its event; the run just stopped cooperating.
		log.Info("campaign run stopped after cancellation")

	default:
		reason := runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) {
			reason = fmt.Sprintf("execution exceeded wall clock limit of %s", p.wallClock)
		}
		log.Error("campaign failed", zap.String("reason", reason))

		if err := p.store.SetFailureReason(ctx, c.ID, reason); err != nil {
			log.Error("recording failure reason failed", zap.Error(err))
		}
		done, err := p.store.TransitionCampaign(ctx, c.ID,
			[]model.CampaignStatus{model.StatusRunning}, model.StatusFailed, "run failed")
		if err != nil {
			log.Error("transition to failed failed", zap.Error(err))
			return
		}
		p.events.Publish(ctx, lifecycleEvent(done, model.EventFailed, map[string]any{
			"reason": reason,
		}))
	}
}
