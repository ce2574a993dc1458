// Package queue is the campaign execution job queue. Delivery is
// at-least-once: a dequeued job that is never acked comes back, so
// consumers must tolerate duplicate delivery.
package queue

import (
	"context"
	"time"
)

// JobKindExecute runs a campaign's enrichment pipeline.
const JobKindExecute = "execute_campaign"

// Job is one unit of campaign work.
type Job struct {
	// Ref is the opaque handle stored on the campaign as JobRef.
	Ref        string
	CampaignID string
	Kind       string
	Attempts   int
	EnqueuedAt time.Time
}

// Queue hands campaign jobs to the worker pool.
type Queue interface {
	// Enqueue adds a job and returns its ref.
	Enqueue(ctx context.Context, campaignID, kind string) (string, error)

	// Dequeue blocks until a job is available or ctx is done. The job is
	// leased, not removed; it must be Acked or Failed.
	Dequeue(ctx context.Context) (*Job, error)

	// Ack removes a completed job.
	Ack(ctx context.Context, ref string) error

	// Fail releases a leased job, requeueing it for redelivery when
	// requeue is true and dropping it otherwise.
	Fail(ctx context.Context, ref string, requeue bool) error

	// RequeueStale returns leased jobs older than olderThan to pending,
	// recovering work lost to a crashed worker.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}
