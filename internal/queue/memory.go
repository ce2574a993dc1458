package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Memory is an in-process queue for development and tests. Leased jobs
// are tracked so Fail(requeue) can redeliver them; nothing survives a
// restart.
type Memory struct {
	mu     sync.Mutex
	jobs   chan *Job
	leased map[string]*Job
	closed bool
}

// NewMemory creates an in-memory queue holding up to size pending jobs.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 128
	}
	return &Memory{
		jobs:   make(chan *Job, size),
		leased: make(map[string]*Job),
	}
}

func (q *Memory) Enqueue(ctx context.Context, campaignID, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	job := &Job{
		Ref:        uuid.NewString(),
		CampaignID: campaignID,
		Kind:       kind,
		EnqueuedAt: time.Now(),
	}

	// The mutex guards against a send on the closed channel; Close holds
	// it while closing.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", eris.New("queue: enqueue on closed queue")
	}

	select {
	case q.jobs <- job:
		return job.Ref, nil
	default:
		return "", eris.New("queue: memory queue full")
	}
}

func (q *Memory) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, eris.New("queue: closed")
		}
		job.Attempts++

		q.mu.Lock()
		q.leased[job.Ref] = job
		q.mu.Unlock()

		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Memory) Ack(_ context.Context, ref string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leased, ref)
	return nil
}

func (q *Memory) Fail(_ context.Context, ref string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.leased[ref]
	delete(q.leased, ref)
	if !ok || !requeue {
		return nil
	}
	if q.closed {
		return eris.New("queue: requeue on closed queue, job dropped")
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return eris.New("queue: memory queue full, job dropped")
	}
}

// RequeueStale is a no-op: in-process leases die with the process.
func (q *Memory) RequeueStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
