package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-engine/internal/db"
)

// Postgres is the durable queue backend. Jobs live in campaign_jobs and
// are claimed with FOR UPDATE SKIP LOCKED so multiple worker processes
// can poll the same table without double-claiming.
type Postgres struct {
	pool         db.Pool
	pollInterval time.Duration
}

// NewPostgres creates a postgres-backed queue polling at the given
// interval.
func NewPostgres(pool db.Pool, pollInterval time.Duration) *Postgres {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Postgres{pool: pool, pollInterval: pollInterval}
}

func (q *Postgres) Enqueue(ctx context.Context, campaignID, kind string) (string, error) {
	ref := uuid.NewString()
	_, err := q.pool.Exec(ctx, `
		INSERT INTO campaign_jobs (ref, campaign_id, kind, status, attempts, enqueued_at)
		VALUES ($1, $2, $3, 'pending', 0, now())`,
		ref, campaignID, kind,
	)
	if err != nil {
		return "", eris.Wrap(err, "queue: enqueue")
	}
	return ref, nil
}

func (q *Postgres) Dequeue(ctx context.Context) (*Job, error) {
	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		timer := time.NewTimer(q.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// claim leases the oldest pending job, or returns nil when the queue is
// empty.
func (q *Postgres) claim(ctx context.Context) (*Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: begin claim tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var job Job
	err = tx.QueryRow(ctx, `
		SELECT ref, campaign_id, kind, attempts, enqueued_at
		FROM campaign_jobs
		WHERE status = 'pending'
		ORDER BY enqueued_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	).Scan(&job.Ref, &job.CampaignID, &job.Kind, &job.Attempts, &job.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: claim job")
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaign_jobs
		SET status = 'leased', attempts = attempts + 1, leased_at = now()
		WHERE ref = $1`,
		job.Ref,
	)
	if err != nil {
		return nil, eris.Wrap(err, "queue: lease job")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "queue: commit claim")
	}

	job.Attempts++
	return &job, nil
}

func (q *Postgres) Ack(ctx context.Context, ref string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM campaign_jobs WHERE ref = $1`, ref)
	return eris.Wrap(err, "queue: ack")
}

func (q *Postgres) Fail(ctx context.Context, ref string, requeue bool) error {
	if !requeue {
		_, err := q.pool.Exec(ctx, `DELETE FROM campaign_jobs WHERE ref = $1`, ref)
		return eris.Wrap(err, "queue: drop failed job")
	}

	_, err := q.pool.Exec(ctx, `
		UPDATE campaign_jobs
		SET status = 'pending', leased_at = NULL
		WHERE ref = $1`,
		ref,
	)
	return eris.Wrap(err, "queue: requeue failed job")
}

func (q *Postgres) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE campaign_jobs
		SET status = 'pending', leased_at = NULL
		WHERE status = 'leased' AND leased_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "queue: requeue stale")
	}
	if n := tag.RowsAffected(); n > 0 {
		zap.L().Warn("requeued stale campaign jobs", zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}

func (q *Postgres) Close() error {
	return nil
}
