package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresEnqueue(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO campaign_jobs`).
		WithArgs(pgxmock.AnyArg(), "camp-1", JobKindExecute).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	q := NewPostgres(mock, time.Second)
	ref, err := q.Enqueue(context.Background(), "camp-1", JobKindExecute)

	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaim(t *testing.T) {
	mock := newMockPool(t)
	enqueuedAt := time.Now().Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ref, campaign_id, kind, attempts, enqueued_at`).
		WillReturnRows(pgxmock.NewRows(
			[]string{"ref", "campaign_id", "kind", "attempts", "enqueued_at"},
		).AddRow("job-ref-1", "camp-1", JobKindExecute, 0, enqueuedAt))
	mock.ExpectExec(`UPDATE campaign_jobs`).
		WithArgs("job-ref-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	q := NewPostgres(mock, time.Second)
	job, err := q.claim(context.Background())

	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-ref-1", job.Ref)
	assert.Equal(t, "camp-1", job.CampaignID)
	assert.Equal(t, 1, job.Attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaim_EmptyQueue(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ref, campaign_id`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	q := NewPostgres(mock, time.Second)
	job, err := q.claim(context.Background())

	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPostgresAck(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM campaign_jobs`).
		WithArgs("job-ref-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	q := NewPostgres(mock, time.Second)
	require.NoError(t, q.Ack(context.Background(), "job-ref-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFail_Requeue(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`UPDATE campaign_jobs`).
		WithArgs("job-ref-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := NewPostgres(mock, time.Second)
	require.NoError(t, q.Fail(context.Background(), "job-ref-1", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFail_Drop(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM campaign_jobs`).
		WithArgs("job-ref-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	q := NewPostgres(mock, time.Second)
	require.NoError(t, q.Fail(context.Background(), "job-ref-1", false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRequeueStale(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`UPDATE campaign_jobs`).
		WithArgs(float64(1800)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	q := NewPostgres(mock, time.Second)
	n, err := q.RequeueStale(context.Background(), 30*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPostgresDequeue_ContextCancelled(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT ref, campaign_id`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewPostgres(mock, 10*time.Millisecond)
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
