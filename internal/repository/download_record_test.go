package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikuhub/qbank/internal/dbtest"
	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
)

func newRecord(userID string, createdAt time.Time) *model.DownloadRecord {
	return &model.DownloadRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		QuestionIDs: model.IDList{11, 12},
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(7 * 24 * time.Hour),
		UpdatedAt:   createdAt,
	}
}

func TestDownloadRecordCreateAndFetch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDownloadRecordRepository(dbtest.New(t))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := newRecord("u1", now)
	rec.IsVIP = true
	require.NoError(t, repo.Create(ctx, rec, nil))

	got, err := repo.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, model.IDList{11, 12}, got.QuestionIDs)
	assert.True(t, got.IsVIP)
	assert.False(t, got.QuestionPDFPath.Valid)
	assert.False(t, got.AnswerPDFPath.Valid)
	assert.True(t, got.ExpiresAt.Equal(now.Add(7*24*time.Hour)))

	_, err = repo.ByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrDownloadRecordNotFound)
}

func TestDownloadRecordCreateRollsBackOnHookError(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDownloadRecordRepository(dbtest.New(t))

	rec := newRecord("u1", time.Now().UTC())
	boom := errors.New("mkdir failed")
	err := repo.Create(ctx, rec, func(*sqlx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = repo.ByID(ctx, rec.ID)
	assert.ErrorIs(t, err, repository.ErrDownloadRecordNotFound)
}

func TestDownloadRecordCreateRollsBackJobWrittenInHook(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	records := repository.NewDownloadRecordRepository(database)
	jobs := repository.NewGenerationJobRepository(database)

	now := time.Now().UTC()
	rec := newRecord("u1", now)
	job := newJob("u1", now)
	job.DownloadRecordID = sql.Null[string]{V: rec.ID, Valid: true}

	boom := errors.New("order link failed")
	err := records.Create(ctx, rec, func(tx *sqlx.Tx) error {
		require.NoError(t, jobs.CreateTx(ctx, tx, job))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = records.ByID(ctx, rec.ID)
	assert.ErrorIs(t, err, repository.ErrDownloadRecordNotFound)
	_, err = jobs.ByID(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestDownloadRecordFillPathsNeverClears(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDownloadRecordRepository(dbtest.New(t))
	now := time.Now().UTC()

	rec := newRecord("u1", now)
	require.NoError(t, repo.Create(ctx, rec, nil))

	q := sql.Null[string]{V: rec.ID + "/question.pdf", Valid: true}
	a := sql.Null[string]{V: rec.ID + "/answer.pdf", Valid: true}
	require.NoError(t, repo.FillPaths(ctx, rec.ID, q, a, now))

	require.NoError(t, repo.FillPaths(ctx, rec.ID, sql.Null[string]{}, sql.Null[string]{}, now))

	got, err := repo.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, q, got.QuestionPDFPath)
	assert.Equal(t, a, got.AnswerPDFPath)

	err = repo.FillPaths(ctx, "missing", q, a, now)
	assert.ErrorIs(t, err, repository.ErrDownloadRecordNotFound)
}

func TestDownloadRecordByUserIDNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDownloadRecordRepository(dbtest.New(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	older := newRecord("u1", base)
	newer := newRecord("u1", base.Add(time.Hour))
	other := newRecord("u2", base.Add(2*time.Hour))
	for _, r := range []*model.DownloadRecord{older, newer, other} {
		require.NoError(t, repo.Create(ctx, r, nil))
	}

	records, err := repo.ByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)
}

func TestDownloadRecordExpiredAndPurge(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	repo := repository.NewDownloadRecordRepository(database)
	jobs := repository.NewGenerationJobRepository(database)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	stale := newRecord("u1", base)
	fresh := newRecord("u1", base.Add(6*24*time.Hour))
	require.NoError(t, repo.Create(ctx, stale, nil))
	require.NoError(t, repo.Create(ctx, fresh, nil))

	job := newJob("u1", base)
	job.DownloadRecordID = sql.Null[string]{V: stale.ID, Valid: true}
	require.NoError(t, jobs.Create(ctx, job))

	database.MustExec(`INSERT INTO orders (id, user_id, order_no, type, amount, status, download_record_id, created_at, updated_at)
		VALUES ('o1', 'u1', 'NO-1', 'download', 100, 'paid', $1, $2, $2)`, stale.ID, base)

	expired, err := repo.Expired(ctx, base.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	require.NoError(t, repo.Purge(ctx, []string{stale.ID}))

	_, err = repo.ByID(ctx, stale.ID)
	assert.ErrorIs(t, err, repository.ErrDownloadRecordNotFound)
	_, err = repo.ByID(ctx, fresh.ID)
	assert.NoError(t, err)

	gotJob, err := jobs.ByID(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, gotJob.DownloadRecordID.Valid)

	var orderRef sql.Null[string]
	require.NoError(t, database.Get(&orderRef, `SELECT download_record_id FROM orders WHERE id = 'o1'`))
	assert.False(t, orderRef.Valid)
}
