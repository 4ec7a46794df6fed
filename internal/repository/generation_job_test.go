package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikuhub/qbank/internal/dbtest"
	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
)

func newJob(userID string, createdAt time.Time) *model.GenerationJob {
	return &model.GenerationJob{
		ID:               uuid.New().String(),
		UserID:           userID,
		QuestionIDs:      model.IDList{11, 12},
		GradeID:          1,
		SubjectID:        2,
		KnowledgePointID: 3,
		Status:           model.JobStatusPending,
		MaxAttempts:      model.DefaultMaxAttempts,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

func TestClaimNextOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	second := newJob("u1", base.Add(time.Minute))
	first := newJob("u1", base)
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, first))

	claimed, err := repo.ClaimNext(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, model.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.True(t, claimed.StartedAt.Valid)

	claimed, err = repo.ClaimNext(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	_, err = repo.ClaimNext(ctx, base.Add(time.Hour))
	assert.ErrorIs(t, err, repository.ErrNoJob)
}

func TestRetryBoundStopsClaims(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newJob("u1", now)))

	claimed, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	ok, err := repo.Fail(ctx, claimed, model.JobStatusFailed, "decode error", now)
	require.NoError(t, err)
	require.True(t, ok)

	claimed, err = repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed.Attempts)
	ok, err = repo.Fail(ctx, claimed, model.JobStatusPermanentFailed, "decode error", now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.ClaimNext(ctx, now)
	assert.ErrorIs(t, err, repository.ErrNoJob)

	got, err := repo.ByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPermanentFailed, got.Status)
	assert.Equal(t, "decode error", got.ErrorMessage.V)
}

func TestCompleteFillsLinkedRecord(t *testing.T) {
	ctx := context.Background()
	database := dbtest.New(t)
	jobs := repository.NewGenerationJobRepository(database)
	records := repository.NewDownloadRecordRepository(database)
	now := time.Now().UTC()

	rec := newRecord("u1", now)
	require.NoError(t, records.Create(ctx, rec, nil))

	job := newJob("u1", now)
	job.DownloadRecordID = sql.Null[string]{V: rec.ID, Valid: true}
	require.NoError(t, jobs.Create(ctx, job))

	claimed, err := jobs.ClaimNext(ctx, now)
	require.NoError(t, err)

	out := model.JobOutput{
		QuestionPDFPath: sql.Null[string]{V: rec.ID + "/question.pdf", Valid: true},
	}
	ok, err := jobs.Complete(ctx, claimed, out, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := records.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, out.QuestionPDFPath, got.QuestionPDFPath)
	assert.False(t, got.AnswerPDFPath.Valid)

	gotJob, err := jobs.ByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, gotJob.Status)
	assert.Equal(t, out.QuestionPDFPath, gotJob.OutputQuestionPDFPath)
	assert.True(t, gotJob.FinishedAt.Valid)
}

func TestFinalStatesAreNotMutated(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newJob("u1", now)))
	claimed, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)

	ok, err := repo.Complete(ctx, claimed, model.JobOutput{}, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Fail(ctx, claimed, model.JobStatusFailed, "late failure", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkTimedOut(ctx, claimed, "late watchdog", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Requeue(ctx, claimed, "late shutdown", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Complete(ctx, claimed, model.JobOutput{}, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.ByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.False(t, got.ErrorMessage.Valid)
}

func TestRequeueRefundsAttempt(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newJob("u1", now)))
	claimed, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Attempts)

	ok, err := repo.Requeue(ctx, claimed, "interrupted: context canceled", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.ByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)

	// Only the running attempt can be handed back.
	ok, err = repo.Requeue(ctx, claimed, "again", now)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
}

func TestMarkTimedOut(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newJob("u1", now)))

	claimed, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	ok, err := repo.MarkTimedOut(ctx, claimed, "watchdog", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.ByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusTimeout, got.Status)

	claimed, err = repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	ok, err = repo.MarkTimedOut(ctx, claimed, "watchdog", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = repo.ByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPermanentFailed, got.Status)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobStatusPermanentFailed])
}

func TestStaleAttemptCannotOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newJob("u1", now)))

	first, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	ok, err := repo.MarkTimedOut(ctx, first, "watchdog", now)
	require.NoError(t, err)
	require.True(t, ok)

	second, err := repo.ClaimNext(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 2, second.Attempts)

	// The first attempt finishing late must not touch the second one.
	ok, err = repo.Fail(ctx, first, model.JobStatusFailed, "late", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.ByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
}

func TestUnlinkedOutputs(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGenerationJobRepository(dbtest.New(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newJob("u1", base)))
	claimed, err := repo.ClaimNext(ctx, base)
	require.NoError(t, err)

	out := model.JobOutput{
		QuestionPDFPath: sql.Null[string]{V: "_unlinked/1234_g7_math_3_20260301_090000.pdf", Valid: true},
	}
	ok, err := repo.Complete(ctx, claimed, out, base)
	require.NoError(t, err)
	require.True(t, ok)

	jobs, err := repo.UnlinkedOutputs(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = repo.UnlinkedOutputs(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, repo.ClearOutputs(ctx, claimed.ID, base))
	jobs, err = repo.UnlinkedOutputs(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
