package worker_test

import (
	"context"
	"database/sql"
	"image/color"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikuhub/qbank/internal/compose"
	"github.com/tikuhub/qbank/internal/dbtest"
	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/pdf"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/service"
	"github.com/tikuhub/qbank/internal/storage"
	"github.com/tikuhub/qbank/internal/worker"
)

type pipelineEnv struct {
	jobs     repository.GenerationJobRepository
	records  repository.DownloadRecordRepository
	files    *storage.Local
	pipeline *worker.PacketPipeline
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	database := dbtest.New(t)

	uploads := t.TempDir()
	for _, name := range []string{"q11.png", "q12.png", "a11.png"} {
		img := imaging.New(300, 120, color.NRGBA{R: 40, G: 90, B: 160, A: 255})
		require.NoError(t, imaging.Save(img, filepath.Join(uploads, name)))
	}
	dbtest.Seed(t, database, "u1", "13800001234", map[int64][2]string{
		11: {"/uploads/q11.png", "/uploads/a11.png"},
		12: {"uploads/q12.png", ""},
		13: {"", ""},
	})

	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	layout := compose.Layout{PageWidth: 310, PageHeight: 440, Gap: 4, Numbering: true}
	naming := service.NewNamingService(
		repository.NewUserRepository(database),
		repository.NewCatalogRepository(database),
		time.Minute,
	)
	p := worker.NewPacketPipeline(
		repository.NewQuestionRepository(database),
		naming,
		compose.NewCompositor(layout, t.TempDir(), nil),
		pdf.NewAssembler(pdf.A4(24), nil),
		files,
		nil,
		uploads,
	)

	return &pipelineEnv{
		jobs:     repository.NewGenerationJobRepository(database),
		records:  repository.NewDownloadRecordRepository(database),
		files:    files,
		pipeline: p,
	}
}

func (e *pipelineEnv) job(t *testing.T, isVIP bool, recordID string) *model.GenerationJob {
	t.Helper()
	now := time.Now().UTC()
	job := &model.GenerationJob{
		ID:               uuid.New().String(),
		UserID:           "u1",
		QuestionIDs:      model.IDList{12, 13, 11},
		GradeID:          1,
		SubjectID:        2,
		KnowledgePointID: 3,
		IsVIP:            isVIP,
		Status:           model.JobStatusPending,
		MaxAttempts:      2,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if recordID != "" {
		job.DownloadRecordID = sql.Null[string]{V: recordID, Valid: true}
	}
	require.NoError(t, e.jobs.Create(context.Background(), job))
	return job
}

func (e *pipelineEnv) record(t *testing.T) *model.DownloadRecord {
	t.Helper()
	now := time.Now().UTC()
	rec := &model.DownloadRecord{
		ID:          uuid.New().String(),
		UserID:      "u1",
		QuestionIDs: model.IDList{12, 13, 11},
		CreatedAt:   now,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
		UpdatedAt:   now,
	}
	require.NoError(t, e.records.Create(context.Background(), rec, func(*sqlx.Tx) error { return e.files.MkdirAll(rec.ID) }))
	return rec
}

func pageCount(t *testing.T, files *storage.Local, rel string) int {
	t.Helper()
	abs, err := files.Path(rel)
	require.NoError(t, err)
	n, err := pdfapi.PageCountFile(abs)
	require.NoError(t, err)
	return n
}

func TestPipelineFillsRecordForVIPJob(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	rec := env.record(t)
	job := env.job(t, true, rec.ID)

	w := worker.New(env.jobs, env.pipeline, testConfig())
	processed, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := env.jobs.ByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusDone, got.Status, got.ErrorMessage.V)

	filled, err := env.records.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID+"/question.pdf", filled.QuestionPDFPath.V)
	assert.Equal(t, rec.ID+"/answer.pdf", filled.AnswerPDFPath.V)

	// Two question images of 310x124 plus a gap fit on one 440px page.
	assert.Equal(t, 1, pageCount(t, env.files, filled.QuestionPDFPath.V))
	assert.Equal(t, 1, pageCount(t, env.files, filled.AnswerPDFPath.V))
}

func TestPipelineSkipsAnswersForRegularJob(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	rec := env.record(t)
	env.job(t, false, rec.ID)

	w := worker.New(env.jobs, env.pipeline, testConfig())
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	filled, err := env.records.ByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, filled.QuestionPDFPath.Valid)
	assert.False(t, filled.AnswerPDFPath.Valid)
	assert.False(t, env.files.Exists(rec.ID+"/answer.pdf"))
}

func TestPipelineNamesUnlinkedOutputs(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)
	job := env.job(t, true, "")

	w := worker.New(env.jobs, env.pipeline, testConfig())
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	got, err := env.jobs.ByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusDone, got.Status, got.ErrorMessage.V)

	assert.Regexp(t, regexp.MustCompile(`^_unlinked/1234_g7_math_3_\d{8}_\d{6}\.pdf$`), got.OutputQuestionPDFPath.V)
	assert.Regexp(t, regexp.MustCompile(`^_unlinked/1234_g7_math_3_\d{8}_\d{6}_A\.pdf$`), got.OutputAnswerPDFPath.V)
	assert.True(t, env.files.Exists(got.OutputQuestionPDFPath.V))
	assert.True(t, env.files.Exists(got.OutputAnswerPDFPath.V))
}

func TestPipelineFailsWhenNoImageIsUsable(t *testing.T) {
	ctx := context.Background()
	env := newPipelineEnv(t)

	now := time.Now().UTC()
	job := &model.GenerationJob{
		ID:          uuid.New().String(),
		UserID:      "u1",
		QuestionIDs: model.IDList{13},
		Status:      model.JobStatusPending,
		MaxAttempts: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, env.jobs.Create(ctx, job))

	w := worker.New(env.jobs, env.pipeline, testConfig())
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	got, err := env.jobs.ByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPermanentFailed, got.Status)
	assert.Contains(t, got.ErrorMessage.V, compose.ErrNoPages.Error())
}
