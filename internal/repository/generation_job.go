package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tikuhub/qbank/internal/model"
)

var (
	ErrJobNotFound = errors.New("generation job not found")
	ErrNoJob       = errors.New("no claimable generation job")
)

type GenerationJobRepository interface {
	Create(ctx context.Context, job *model.GenerationJob) error
	// CreateTx inserts the job as part of a caller's transaction.
	CreateTx(ctx context.Context, tx *sqlx.Tx, job *model.GenerationJob) error
	ByID(ctx context.Context, id string) (*model.GenerationJob, error)
	ByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.GenerationJob, error)
	// ClaimNext moves the oldest claimable job to running in one statement.
	// Returns ErrNoJob when nothing is eligible.
	ClaimNext(ctx context.Context, now time.Time) (*model.GenerationJob, error)
	// Complete marks the attempt done and fills the linked record's paths in
	// one transaction. Reports false when the attempt is no longer current.
	Complete(ctx context.Context, job *model.GenerationJob, out model.JobOutput, now time.Time) (bool, error)
	// Fail records a failed attempt. Reports false when the attempt is no
	// longer current.
	Fail(ctx context.Context, job *model.GenerationJob, status model.JobStatus, message string, now time.Time) (bool, error)
	// MarkTimedOut flips a still-running attempt to timeout, or to
	// permanent_failed once attempts are exhausted.
	MarkTimedOut(ctx context.Context, job *model.GenerationJob, message string, now time.Time) (bool, error)
	// Requeue hands an interrupted attempt back to the queue as pending and
	// refunds its attempt. Reports false when the attempt is no longer running.
	Requeue(ctx context.Context, job *model.GenerationJob, message string, now time.Time) (bool, error)
	// RecoverStale flips attempts still running since before startedBefore
	// to timeout, or to permanent_failed once attempts are exhausted.
	RecoverStale(ctx context.Context, startedBefore time.Time, message string, now time.Time) (int64, error)
	// UnlinkedOutputs lists finished jobs that hold outputs but no record.
	UnlinkedOutputs(ctx context.Context, finishedBefore time.Time) ([]*model.GenerationJob, error)
	ClearOutputs(ctx context.Context, id string, now time.Time) error
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

type generationJobRepository struct {
	db *sqlx.DB
}

func NewGenerationJobRepository(db *sqlx.DB) GenerationJobRepository {
	return &generationJobRepository{db: db}
}

func (r *generationJobRepository) Create(ctx context.Context, job *model.GenerationJob) error {
	return insertJob(ctx, r.db, job)
}

func (r *generationJobRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, job *model.GenerationJob) error {
	return insertJob(ctx, tx, job)
}

func insertJob(ctx context.Context, db sqlx.ExecerContext, job *model.GenerationJob) error {
	query := `
		INSERT INTO generation_jobs (
			id, user_id, question_ids, grade_id, subject_id, knowledge_point_id,
			is_vip, download_record_id, status, attempts, max_attempts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.QuestionIDs,
		job.GradeID,
		job.SubjectID,
		job.KnowledgePointID,
		job.IsVIP,
		job.DownloadRecordID,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (r *generationJobRepository) ByID(ctx context.Context, id string) (*model.GenerationJob, error) {
	job := &model.GenerationJob{}
	query := `SELECT * FROM generation_jobs WHERE id = $1`

	err := r.db.GetContext(ctx, job, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *generationJobRepository) ByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.GenerationJob, error) {
	var jobs []*model.GenerationJob
	query := `SELECT * FROM generation_jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`

	err := r.db.SelectContext(ctx, &jobs, query, status, limit)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *generationJobRepository) ClaimNext(ctx context.Context, now time.Time) (*model.GenerationJob, error) {
	job := &model.GenerationJob{}
	// The outer status guard makes the claim safe against a concurrent
	// claimer that picked the same row.
	query := `
		UPDATE generation_jobs
		SET status = 'running',
		    attempts = attempts + 1,
		    started_at = $1,
		    finished_at = NULL,
		    updated_at = $1
		WHERE id = (
			SELECT id FROM generation_jobs
			WHERE status IN ('pending', 'failed', 'timeout') AND attempts < max_attempts
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		)
		AND status IN ('pending', 'failed', 'timeout')
		AND attempts < max_attempts
		RETURNING *`

	err := r.db.GetContext(ctx, job, query, now)
	if err == sql.ErrNoRows {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *generationJobRepository) Complete(ctx context.Context, job *model.GenerationJob, out model.JobOutput, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE generation_jobs
		SET status = 'done',
		    error_message = NULL,
		    output_question_pdf_path = $1,
		    output_answer_pdf_path = $2,
		    finished_at = $3,
		    updated_at = $3
		WHERE id = $4 AND attempts = $5 AND status IN ('running', 'timeout')`

	result, err := tx.ExecContext(ctx, query, out.QuestionPDFPath, out.AnswerPDFPath, now, job.ID, job.Attempts)
	if err != nil {
		return false, fmt.Errorf("failed to mark job done: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	// Read the reference inside the transaction; cleanup may have nulled it.
	var recordID sql.Null[string]
	err = tx.GetContext(ctx, &recordID, `SELECT download_record_id FROM generation_jobs WHERE id = $1`, job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to read record reference: %w", err)
	}

	if recordID.Valid {
		_, err = tx.ExecContext(ctx, fillPathsQuery, out.QuestionPDFPath, out.AnswerPDFPath, now, recordID.V)
		if err != nil {
			return false, fmt.Errorf("failed to fill record paths: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *generationJobRepository) Fail(ctx context.Context, job *model.GenerationJob, status model.JobStatus, message string, now time.Time) (bool, error) {
	query := `
		UPDATE generation_jobs
		SET status = $1,
		    error_message = $2,
		    finished_at = $3,
		    updated_at = $3
		WHERE id = $4 AND attempts = $5 AND status IN ('running', 'timeout')`

	result, err := r.db.ExecContext(ctx, query, status, message, now, job.ID, job.Attempts)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (r *generationJobRepository) MarkTimedOut(ctx context.Context, job *model.GenerationJob, message string, now time.Time) (bool, error) {
	query := `
		UPDATE generation_jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'permanent_failed' ELSE 'timeout' END,
		    error_message = $1,
		    finished_at = $2,
		    updated_at = $2
		WHERE id = $3 AND attempts = $4 AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query, message, now, job.ID, job.Attempts)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (r *generationJobRepository) Requeue(ctx context.Context, job *model.GenerationJob, message string, now time.Time) (bool, error) {
	query := `
		UPDATE generation_jobs
		SET status = 'pending',
		    attempts = attempts - 1,
		    error_message = $1,
		    updated_at = $2
		WHERE id = $3 AND attempts = $4 AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query, message, now, job.ID, job.Attempts)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (r *generationJobRepository) RecoverStale(ctx context.Context, startedBefore time.Time, message string, now time.Time) (int64, error) {
	query := `
		UPDATE generation_jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'permanent_failed' ELSE 'timeout' END,
		    error_message = $1,
		    finished_at = $2,
		    updated_at = $2
		WHERE status = 'running' AND started_at <= $3`

	result, err := r.db.ExecContext(ctx, query, message, now, startedBefore)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *generationJobRepository) UnlinkedOutputs(ctx context.Context, finishedBefore time.Time) ([]*model.GenerationJob, error) {
	var jobs []*model.GenerationJob
	query := `
		SELECT * FROM generation_jobs
		WHERE download_record_id IS NULL
		  AND finished_at IS NOT NULL
		  AND finished_at <= $1
		  AND (output_question_pdf_path IS NOT NULL OR output_answer_pdf_path IS NOT NULL)`

	err := r.db.SelectContext(ctx, &jobs, query, finishedBefore)
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *generationJobRepository) ClearOutputs(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE generation_jobs
		SET output_question_pdf_path = NULL,
		    output_answer_pdf_path = NULL,
		    updated_at = $1
		WHERE id = $2`

	_, err := r.db.ExecContext(ctx, query, now, id)
	return err
}

func (r *generationJobRepository) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	var rows []struct {
		Status model.JobStatus `db:"status"`
		Count  int             `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM generation_jobs GROUP BY status`

	err := r.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, err
	}

	counts := make(map[model.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
