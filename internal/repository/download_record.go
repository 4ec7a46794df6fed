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
	ErrDownloadRecordNotFound = errors.New("download record not found")
)

// fillPathsQuery never replaces a stored path with NULL.
const fillPathsQuery = `
	UPDATE download_records
	SET question_pdf_path = COALESCE($1, question_pdf_path),
	    answer_pdf_path = COALESCE($2, answer_pdf_path),
	    updated_at = $3
	WHERE id = $4`

type DownloadRecordRepository interface {
	// Create inserts the record and runs afterInsert inside the same
	// transaction; an afterInsert error rolls the insert back.
	Create(ctx context.Context, record *model.DownloadRecord, afterInsert func(tx *sqlx.Tx) error) error
	ByID(ctx context.Context, id string) (*model.DownloadRecord, error)
	ByUserID(ctx context.Context, userID string) ([]*model.DownloadRecord, error)
	FillPaths(ctx context.Context, id string, questionPath, answerPath sql.Null[string], now time.Time) error
	Touch(ctx context.Context, id string, now time.Time) error
	Expired(ctx context.Context, now time.Time) ([]*model.DownloadRecord, error)
	// Purge deletes the rows and nulls every reference to them.
	Purge(ctx context.Context, ids []string) error
}

type downloadRecordRepository struct {
	db *sqlx.DB
}

func NewDownloadRecordRepository(db *sqlx.DB) DownloadRecordRepository {
	return &downloadRecordRepository{db: db}
}

func (r *downloadRecordRepository) Create(ctx context.Context, record *model.DownloadRecord, afterInsert func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO download_records (
			id, user_id, question_ids, is_vip,
			question_pdf_path, answer_pdf_path,
			created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.QuestionIDs,
		record.IsVIP,
		record.QuestionPDFPath,
		record.AnswerPDFPath,
		record.CreatedAt,
		record.ExpiresAt,
		record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if afterInsert != nil {
		err = afterInsert(tx)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *downloadRecordRepository) ByID(ctx context.Context, id string) (*model.DownloadRecord, error) {
	record := &model.DownloadRecord{}
	query := `SELECT * FROM download_records WHERE id = $1`

	err := r.db.GetContext(ctx, record, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrDownloadRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *downloadRecordRepository) ByUserID(ctx context.Context, userID string) ([]*model.DownloadRecord, error) {
	var records []*model.DownloadRecord
	query := `SELECT * FROM download_records WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	err := r.db.SelectContext(ctx, &records, query, userID)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *downloadRecordRepository) FillPaths(ctx context.Context, id string, questionPath, answerPath sql.Null[string], now time.Time) error {
	result, err := r.db.ExecContext(ctx, fillPathsQuery, questionPath, answerPath, now, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDownloadRecordNotFound
	}

	return nil
}

func (r *downloadRecordRepository) Touch(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE download_records SET last_accessed_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, now, id)
	return err
}

func (r *downloadRecordRepository) Expired(ctx context.Context, now time.Time) ([]*model.DownloadRecord, error) {
	var records []*model.DownloadRecord
	query := `SELECT * FROM download_records WHERE expires_at <= $1`

	err := r.db.SelectContext(ctx, &records, query, now)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *downloadRecordRepository) Purge(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		// Orders and jobs keep their rows; only the reference goes away.
		_, err = tx.ExecContext(ctx, `UPDATE orders SET download_record_id = NULL WHERE download_record_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to unlink orders: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE generation_jobs SET download_record_id = NULL WHERE download_record_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to unlink generation jobs: %w", err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM download_records WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete download record: %w", err)
		}
	}

	return tx.Commit()
}
