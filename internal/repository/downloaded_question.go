package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tikuhub/qbank/internal/model"
)

// DownloadedQuestionRepository tracks which questions a VIP user has
// already taken home, per knowledge point. Questions without a knowledge
// point are not tracked.
type DownloadedQuestionRepository interface {
	Mark(ctx context.Context, userID string, questions []*model.Question, now time.Time) error
	ByKnowledgePoint(ctx context.Context, userID string, knowledgePointID int64) ([]int64, error)
	Reset(ctx context.Context, userID string, knowledgePointID int64) (int64, error)
}

type downloadedQuestionRepository struct {
	db *sqlx.DB
}

func NewDownloadedQuestionRepository(db *sqlx.DB) DownloadedQuestionRepository {
	return &downloadedQuestionRepository{db: db}
}

func (r *downloadedQuestionRepository) Mark(ctx context.Context, userID string, questions []*model.Question, now time.Time) error {
	if len(questions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO user_downloaded_questions (user_id, question_id, knowledge_point_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, question_id) DO NOTHING`

	for _, q := range questions {
		if !q.KnowledgePointID.Valid {
			continue
		}
		_, err = tx.ExecContext(ctx, query, userID, q.ID, q.KnowledgePointID.V, now)
		if err != nil {
			return fmt.Errorf("failed to mark question %d: %w", q.ID, err)
		}
	}

	return tx.Commit()
}

func (r *downloadedQuestionRepository) ByKnowledgePoint(ctx context.Context, userID string, knowledgePointID int64) ([]int64, error) {
	ids := []int64{}
	query := `
		SELECT question_id FROM user_downloaded_questions
		WHERE user_id = $1 AND knowledge_point_id = $2
		ORDER BY question_id`

	err := r.db.SelectContext(ctx, &ids, query, userID, knowledgePointID)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *downloadedQuestionRepository) Reset(ctx context.Context, userID string, knowledgePointID int64) (int64, error) {
	query := `DELETE FROM user_downloaded_questions WHERE user_id = $1 AND knowledge_point_id = $2`

	result, err := r.db.ExecContext(ctx, query, userID, knowledgePointID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
