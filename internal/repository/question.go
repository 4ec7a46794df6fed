package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tikuhub/qbank/internal/model"
)

type QuestionRepository interface {
	// ByIDs returns the questions in the order of ids. Unknown ids are
	// left out.
	ByIDs(ctx context.Context, ids []int64) ([]*model.Question, error)
}

type questionRepository struct {
	db *sqlx.DB
}

func NewQuestionRepository(db *sqlx.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) ByIDs(ctx context.Context, ids []int64) ([]*model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `
		SELECT id, grade_id, subject_id, knowledge_point_id, question_image_url, answer_image_url
		FROM questions
		WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	var rows []*model.Question
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.Question, len(rows))
	for _, q := range rows {
		byID[q.ID] = q
	}

	questions := make([]*model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			questions = append(questions, q)
		}
	}

	return questions, nil
}
