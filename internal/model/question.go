package model

import "database/sql"

type Question struct {
	ID               int64            `db:"id"`
	GradeID          int64            `db:"grade_id"`
	SubjectID        int64            `db:"subject_id"`
	KnowledgePointID sql.Null[int64]  `db:"knowledge_point_id"`
	QuestionImageURL sql.Null[string] `db:"question_image_url"`
	AnswerImageURL   sql.Null[string] `db:"answer_image_url"`
}

// ImageURL returns the stored image URL for the packet side.
func (q *Question) ImageURL(answer bool) sql.Null[string] {
	if answer {
		return q.AnswerImageURL
	}
	return q.QuestionImageURL
}

type Grade struct {
	ID   int64  `db:"id"`
	Code string `db:"code"`
	Name string `db:"name"`
}

type Subject struct {
	ID   int64  `db:"id"`
	Code string `db:"code"`
	Name string `db:"name"`
}
