package model

import (
	"database/sql"
	"time"
)

type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusRunning         JobStatus = "running"
	JobStatusDone            JobStatus = "done"
	JobStatusFailed          JobStatus = "failed"
	JobStatusTimeout         JobStatus = "timeout"
	JobStatusPermanentFailed JobStatus = "permanent_failed"
)

const DefaultMaxAttempts = 2

// IsFinal reports whether no further transition is allowed.
// failed and timeout jobs stay claimable until attempts reach max_attempts.
func (s JobStatus) IsFinal() bool {
	return s == JobStatusDone || s == JobStatusPermanentFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusDone,
		JobStatusFailed, JobStatusTimeout, JobStatusPermanentFailed:
		return true
	}
	return false
}

// ClaimableStatuses are the states a worker may move to running.
var ClaimableStatuses = []JobStatus{JobStatusPending, JobStatusFailed, JobStatusTimeout}

type GenerationJob struct {
	ID                    string              `db:"id"`
	UserID                string              `db:"user_id"`
	QuestionIDs           IDList              `db:"question_ids"`
	GradeID               int64               `db:"grade_id"`
	SubjectID             int64               `db:"subject_id"`
	KnowledgePointID      int64               `db:"knowledge_point_id"`
	IsVIP                 bool                `db:"is_vip"`
	DownloadRecordID      sql.Null[string]    `db:"download_record_id"`
	Status                JobStatus           `db:"status"`
	Attempts              int                 `db:"attempts"`
	MaxAttempts           int                 `db:"max_attempts"`
	ErrorMessage          sql.Null[string]    `db:"error_message"`
	OutputQuestionPDFPath sql.Null[string]    `db:"output_question_pdf_path"`
	OutputAnswerPDFPath   sql.Null[string]    `db:"output_answer_pdf_path"`
	CreatedAt             time.Time           `db:"created_at"`
	StartedAt             sql.Null[time.Time] `db:"started_at"`
	FinishedAt            sql.Null[time.Time] `db:"finished_at"`
	UpdatedAt             time.Time           `db:"updated_at"`
}

// AttemptsExhausted reports whether a failure of the current attempt is final.
func (j *GenerationJob) AttemptsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// JobOutput holds the relative paths produced by one successful run.
type JobOutput struct {
	QuestionPDFPath sql.Null[string]
	AnswerPDFPath   sql.Null[string]
}
