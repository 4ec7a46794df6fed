package model

import (
	"database/sql"
	"path"
	"time"
)

const (
	FileTypeQuestion = "question"
	FileTypeAnswer   = "answer"

	QuestionPDFName = "question.pdf"
	AnswerPDFName   = "answer.pdf"

	// MaxPacketQuestions caps the number of questions in one packet.
	MaxPacketQuestions = 15
)

// DownloadRecord describes one generated packet. Paths are relative to the
// download root and stay null until the worker has produced the file.
type DownloadRecord struct {
	ID              string              `db:"id"`
	UserID          string              `db:"user_id"`
	QuestionIDs     IDList              `db:"question_ids"`
	IsVIP           bool                `db:"is_vip"`
	QuestionPDFPath sql.Null[string]    `db:"question_pdf_path"`
	AnswerPDFPath   sql.Null[string]    `db:"answer_pdf_path"`
	CreatedAt       time.Time           `db:"created_at"`
	ExpiresAt       time.Time           `db:"expires_at"`
	LastAccessedAt  sql.Null[time.Time] `db:"last_accessed_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

func (r *DownloadRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Ready reports whether the question packet has been generated.
func (r *DownloadRecord) Ready() bool {
	return r.QuestionPDFPath.Valid
}

// PathFor returns the stored relative path for a file type.
func (r *DownloadRecord) PathFor(fileType string) (sql.Null[string], bool) {
	switch fileType {
	case FileTypeQuestion:
		return r.QuestionPDFPath, true
	case FileTypeAnswer:
		return r.AnswerPDFPath, true
	default:
		return sql.Null[string]{}, false
	}
}

// RecordFilePath is the relative location of a packet file inside the
// record's own directory.
func RecordFilePath(recordID, fileType string) string {
	if fileType == FileTypeAnswer {
		return path.Join(recordID, AnswerPDFName)
	}
	return path.Join(recordID, QuestionPDFName)
}

// DownloadRecordResponse is the JSON projection returned to clients.
type DownloadRecordResponse struct {
	ID                  string    `json:"id"`
	QuestionIDs         []int64   `json:"question_ids"`
	QuestionCount       int       `json:"question_count"`
	IsVIP               bool      `json:"is_vip"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	QuestionPDFURL      *string   `json:"question_pdf_url"`
	QuestionPDFFilename *string   `json:"question_pdf_filename"`
	AnswerPDFURL        *string   `json:"answer_pdf_url"`
	AnswerPDFFilename   *string   `json:"answer_pdf_filename"`
}

func FileURL(recordID, fileType string) string {
	return "/api/downloads/file/" + recordID + "/" + fileType
}

func (r *DownloadRecord) Response() DownloadRecordResponse {
	resp := DownloadRecordResponse{
		ID:            r.ID,
		QuestionIDs:   []int64(r.QuestionIDs),
		QuestionCount: len(r.QuestionIDs),
		IsVIP:         r.IsVIP,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
	if resp.QuestionIDs == nil {
		resp.QuestionIDs = []int64{}
	}

	if r.QuestionPDFPath.Valid {
		url := FileURL(r.ID, FileTypeQuestion)
		name := path.Base(r.QuestionPDFPath.V)
		resp.QuestionPDFURL = &url
		resp.QuestionPDFFilename = &name
	}
	if r.AnswerPDFPath.Valid {
		url := FileURL(r.ID, FileTypeAnswer)
		name := path.Base(r.AnswerPDFPath.V)
		resp.AnswerPDFURL = &url
		resp.AnswerPDFFilename = &name
	}

	return resp
}
