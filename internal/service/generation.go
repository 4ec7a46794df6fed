package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/validation"
)

// JobInput is everything the worker needs to build a packet. Callers
// have already authorized the request.
type JobInput struct {
	UserID           string  `json:"user_id" validate:"required"`
	QuestionIDs      []int64 `json:"question_ids" validate:"required,min=1,max=15,unique,dive,gt=0"`
	GradeID          int64   `json:"grade_id" validate:"gte=0"`
	SubjectID        int64   `json:"subject_id" validate:"gte=0"`
	KnowledgePointID int64   `json:"knowledge_point_id" validate:"gte=0"`
	IsVIP            bool    `json:"is_vip"`
	DownloadRecordID string  `json:"download_record_id"`
}

// Notifier is told that new work is queued.
type Notifier interface {
	Notify()
}

type GenerationService struct {
	jobs        repository.GenerationJobRepository
	notifier    Notifier
	maxAttempts int
}

func NewGenerationService(jobs repository.GenerationJobRepository, notifier Notifier, maxAttempts int) *GenerationService {
	if maxAttempts < 1 {
		maxAttempts = model.DefaultMaxAttempts
	}
	return &GenerationService{
		jobs:        jobs,
		notifier:    notifier,
		maxAttempts: maxAttempts,
	}
}

// SetNotifier wires the worker in once it exists.
func (s *GenerationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Enqueue stores a pending job and wakes the worker.
func (s *GenerationService) Enqueue(ctx context.Context, in JobInput) (*model.GenerationJob, error) {
	job, err := s.newJob(in)
	if err != nil {
		return nil, err
	}

	err = s.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue generation job: %w", err)
	}

	s.Notify()
	return job, nil
}

// EnqueueTx stores a pending job inside tx. The worker is not woken;
// call Notify once tx has committed.
func (s *GenerationService) EnqueueTx(ctx context.Context, tx *sqlx.Tx, in JobInput) (*model.GenerationJob, error) {
	job, err := s.newJob(in)
	if err != nil {
		return nil, err
	}

	err = s.jobs.CreateTx(ctx, tx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue generation job: %w", err)
	}

	return job, nil
}

// Notify wakes the worker, if one is wired.
func (s *GenerationService) Notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *GenerationService) newJob(in JobInput) (*model.GenerationJob, error) {
	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.GenerationJob{
		ID:               uuid.New().String(),
		UserID:           in.UserID,
		QuestionIDs:      model.IDList(in.QuestionIDs),
		GradeID:          in.GradeID,
		SubjectID:        in.SubjectID,
		KnowledgePointID: in.KnowledgePointID,
		IsVIP:            in.IsVIP,
		Status:           model.JobStatusPending,
		MaxAttempts:      s.maxAttempts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.DownloadRecordID != "" {
		job.DownloadRecordID = sql.Null[string]{V: in.DownloadRecordID, Valid: true}
	}
	return job, nil
}
