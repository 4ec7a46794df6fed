package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/validation"
)

var (
	ErrQuestionsNotFound = errors.New("one or more questions do not exist")
	ErrOrderNotFound     = errors.New("download order not found")
	ErrOrderNotPaid      = errors.New("download order is not paid")
)

// DownloadGroupInput is a request to build a packet from up to 15 questions.
type DownloadGroupInput struct {
	UserID      string  `json:"-" validate:"required"`
	QuestionIDs []int64 `json:"question_ids" validate:"required,min=1,max=15,unique,dive,gt=0"`
	OrderNo     string  `json:"order_no" validate:"omitempty,max=64"`
}

// DownloadGroupResult carries either a payment demand or the record the
// packet will appear in.
type DownloadGroupResult struct {
	NeedPayment bool
	Record      *model.DownloadRecord
	Job         *model.GenerationJob // nil when an existing record was returned
}

// DownloadRequestService turns a download request into a record plus a
// queued generation job. VIP members covering every question's grade get
// answers too; everyone else needs a paid download order, which is linked
// to the record it produced so it cannot be spent twice.
type DownloadRequestService struct {
	questions   repository.QuestionRepository
	orders      repository.OrderRepository
	downloaded  repository.DownloadedQuestionRepository
	memberships *MembershipService
	downloads   *DownloadService
	generation  *GenerationService
	logger      *slog.Logger
}

func NewDownloadRequestService(
	questions repository.QuestionRepository,
	orders repository.OrderRepository,
	downloaded repository.DownloadedQuestionRepository,
	memberships *MembershipService,
	downloads *DownloadService,
	generation *GenerationService,
) *DownloadRequestService {
	return &DownloadRequestService{
		questions:   questions,
		orders:      orders,
		downloaded:  downloaded,
		memberships: memberships,
		downloads:   downloads,
		generation:  generation,
		logger:      slog.Default().With("component", "download-request"),
	}
}

func (s *DownloadRequestService) Request(ctx context.Context, in DownloadGroupInput) (*DownloadGroupResult, error) {
	err := validation.Struct(in)
	if err != nil {
		return nil, err
	}

	questions, err := s.questions.ByIDs(ctx, in.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) != len(in.QuestionIDs) {
		return nil, ErrQuestionsNotFound
	}

	isVIP, err := s.memberships.CoversQuestions(ctx, in.UserID, questions)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	if !isVIP {
		if in.OrderNo == "" {
			return &DownloadGroupResult{NeedPayment: true}, nil
		}

		order, err = s.paidOrder(ctx, in.UserID, in.OrderNo)
		if err != nil {
			return nil, err
		}

		existing, err := s.linkedRecord(ctx, order)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &DownloadGroupResult{Record: existing}, nil
		}
	}

	// The record, its job and the order link commit together.
	now := time.Now().UTC()
	first := questions[0]
	var job *model.GenerationJob
	record, err := s.downloads.CreateWith(ctx, in.UserID, in.QuestionIDs, isVIP, func(tx *sqlx.Tx, record *model.DownloadRecord) error {
		var err error
		job, err = s.generation.EnqueueTx(ctx, tx, JobInput{
			UserID:           in.UserID,
			QuestionIDs:      in.QuestionIDs,
			GradeID:          first.GradeID,
			SubjectID:        first.SubjectID,
			KnowledgePointID: first.KnowledgePointID.V,
			IsVIP:            isVIP,
			DownloadRecordID: record.ID,
		})
		if err != nil {
			return err
		}

		if order != nil {
			err = s.orders.LinkDownloadRecordTx(ctx, tx, order.ID, record.ID, now)
			if err != nil {
				return fmt.Errorf("failed to link order: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.generation.Notify()

	if isVIP {
		err = s.downloaded.Mark(ctx, in.UserID, questions, now)
		if err != nil {
			s.logger.Warn("failed to record downloaded questions", "record_id", record.ID, "error", err)
		}
	}

	s.logger.Info("download packet queued",
		"record_id", record.ID,
		"job_id", job.ID,
		"questions", len(in.QuestionIDs),
		"vip", isVIP)

	return &DownloadGroupResult{Record: record, Job: job}, nil
}

func (s *DownloadRequestService) paidOrder(ctx context.Context, userID, orderNo string) (*model.Order, error) {
	order, err := s.orders.ByOrderNo(ctx, userID, orderNo)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order.Type != model.OrderTypeDownload {
		return nil, ErrOrderNotFound
	}
	if !order.IsPaid() {
		return nil, ErrOrderNotPaid
	}
	return order, nil
}

// linkedRecord returns the live record an order already produced, if any.
func (s *DownloadRequestService) linkedRecord(ctx context.Context, order *model.Order) (*model.DownloadRecord, error) {
	if !order.DownloadRecordID.Valid {
		return nil, nil
	}

	record, err := s.downloads.ByID(ctx, order.DownloadRecordID.V)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if record.IsExpired(s.downloads.now()) {
		return nil, nil
	}
	return record, nil
}

// Downloaded lists the questions a user already received for a
// knowledge point.
func (s *DownloadRequestService) Downloaded(ctx context.Context, userID string, knowledgePointID int64) ([]int64, error) {
	ids, err := s.downloaded.ByKnowledgePoint(ctx, userID, knowledgePointID)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloaded questions: %w", err)
	}
	return ids, nil
}

// ResetDownloaded forgets the downloaded questions of a knowledge point.
func (s *DownloadRequestService) ResetDownloaded(ctx context.Context, userID string, knowledgePointID int64) (int64, error) {
	n, err := s.downloaded.Reset(ctx, userID, knowledgePointID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset downloaded questions: %w", err)
	}
	return n, nil
}
