package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
)

type MembershipService struct {
	memberships repository.MembershipRepository
	now         func() time.Time
}

func NewMembershipService(memberships repository.MembershipRepository) *MembershipService {
	return &MembershipService{
		memberships: memberships,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CoversQuestions reports whether one active membership includes the
// grade of every given question.
func (s *MembershipService) CoversQuestions(ctx context.Context, userID string, questions []*model.Question) (bool, error) {
	if len(questions) == 0 {
		return false, nil
	}

	grades := make([]int64, 0, len(questions))
	for _, q := range questions {
		if !slices.Contains(grades, q.GradeID) {
			grades = append(grades, q.GradeID)
		}
	}

	now := s.now()
	active, err := s.memberships.Active(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to load memberships: %w", err)
	}

	for _, m := range active {
		if m.IsActive(now) && m.Covers(grades) {
			return true, nil
		}
	}
	return false, nil
}
