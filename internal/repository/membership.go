package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tikuhub/qbank/internal/model"
)

type MembershipRepository interface {
	// Active lists the user's memberships that are active at now.
	Active(ctx context.Context, userID string, now time.Time) ([]*model.VIPMembership, error)
}

type membershipRepository struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Active(ctx context.Context, userID string, now time.Time) ([]*model.VIPMembership, error) {
	var memberships []*model.VIPMembership
	query := `
		SELECT * FROM vip_memberships
		WHERE user_id = $1 AND status = $2 AND end_date >= $3
		ORDER BY end_date DESC`

	err := r.db.SelectContext(ctx, &memberships, query, userID, model.MembershipStatusActive, now)
	if err != nil {
		return nil, err
	}

	return memberships, nil
}
