package model

import (
	"time"
)

const (
	MembershipStatusActive  = "active"
	MembershipStatusExpired = "expired"
)

type VIPMembership struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	GradeIDs  IDList    `db:"grade_ids"`
	Status    string    `db:"status"`
	EndDate   time.Time `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
}

func (m *VIPMembership) IsActive(now time.Time) bool {
	return m.Status == MembershipStatusActive && !m.EndDate.Before(now)
}

// Covers reports whether the membership includes every given grade.
func (m *VIPMembership) Covers(gradeIDs []int64) bool {
	for _, g := range gradeIDs {
		if !m.GradeIDs.Contains(g) {
			return false
		}
	}
	return true
}
