package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/tikuhub/qbank/internal/model"
)

var (
	ErrGradeNotFound   = errors.New("grade not found")
	ErrSubjectNotFound = errors.New("subject not found")
)

type CatalogRepository interface {
	GradeByID(ctx context.Context, id int64) (*model.Grade, error)
	SubjectByID(ctx context.Context, id int64) (*model.Subject, error)
}

type catalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GradeByID(ctx context.Context, id int64) (*model.Grade, error) {
	grade := &model.Grade{}
	query := `SELECT id, code, name FROM grades WHERE id = $1`

	err := r.db.GetContext(ctx, grade, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrGradeNotFound
	}

	return grade, err
}

func (r *catalogRepository) SubjectByID(ctx context.Context, id int64) (*model.Subject, error) {
	subject := &model.Subject{}
	query := `SELECT id, code, name FROM subjects WHERE id = $1`

	err := r.db.GetContext(ctx, subject, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrSubjectNotFound
	}

	return subject, err
}
