// Package dbtest opens migrated throwaway databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/tikuhub/qbank/internal/db"
)

// New returns a migrated SQLite database living in the test's temp dir.
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "qbank.db")
	database, err := db.Init("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))
	return database
}

// Seed inserts the catalog rows most tests need: one user, one grade,
// one subject, one knowledge point and the given questions.
func Seed(t *testing.T, database *sqlx.DB, userID, phone string, questions map[int64][2]string) {
	t.Helper()

	database.MustExec(`INSERT INTO users (id, phone, created_at) VALUES ($1, $2, CURRENT_TIMESTAMP)`, userID, phone)
	database.MustExec(`INSERT INTO grades (id, code, name) VALUES (1, 'g7', 'Grade 7')`)
	database.MustExec(`INSERT INTO subjects (id, code, name) VALUES (2, 'math', 'Mathematics')`)
	database.MustExec(`INSERT INTO knowledge_points (id, grade_id, subject_id, name) VALUES (3, 1, 2, 'Fractions')`)

	for id, urls := range questions {
		var q, a any
		if urls[0] != "" {
			q = urls[0]
		}
		if urls[1] != "" {
			a = urls[1]
		}
		database.MustExec(`INSERT INTO questions (id, grade_id, subject_id, knowledge_point_id, question_image_url, answer_image_url)
			VALUES ($1, 1, 2, 3, $2, $3)`, id, q, a)
	}
}
