package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikuhub/qbank/internal/dbtest"
	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
	"github.com/tikuhub/qbank/internal/service"
)

func TestNamingMeta(t *testing.T) {
	database := dbtest.New(t)
	dbtest.Seed(t, database, "u1", "13800001234", nil)
	naming := service.NewNamingService(
		repository.NewUserRepository(database),
		repository.NewCatalogRepository(database),
		time.Minute,
	)
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 9, 3, 7, 0, time.UTC)

	meta, err := naming.Meta(ctx, &model.GenerationJob{UserID: "u1", GradeID: 1, SubjectID: 2, KnowledgePointID: 3})
	require.NoError(t, err)
	assert.Equal(t, "1234_g7_math_3_20260504_090307", meta.BaseName(at))

	// Codes are served from cache until they expire.
	database.MustExec(`UPDATE grades SET code = 'g8' WHERE id = 1`)
	meta, err = naming.Meta(ctx, &model.GenerationJob{UserID: "u1", GradeID: 1, SubjectID: 2})
	require.NoError(t, err)
	assert.Equal(t, "g7", meta.GradeCode)

	meta, err = naming.Meta(ctx, &model.GenerationJob{UserID: "ghost", GradeID: 9, SubjectID: 9})
	require.NoError(t, err)
	assert.Equal(t, "user_grade_subject_0_20260504_090307", meta.BaseName(at))
}
