package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikuhub/qbank/internal/db"
	"github.com/tikuhub/qbank/internal/dbtest"
)

func TestMigrationsUpDownStatus(t *testing.T) {
	database := dbtest.New(t)

	version, err := db.MigrationStatus(database.DB, "sqlite")
	require.NoError(t, err)
	assert.EqualValues(t, 3, version)

	require.NoError(t, db.MigrateDown(database.DB, "sqlite"))
	version, err = db.MigrationStatus(database.DB, "sqlite")
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))
	version, err = db.MigrationStatus(database.DB, "sqlite")
	require.NoError(t, err)
	assert.EqualValues(t, 3, version)
}

func TestMigrationsRejectUnknownDriver(t *testing.T) {
	database := dbtest.New(t)

	err := db.RunMigrations(database.DB, "mysql")
	assert.ErrorContains(t, err, "unsupported database driver")
}
