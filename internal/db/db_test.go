package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSQLiteFile(t *testing.T) {
	database, err := Init("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestInitRejectsUnknownScheme(t *testing.T) {
	_, err := Init("mysql://nope")
	assert.Error(t, err)
}
