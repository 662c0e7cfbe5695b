package database

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "groups", "posts", "comments", "likes", "user_groups"} {
		assert.True(t, db.Migrator().HasTable(table), "expected table %s", table)
	}

	// Migrate is idempotent.
	assert.NoError(t, Migrate(db))
}

func TestGormLoggerLogMode(t *testing.T) {
	base := NewGormLogger(testLogger())

	elevated := base.LogMode(logger.Info)
	assert.NotSame(t, base, elevated)
}
