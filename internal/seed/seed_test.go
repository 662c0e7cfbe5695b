package seed

import (
	"testing"

	"inkwell/internal/database"
	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestSeed(t *testing.T) {
	db := setupDB(t)

	require.NoError(t, Seed(db, Options{NumUsers: 5, NumPosts: 10}))

	var userCount, postCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&postCount).Error)
	assert.EqualValues(t, 5, userCount)
	assert.EqualValues(t, 10, postCount)

	// The first user is the bootstrapped admin.
	var memberCount int64
	require.NoError(t, db.Table("user_groups").
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("groups.name = ?", models.AdminGroupName).
		Count(&memberCount).Error)
	assert.EqualValues(t, 1, memberCount)
}

func TestSeedCleanIsIdempotent(t *testing.T) {
	db := setupDB(t)

	require.NoError(t, Seed(db, Options{NumUsers: 3, NumPosts: 5, ShouldClean: true}))
	require.NoError(t, Seed(db, Options{NumUsers: 3, NumPosts: 5, ShouldClean: true}))

	var userCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	assert.EqualValues(t, 3, userCount)
}
