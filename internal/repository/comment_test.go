package repository

import (
	"context"
	"testing"

	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "henry")
	post := createTestPost(t, db, author.ID, "t")

	comment := &models.Comment{Content: "first!", PostID: post.ID, UserID: author.ID}
	require.NoError(t, repo.Create(ctx, comment))
	require.NotZero(t, comment.ID)

	comments, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "first!", comments[0].Content)
	assert.Equal(t, "henry", comments[0].User.Username)

	byPost, err := repo.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, byPost, 1)

	byPost, err = repo.ListByPost(ctx, post.ID+1)
	require.NoError(t, err)
	assert.Empty(t, byPost)
}

func TestCommentRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "iris")
	post := createTestPost(t, db, author.ID, "t")
	comment := &models.Comment{Content: "bye", PostID: post.ID, UserID: author.ID}
	require.NoError(t, repo.Create(ctx, comment))

	require.NoError(t, repo.Delete(ctx, comment.ID))

	var appErr *models.AppError
	err := repo.Delete(ctx, comment.ID)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)

	_, err = repo.GetByID(ctx, comment.ID)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}
