// Package service contains the application's business rules: input
// validation, ownership and role checks, and orchestration over repositories.
package service

import (
	"context"
	"errors"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/repository"
)

const (
	maxTitleLen   = 300
	maxContentLen = 50000
)

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type CreatePostInput struct {
	RequesterID uint
	AuthorID    uint // optional; defaults to the requester
	Title       string
	Content     string
}

type UpdatePostInput struct {
	RequesterID uint
	PostID      uint
	Title       string
	Content     string
}

func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *PostService {
	return &PostService{
		postRepo: postRepo,
		userRepo: userRepo,
		isAdmin:  isAdmin,
	}
}

// canModify reports whether the requester owns the resource or holds the
// Admin role.
func (s *PostService) canModify(ctx context.Context, requesterID, ownerID uint) (bool, error) {
	if requesterID == ownerID {
		return true, nil
	}
	if s.isAdmin == nil {
		return false, nil
	}
	return s.isAdmin(ctx, requesterID)
}

func validatePostFields(title, content string) error {
	if title == "" || content == "" {
		return models.NewValidationError("Title and content are required.")
	}
	if len(title) > maxTitleLen {
		return models.NewValidationError("Title too long (max 300 characters)")
	}
	if len(content) > maxContentLen {
		return models.NewValidationError("Content too long (max 50000 characters)")
	}
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}

	// A declared author may differ from the requester; it only has to exist.
	// Whether that is desirable is an open product question, but it is the
	// documented behavior, so it stays until decided otherwise.
	authorID := in.AuthorID
	if authorID == 0 {
		authorID = in.RequesterID
	}
	if authorID != in.RequesterID {
		if _, err := s.userRepo.GetByID(ctx, authorID); err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
				return nil, models.NewValidationError("Author not found.")
			}
			return nil, err
		}
	}

	post := &models.Post{
		Title:   in.Title,
		Content: in.Content,
		UserID:  authorID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	return s.postRepo.GetByID(ctx, post.ID, in.RequesterID)
}

func (s *PostService) ListPosts(ctx context.Context, limit, offset int, currentUserID uint) ([]*models.Post, error) {
	// Anonymous first pages dominate traffic and carry no per-user state, so
	// they are served cache-aside.
	if currentUserID == 0 && offset == 0 && limit <= 20 {
		var posts []*models.Post
		err := cache.Aside(ctx, cache.PostsListKey, &posts, cache.ListTTL, func() error {
			var fetchErr error
			posts, fetchErr = s.postRepo.List(ctx, limit, offset, 0)
			return fetchErr
		})
		return posts, err
	}

	return s.postRepo.List(ctx, limit, offset, currentUserID)
}

func (s *PostService) GetPost(ctx context.Context, id, currentUserID uint) (*models.Post, error) {
	return s.postRepo.GetByID(ctx, id, currentUserID)
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.RequesterID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canModify(ctx, in.RequesterID, post.UserID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.NewForbiddenError("Only the author or an admin can modify this post.")
	}

	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}

	post.Title = in.Title
	post.Content = in.Content
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}

	return s.postRepo.GetByID(ctx, post.ID, in.RequesterID)
}

func (s *PostService) DeletePost(ctx context.Context, requesterID, postID uint) error {
	post, err := s.postRepo.GetByID(ctx, postID, requesterID)
	if err != nil {
		return err
	}

	allowed, err := s.canModify(ctx, requesterID, post.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return models.NewForbiddenError("Only the author or an admin can delete this post.")
	}

	return s.postRepo.Delete(ctx, postID)
}

// ToggleLike flips the requester's like on the post and returns the new state
// and like count.
func (s *PostService) ToggleLike(ctx context.Context, postID, requesterID uint) (bool, int64, error) {
	if _, err := s.postRepo.GetByID(ctx, postID, requesterID); err != nil {
		return false, 0, err
	}
	return s.postRepo.ToggleLike(ctx, postID, requesterID)
}
