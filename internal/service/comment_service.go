package service

import (
	"context"
	"errors"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	isAdmin     func(ctx context.Context, userID uint) (bool, error)
}

type CreateCommentInput struct {
	RequesterID uint
	AuthorID    uint // optional; defaults to the requester
	PostID      uint
	Content     string
}

type UpdateCommentInput struct {
	RequesterID uint
	CommentID   uint
	Content     string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		userRepo:    userRepo,
		isAdmin:     isAdmin,
	}
}

func (s *CommentService) canModify(ctx context.Context, requesterID, ownerID uint) (bool, error) {
	if requesterID == ownerID {
		return true, nil
	}
	if s.isAdmin == nil {
		return false, nil
	}
	return s.isAdmin(ctx, requesterID)
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.Content == "" {
		return nil, models.NewValidationError("Content is required.")
	}
	if len(in.Content) > maxContentLen {
		return nil, models.NewValidationError("Content too long (max 50000 characters)")
	}
	if in.PostID == 0 {
		return nil, models.NewValidationError("Post is required.")
	}

	// Referential checks surface as 400s, not 404s: the comment is the
	// resource being addressed here, the post and author are payload fields.
	if _, err := s.postRepo.GetByID(ctx, in.PostID, 0); err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return nil, models.NewValidationError("Post not found.")
		}
		return nil, err
	}

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

	comment := &models.Comment{
		Content: in.Content,
		PostID:  in.PostID,
		UserID:  authorID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	return s.commentRepo.GetByID(ctx, comment.ID)
}

func (s *CommentService) ListComments(ctx context.Context, limit, offset int) ([]*models.Comment, error) {
	return s.commentRepo.List(ctx, limit, offset)
}

func (s *CommentService) ListCommentsByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID, 0); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByPost(ctx, postID)
}

func (s *CommentService) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	return s.commentRepo.GetByID(ctx, id)
}

func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canModify(ctx, in.RequesterID, comment.UserID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.NewForbiddenError("Only the author or an admin can modify this comment.")
	}

	if in.Content == "" {
		return nil, models.NewValidationError("Content is required.")
	}

	comment.Content = in.Content
	if err := s.commentRepo.Update(ctx, comment); err != nil {
		return nil, err
	}

	return s.commentRepo.GetByID(ctx, comment.ID)
}

func (s *CommentService) DeleteComment(ctx context.Context, requesterID, commentID uint) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return err
	}

	allowed, err := s.canModify(ctx, requesterID, comment.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		return models.NewForbiddenError("Only the author or an admin can delete this comment.")
	}

	return s.commentRepo.Delete(ctx, commentID)
}
