package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/validation"
)

type UserService struct {
	userRepo  repository.UserRepository
	groupRepo repository.GroupRepository
	isAdmin   func(ctx context.Context, userID uint) (bool, error)
}

type RegisterUserInput struct {
	Username string
	Email    string
	Password string
}

type UpdateUserInput struct {
	RequesterID uint
	UserID      uint
	Username    string
	Email       string
	Password    string
}

func NewUserService(
	userRepo repository.UserRepository,
	groupRepo repository.GroupRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		groupRepo: groupRepo,
		isAdmin:   isAdmin,
	}
}

func validateRegistration(in RegisterUserInput) error {
	if err := validation.ValidateUsername(in.Username); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

// Register creates a regular account. Uniqueness is enforced by the database,
// so two concurrent registrations with the same username cannot both succeed.
func (s *UserService) Register(ctx context.Context, in RegisterUserInput) (*models.User, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RegisterAdmin creates an account and places it in the Admin group, both or
// neither: a failure to assign the group removes the half-created user.
func (s *UserService) RegisterAdmin(ctx context.Context, in RegisterUserInput) (*models.User, error) {
	user, err := s.Register(ctx, in)
	if err != nil {
		return nil, err
	}

	group, err := s.groupRepo.GetOrCreate(ctx, models.AdminGroupName)
	if err == nil {
		err = s.groupRepo.AddUser(ctx, group.ID, user.ID)
	}
	if err != nil {
		_ = s.userRepo.Delete(ctx, user.ID)
		return nil, models.NewInternalError(err)
	}
	return user, nil
}

// HasAdmins reports whether any account holds the Admin role. Used to gate
// admin creation once the system is bootstrapped.
func (s *UserService) HasAdmins(ctx context.Context) (bool, error) {
	return s.groupRepo.HasMembers(ctx, models.AdminGroupName)
}

// Authenticate verifies a username/password pair. Unknown usernames and wrong
// passwords are indistinguishable to the caller, and both cost a bcrypt
// comparison so response timing does not leak which one it was.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, models.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewInvalidCredentialsError()
	}
	return user, nil
}

// dummyHash is a bcrypt digest of a throwaway value, compared against when
// the username does not exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

// UpdateUser applies the provided (non-empty) fields to the account. Only the
// account owner or an admin may do so. The account is read fresh, never from
// the cache: a cached copy has no password hash, and saving one back would
// blank the stored hash.
func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*models.User, error) {
	user, err := s.userRepo.GetForUpdate(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canModify(ctx, in.RequesterID, in.UserID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, models.NewForbiddenError("Only the account owner or an admin can modify this user.")
	}

	if in.Username != "" {
		if err := validation.ValidateUsername(in.Username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = in.Username
	}
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Email = in.Email
	}
	if in.Password != "" {
		if err := validation.ValidatePassword(in.Password); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		user.Password = string(hashed)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser soft-deletes the account and revokes its live sessions. Posts
// and comments the account authored are retained.
func (s *UserService) DeleteUser(ctx context.Context, requesterID, userID uint, revoke func(ctx context.Context, userID uint) error) error {
	if _, err := s.userRepo.GetForUpdate(ctx, userID); err != nil {
		return err
	}

	allowed, err := s.canModify(ctx, requesterID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return models.NewForbiddenError("Only the account owner or an admin can delete this user.")
	}

	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return err
	}
	if revoke != nil {
		if err := revoke(ctx, userID); err != nil {
			return models.NewInternalError(err)
		}
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

func (s *UserService) canModify(ctx context.Context, requesterID, targetID uint) (bool, error) {
	if requesterID == targetID {
		return true, nil
	}
	if s.isAdmin == nil {
		return false, nil
	}
	return s.isAdmin(ctx, requesterID)
}
