package repository

import (
	"context"
	"errors"

	"inkwell/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupRepository defines persistence operations for roles and memberships.
type GroupRepository interface {
	// GetOrCreate returns the named group, creating it if absent. Concurrent
	// calls for the same name never produce duplicates.
	GetOrCreate(ctx context.Context, name string) (*models.Group, error)
	AddUser(ctx context.Context, groupID, userID uint) error
	IsMember(ctx context.Context, userID uint, name string) (bool, error)
	HasMembers(ctx context.Context, name string) (bool, error)
}

type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository returns a new GroupRepository implementation.
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) GetOrCreate(ctx context.Context, name string) (*models.Group, error) {
	// Upsert on the unique name so two racing callers insert at most one row,
	// then read whichever row won.
	create := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(&models.Group{Name: name})
	if create.Error != nil {
		return nil, models.NewInternalError(create.Error)
	}

	var group models.Group
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Group", name)
		}
		return nil, models.NewInternalError(err)
	}
	return &group, nil
}

func (r *groupRepository) AddUser(ctx context.Context, groupID, userID uint) error {
	// Idempotent on the join table's primary key.
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO user_groups (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		groupID, userID,
	).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *groupRepository) IsMember(ctx context.Context, userID uint, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("user_groups").
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("user_groups.user_id = ? AND groups.name = ?", userID, name).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *groupRepository) HasMembers(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("user_groups").
		Joins("JOIN groups ON groups.id = user_groups.group_id").
		Where("groups.name = ?", name).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}
