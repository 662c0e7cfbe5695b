// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"inkwell/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options configuration for the seeder.
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
}

// DefaultPassword is the password every seeded account gets, so seeded users
// can be logged in during development.
const DefaultPassword = "pw123"

// Seed populates the database with fake users, an admin, posts, comments,
// and likes.
func Seed(db *gorm.DB, opts Options) error {
	gofakeit.Seed(time.Now().UnixNano())

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("warning: could not clear all existing data, continuing anyway")
		}
	}

	users, err := createUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("%d users created", len(users))

	if err := ensureAdmin(db, users); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	posts, err := createPosts(db, users, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create posts: %w", err)
	}
	log.Printf("%d posts created", len(posts))

	if err := createComments(db, users, posts); err != nil {
		return fmt.Errorf("failed to create comments: %w", err)
	}
	if err := createLikes(db, users, posts); err != nil {
		return fmt.Errorf("failed to create likes: %w", err)
	}

	return nil
}

func clearData(db *gorm.DB) error {
	// Delete in dependency order; the join table goes with its groups.
	for _, table := range []string{"likes", "comments", "posts", "user_groups", "groups", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}

func createUsers(db *gorm.DB, n int) ([]*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		username := fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), i)
		if len(username) > 30 {
			username = username[:30]
		}
		user := &models.User{
			Username: username,
			Email:    fmt.Sprintf("%d.%s", i, gofakeit.Email()),
			Password: string(hashed),
		}
		if err := db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// ensureAdmin puts the first seeded user into the Admin group.
func ensureAdmin(db *gorm.DB, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}

	group := models.Group{Name: models.AdminGroupName}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&group).Error; err != nil {
		return err
	}
	if err := db.Where("name = ?", models.AdminGroupName).First(&group).Error; err != nil {
		return err
	}

	return db.Exec(
		"INSERT INTO user_groups (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		group.ID, users[0].ID,
	).Error
}

func createPosts(db *gorm.DB, users []*models.User, n int) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		author := users[rand.Intn(len(users))]
		post := &models.Post{
			Title:   gofakeit.Sentence(5),
			Content: gofakeit.Paragraph(1, 3, 5, "\n"),
			UserID:  author.ID,
		}
		if err := db.Create(post).Error; err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func createComments(db *gorm.DB, users []*models.User, posts []*models.Post) error {
	for _, post := range posts {
		for i := 0; i < rand.Intn(4); i++ {
			comment := &models.Comment{
				Content: gofakeit.Sentence(8),
				PostID:  post.ID,
				UserID:  users[rand.Intn(len(users))].ID,
			}
			if err := db.Create(comment).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func createLikes(db *gorm.DB, users []*models.User, posts []*models.Post) error {
	for _, post := range posts {
		for _, user := range users {
			if rand.Intn(4) != 0 {
				continue
			}
			like := &models.Like{UserID: user.ID, PostID: post.ID}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(like).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
