package models

import "time"

// Like records that a user liked a post. The (UserID, PostID) pair is unique,
// which is what makes the toggle race-safe: concurrent inserts for the same
// pair conflict instead of double-applying. Unliking hard-deletes the row so
// like counts stay honest.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_user_post" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}
