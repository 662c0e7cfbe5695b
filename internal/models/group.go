package models

import "time"

// AdminGroupName is the well-known role granting elevated permissions.
// The group is created lazily on first use.
const AdminGroupName = "Admin"

// Group is a named role. Membership is kept in the user_groups join table.
type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	Users     []User    `gorm:"many2many:user_groups" json:"users,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
