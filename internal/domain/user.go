package domain

import (
	"time"

	"github.com/google/uuid"

	"chatcore-backend/pkg/constants"
)

// User represents a chat identity
// Maps to CockroachDB users table
type User struct {
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	Username        string    `json:"username" db:"username"`
	AvatarURL       *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	AutoDeleteHours int       `json:"auto_delete_hours" db:"auto_delete_hours"` // message TTL preference
	LastActivity    time.Time `json:"last_activity" db:"last_activity"`
	IsOnline        bool      `json:"-" db:"is_online"` // stored flag, see Online
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Online reports derived presence: the stored flag is set and activity is recent
func (u *User) Online(now time.Time) bool {
	return u.IsOnline && now.Sub(u.LastActivity) <= constants.OnlineWindow
}

// MessageTTL is the lifetime given to messages this user sends
func (u *User) MessageTTL() time.Duration {
	return time.Duration(u.AutoDeleteHours) * time.Hour
}

// UserResponse is the user representation returned to clients
type UserResponse struct {
	UserID          uuid.UUID `json:"user_id"`
	Username        string    `json:"username"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	AutoDeleteHours int       `json:"auto_delete_hours"`
	IsOnline        bool      `json:"is_online"`
	LastActivity    time.Time `json:"last_activity"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToResponse converts User to UserResponse with presence evaluated at now
func (u *User) ToResponse(now time.Time) *UserResponse {
	return &UserResponse{
		UserID:          u.UserID,
		Username:        u.Username,
		AvatarURL:       u.AvatarURL,
		AutoDeleteHours: u.AutoDeleteHours,
		IsOnline:        u.Online(now),
		LastActivity:    u.LastActivity,
		CreatedAt:       u.CreatedAt,
	}
}
