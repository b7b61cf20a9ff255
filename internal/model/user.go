package model

import "time"

// User roles. Every account is exactly one of these; admins may act on
// any conversation, users only on their own.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the account row as consumed from the external auth system.
// Password/session handling lives outside this service.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	EmailNotifications bool      `json:"email_notifications"`
	CreatedAt          time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
