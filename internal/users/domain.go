package users

import (
	"time"

	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// User represents a user account for management.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Principal converts the account into the authorization view.
func (u User) Principal() rbac.Principal {
	p := rbac.Principal{ID: u.ID, Email: u.Email, Name: u.Name, Active: u.IsActive}
	if u.LastLoginAt != nil {
		p.LastLoginAt = *u.LastLoginAt
	}
	return p
}

// Page is one page of the user listing.
type Page struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}
