package models

import (
	"time"
)

// Roles a user can hold.
const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)

// User represents a registered account holder.
// Contacts and Channels are loaded from association tables.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Photo        string    `json:"photo,omitempty"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"-"`
	Contacts     []int64   `json:"contacts"`
	Channels     []int64   `json:"channels"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// HasContact reports whether id is in the user's contact list.
func (u *User) HasContact(id int64) bool {
	for _, c := range u.Contacts {
		if c == id {
			return true
		}
	}
	return false
}

// UserDTO is the client-facing projection of a User.
type UserDTO struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Photo    string  `json:"photo,omitempty"`
	Role     string  `json:"role"`
	Contacts []int64 `json:"contacts"`
	Channels []int64 `json:"channels"`
}

// ToDTO strips credentials and timestamps.
// Empty lists collapse to nil so they serialize as null.
func (u *User) ToDTO() UserDTO {
	return UserDTO{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Photo:    u.Photo,
		Role:     u.Role,
		Contacts: nilIfEmpty(u.Contacts),
		Channels: nilIfEmpty(u.Channels),
	}
}

func nilIfEmpty(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
