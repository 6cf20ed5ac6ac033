package models

import (
	"slices"
	"time"
)

type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Image        string    `json:"image" db:"image"`
	Places       []string  `json:"places"` // ids of owned places, in creation order
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// OwnsPlace reports whether id is in the user's collection.
func (u *User) OwnsPlace(id string) bool {
	return slices.Contains(u.Places, id)
}

// AddPlace appends id unless already present.
func (u *User) AddPlace(id string) {
	if !u.OwnsPlace(id) {
		u.Places = append(u.Places, id)
	}
}

// RemovePlace drops id from the collection and reports whether it was there.
func (u *User) RemovePlace(id string) bool {
	i := slices.Index(u.Places, id)
	if i < 0 {
		return false
	}
	u.Places = slices.Delete(u.Places, i, i+1)
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (u User) Clone() User {
	u.Places = slices.Clone(u.Places)
	return u
}
