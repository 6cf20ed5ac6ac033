package models

import (
	"time"
)

// Location is always derived from Place.Address through the geocoder.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Place struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Address     string    `json:"address" db:"address"`
	Location    Location  `json:"location"`
	Image       string    `json:"image" db:"image"`
	CreatorID   string    `json:"creator" db:"creator_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PlaceWithOwner is the single resolved view used by delete: the place and
// the user it references, loaded together.
type PlaceWithOwner struct {
	Place Place
	Owner User
}
