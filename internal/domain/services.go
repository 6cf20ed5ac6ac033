package domain

import (
	"context"
	"io"

	"place-registry/internal/models"
)

// Geocoder turns an address into coordinates. Unresolvable addresses fail
// with *errors.GeocodingError.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (models.Location, error)
}

// ImageStore persists uploaded binaries and returns a stable reference.
type ImageStore interface {
	Store(ctx context.Context, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}
