package domain

import (
	"context"

	"place-registry/internal/models"
)

// PlaceRepository defines data access for places. Missing rows are reported
// as *errors.NotFoundError.
type PlaceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Place, error)
	FindByOwner(ctx context.Context, ownerID string) ([]models.Place, error)
	// FindWithOwner loads the place joined with its creator in a single read.
	FindWithOwner(ctx context.Context, id string) (*models.PlaceWithOwner, error)
	// Update persists title and description of an existing place.
	Update(ctx context.Context, p *models.Place) error

	SaveTx(ctx context.Context, scope Scope, p *models.Place) error
	DeleteTx(ctx context.Context, scope Scope, id string) error
}

// UserRepository defines user data access including the owned-places collection.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, u *models.User) error

	// FindByIDForUpdate reads the user inside scope and locks it until the
	// scope ends, serializing concurrent writers of the same collection.
	FindByIDForUpdate(ctx context.Context, scope Scope, id string) (*models.User, error)
	// SaveTx persists the user's places collection inside scope.
	SaveTx(ctx context.Context, scope Scope, u *models.User) error
}
