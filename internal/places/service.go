// Package places implements the place lifecycle: creation, lookup, update and
// deletion, keeping each place and its owner's collection in step.
package places

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
	"place-registry/pkg/metrics"
)

// Deps are the collaborators a Service needs.
type Deps struct {
	Places   domain.PlaceRepository
	Users    domain.UserRepository
	Scopes   domain.ScopeFactory
	Geocoder domain.Geocoder
	Janitor  *ImageJanitor
	Logger   *logging.Logger
	Metrics  *metrics.Registry
}

// Options tune behaviour that clients may depend on.
type Options struct {
	// EmptyOwnerAsError makes GetByOwner fail with NotFound when the owner
	// has no places instead of returning an empty slice.
	EmptyOwnerAsError bool
}

// CreateInput carries the fields a caller may set on a new place. Location
// is never accepted from input; it is resolved from Address.
type CreateInput struct {
	Title       string
	Description string
	Address     string
	Image       string
}

// UpdateInput carries the mutable fields of a place.
type UpdateInput struct {
	Title       string
	Description string
}

type Service struct {
	places   domain.PlaceRepository
	users    domain.UserRepository
	scopes   domain.ScopeFactory
	geocoder domain.Geocoder
	janitor  *ImageJanitor
	log      *logging.ComponentLogger
	opts     Options
	now      func() time.Time

	mCreated  *metrics.Counter
	mDeleted  *metrics.Counter
	mTxFailed *metrics.Counter
}

func NewService(d Deps, opts Options) *Service {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Default
	}
	return &Service{
		places:    d.Places,
		users:     d.Users,
		scopes:    d.Scopes,
		geocoder:  d.Geocoder,
		janitor:   d.Janitor,
		log:       d.Logger.WithComponent("places"),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		mCreated:  d.Metrics.Counter("places_created_total", "Places created"),
		mDeleted:  d.Metrics.Counter("places_deleted_total", "Places deleted"),
		mTxFailed: d.Metrics.Counter("place_tx_failures_total", "Place transactions rolled back"),
	}
}

// Create geocodes the address, then stores the place and links it into the
// caller's collection in one scope.
func (s *Service) Create(ctx context.Context, in CreateInput, callerID string) (*models.Place, error) {
	const op = "places.Create"

	loc, err := s.geocoder.Resolve(ctx, in.Address)
	if err != nil {
		if !errs.Is(err, errs.ErrGeocoding) {
			err = errs.NewGeocoding(op, in.Address, "could not find location for the specified address", err)
		}
		return nil, err
	}

	if _, err := s.users.FindByID(ctx, callerID); err != nil {
		return nil, err
	}

	now := s.now()
	place := &models.Place{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Address:     strings.TrimSpace(in.Address),
		Location:    loc,
		Image:       in.Image,
		CreatorID:   callerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	scope, err := s.scopes.Begin(ctx)
	if err != nil {
		return nil, s.txFailed(ctx, op, nil, place.ID, err, "creating place failed, please try again")
	}
	defer scope.Rollback()

	owner, err := s.users.FindByIDForUpdate(ctx, scope, callerID)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			s.abort(ctx, scope)
			return nil, err
		}
		return nil, s.txFailed(ctx, op, scope, place.ID, err, "creating place failed, please try again")
	}
	if err := s.places.SaveTx(ctx, scope, place); err != nil {
		return nil, s.txFailed(ctx, op, scope, place.ID, err, "creating place failed, please try again")
	}
	owner.AddPlace(place.ID)
	if err := s.users.SaveTx(ctx, scope, owner); err != nil {
		return nil, s.txFailed(ctx, op, scope, place.ID, err, "creating place failed, please try again")
	}
	if err := scope.Commit(); err != nil {
		return nil, s.txFailed(ctx, op, nil, place.ID, err, "creating place failed, please try again")
	}

	s.mCreated.Inc(1)
	s.log.Ctx(ctx).Info("place created",
		logging.String("place_id", place.ID), logging.String("user_id", callerID))
	return place, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.Place, error) {
	return s.places.FindByID(ctx, id)
}

// GetByOwner lists the places created by ownerID, oldest first.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) ([]models.Place, error) {
	list, err := s.places.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 && s.opts.EmptyOwnerAsError {
		return nil, errs.NewNotFound("places.GetByOwner", "places", ownerID)
	}
	return list, nil
}

// Update changes title and description. Only the creator may update.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, callerID string) (*models.Place, error) {
	const op = "places.Update"

	place, err := s.places.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if place.CreatorID != callerID {
		return nil, errs.NewAuthorization(op, callerID, "you are not allowed to edit this place")
	}

	updated := *place
	updated.Title = strings.TrimSpace(in.Title)
	updated.Description = strings.TrimSpace(in.Description)
	updated.UpdatedAt = s.now()
	if err := s.places.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the place and unlinks it from its owner in one scope. The
// image is deleted after commit, off the request path.
func (s *Service) Delete(ctx context.Context, id, callerID string) error {
	const op = "places.Delete"

	view, err := s.places.FindWithOwner(ctx, id)
	if err != nil {
		return err
	}
	if view.Owner.ID != callerID {
		return errs.NewAuthorization(op, callerID, "you are not allowed to delete this place")
	}

	scope, err := s.scopes.Begin(ctx)
	if err != nil {
		return s.txFailed(ctx, op, nil, id, err, "could not delete place, please try again")
	}
	defer scope.Rollback()

	owner, err := s.users.FindByIDForUpdate(ctx, scope, view.Owner.ID)
	if err != nil {
		return s.txFailed(ctx, op, scope, id, err, "could not delete place, please try again")
	}
	if err := s.places.DeleteTx(ctx, scope, id); err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			// deleted concurrently; nothing left to do
			s.abort(ctx, scope)
			return err
		}
		return s.txFailed(ctx, op, scope, id, err, "could not delete place, please try again")
	}
	owner.RemovePlace(id)
	if err := s.users.SaveTx(ctx, scope, owner); err != nil {
		return s.txFailed(ctx, op, scope, id, err, "could not delete place, please try again")
	}
	if err := scope.Commit(); err != nil {
		return s.txFailed(ctx, op, nil, id, err, "could not delete place, please try again")
	}

	s.mDeleted.Inc(1)
	s.log.Ctx(ctx).Info("place deleted", logging.String("place_id", id), logging.String("user_id", callerID))
	if s.janitor != nil {
		s.janitor.Enqueue(view.Place.Image)
	}
	return nil
}

// abort rolls scope back, logging rather than returning a rollback failure.
func (s *Service) abort(ctx context.Context, scope domain.Scope) {
	if err := scope.Rollback(); err != nil {
		s.log.Ctx(ctx).Error("rollback failed", err)
	}
}

func (s *Service) txFailed(ctx context.Context, op string, scope domain.Scope, placeID string, cause error, msg string) error {
	if scope != nil {
		s.abort(ctx, scope)
	}
	s.mTxFailed.Inc(1)
	s.log.Ctx(ctx).Error("place transaction failed", cause, logging.String("op", op), logging.String("place_id", placeID))
	return errs.NewTransaction(op, msg, cause)
}
