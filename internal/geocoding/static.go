package geocoding

import (
	"context"
	"strings"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	errs "place-registry/pkg/errors"
)

// DefaultLocation is returned by Static for addresses it has no entry for.
var DefaultLocation = models.Location{Lat: 40.7484474, Lng: -73.9871516}

// Static is an offline geocoder for development. Known addresses map to
// fixed coordinates; anything else resolves to Fallback when set.
type Static struct {
	Known    map[string]models.Location
	Fallback *models.Location
}

var _ domain.Geocoder = (*Static)(nil)

// NewStatic returns a Static geocoder that resolves every non-empty address.
func NewStatic() *Static {
	fb := DefaultLocation
	return &Static{Known: map[string]models.Location{}, Fallback: &fb}
}

func (s *Static) Resolve(_ context.Context, address string) (models.Location, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key != "" {
		if loc, ok := s.Known[key]; ok {
			return loc, nil
		}
		if s.Fallback != nil {
			return *s.Fallback, nil
		}
	}
	return models.Location{}, errs.NewGeocoding("geocoding.Static", address, unresolvedMsg, nil)
}
