package geocoding

import (
	"context"
	"errors"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"place-registry/internal/domain"
	"place-registry/internal/models"
	"place-registry/pkg/circuit"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
	"place-registry/pkg/metrics"
)

const unresolvedMsg = "could not find location for the specified address"

// GoogleClient resolves addresses through the Google Maps Geocoding API.
// Calls run through a circuit breaker; an open breaker fails fast.
type GoogleClient struct {
	client  *maps.Client
	breaker *circuit.Breaker
	log     *logging.ComponentLogger
}

var _ domain.Geocoder = (*GoogleClient)(nil)

// NewGoogleClient builds a client for apiKey. Extra maps options (for
// example maps.WithBaseURL in tests) are passed through.
func NewGoogleClient(apiKey string, timeout time.Duration, log *logging.Logger, reg *metrics.Registry, opts ...maps.ClientOption) (*GoogleClient, error) {
	if log == nil {
		log = logging.NewNop()
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &GoogleClient{
		client: client,
		breaker: circuit.New(circuit.Config{
			Name:              "geocode",
			OperationTimeout:  timeout,
			OpenFor:           30 * time.Second,
			MaxConsecFailures: 5,
			SlowCallThreshold: 2 * time.Second,
		}, log, reg),
		log: log.WithComponent("geocoding"),
	}, nil
}

func (g *GoogleClient) Resolve(ctx context.Context, address string) (models.Location, error) {
	const op = "geocoding.Resolve"
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Location{}, errs.NewGeocoding(op, address, unresolvedMsg, nil)
	}

	var loc models.Location
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
		if err != nil {
			if isPermanent(err) {
				return &circuit.Permanent{Err: err}
			}
			return err
		}
		if len(results) == 0 {
			return &circuit.Permanent{Err: errors.New("maps: ZERO_RESULTS")}
		}
		loc = models.Location{
			Lat: results[0].Geometry.Location.Lat,
			Lng: results[0].Geometry.Location.Lng,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			g.log.Warn("geocoder unavailable, breaker open", err, logging.String("address", address))
		} else {
			g.log.Debug("geocoding failed", logging.String("address", address), logging.String("error", err.Error()))
		}
		return models.Location{}, errs.NewGeocoding(op, address, unresolvedMsg, err)
	}
	return loc, nil
}

// State reports the breaker state for health checks.
func (g *GoogleClient) State() circuit.State { return g.breaker.State() }

// isPermanent reports API statuses caused by the address itself.
func isPermanent(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ZERO_RESULTS") || strings.Contains(msg, "INVALID_REQUEST")
}
