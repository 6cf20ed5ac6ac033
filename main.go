package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"place-registry/internal/api"
	"place-registry/internal/auth"
	"place-registry/internal/domain"
	"place-registry/internal/geocoding"
	"place-registry/internal/imagestore"
	"place-registry/internal/infrastructure/repository"
	"place-registry/internal/places"
	"place-registry/internal/users"
	"place-registry/pkg/circuit"
	"place-registry/pkg/config"
	"place-registry/pkg/container"
	"place-registry/pkg/database"
	"place-registry/pkg/health"
	"place-registry/pkg/logging"
	"place-registry/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.LogConfig{
		Level:       logging.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		EnableAsync: cfg.IsProduction(),
		BufferSize:  1024,
	})
	defer logger.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	c, err := wire(cfg, logger)
	if err != nil {
		return err
	}

	var (
		db      *database.DB
		janitor *places.ImageJanitor
		server  *api.Server
	)
	if err := c.Invoke(func(d *database.DB, j *places.ImageJanitor, s *api.Server) {
		db, janitor, server = d, j, s
	}); err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = db.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", logging.String("port", cfg.Port), logging.Any("config", cfg.Summary()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", err)
		}
		// deletes queued by requests that just finished still run
		if err := janitor.Close(shutdownCtx); err != nil {
			logger.Error("image janitor shutdown", err)
		}
		logger.Info("shutdown complete")
		return nil
	})
	return g.Wait()
}

// wire registers every component with the container.
func wire(cfg *config.Config, logger *logging.Logger) (*container.Container, error) {
	c := container.New()
	providers := []any{
		func() (*database.DB, error) { return database.NewWithConfig(cfg) },
		func(db *database.DB) *repository.SQLPlaceRepository { return repository.NewSQLPlaceRepository(db) },
		func(db *database.DB) *repository.SQLUserRepository { return repository.NewSQLUserRepository(db) },
		func(db *database.DB) *repository.SQLScopeFactory { return repository.NewSQLScopeFactory(db) },
		func() (domain.Geocoder, error) {
			if cfg.Geocoder == "static" {
				return geocoding.NewStatic(), nil
			}
			return geocoding.NewGoogleClient(cfg.GoogleMapsAPIKey, cfg.GeocodeTimeout, logger, metrics.Default)
		},
		func() (domain.ImageStore, error) {
			if cfg.ImageStore == "gcs" {
				return imagestore.NewGCSStore(context.Background(), cfg.GCSBucket, cfg.MaxUploadBytes())
			}
			return imagestore.NewLocalStore(cfg.UploadDir, cfg.MaxUploadBytes())
		},
		func(store domain.ImageStore) *places.ImageJanitor {
			return places.NewImageJanitor(store, cfg.ImageCleanupWorkers, cfg.ImageCleanupQueue, logger, metrics.Default)
		},
		func(p domain.PlaceRepository, u domain.UserRepository, s domain.ScopeFactory, g domain.Geocoder, j *places.ImageJanitor) *places.Service {
			return places.NewService(places.Deps{
				Places: p, Users: u, Scopes: s, Geocoder: g, Janitor: j,
				Logger: logger, Metrics: metrics.Default,
			}, places.Options{EmptyOwnerAsError: cfg.EmptyOwnerPlacesAsError})
		},
		func() *auth.Tokens { return auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL) },
		func(u domain.UserRepository, t *auth.Tokens) *users.Service { return users.NewService(u, t, logger) },
		func(db *database.DB, g domain.Geocoder) *health.Manager {
			m := health.NewManager(5*time.Second, logger)
			m.Register(health.NewDatabaseChecker(db))
			if b, ok := g.(interface{ State() circuit.State }); ok {
				m.Register(health.NewBreakerChecker("geocoder", b))
			}
			return m
		},
		func(ps *places.Service, us *users.Service, img domain.ImageStore, j *places.ImageJanitor, t *auth.Tokens, hm *health.Manager) *api.Server {
			uploadDir := ""
			if cfg.ImageStore != "gcs" {
				uploadDir = cfg.UploadDir
			}
			return api.NewServer(api.Deps{
				Places: ps, Users: us, Images: img, Janitor: j, Tokens: t,
				Health: hm.Handler(), Metrics: metrics.Handler(), Logger: logger,
				Registry: metrics.Default,
			}, api.Config{MaxUploadBytes: cfg.MaxUploadBytes(), UploadDir: uploadDir})
		},
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}
