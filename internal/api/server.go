// Package api exposes places and users over HTTP.
package api

import (
	"context"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"place-registry/internal/auth"
	"place-registry/internal/domain"
	"place-registry/internal/places"
	"place-registry/internal/users"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
	"place-registry/pkg/metrics"
)

// Config holds transport settings.
type Config struct {
	MaxUploadBytes int64
	UploadDir      string // served statically when set
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	places  *places.Service
	users   *users.Service
	images  domain.ImageStore
	janitor *places.ImageJanitor
	auth    *auth.Middleware
	health  http.Handler
	metrics http.Handler
	cfg     Config
	log     *logging.ComponentLogger

	mLatency *metrics.Histogram
	mErrors  *metrics.Counter
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Places  *places.Service
	Users   *users.Service
	Images  domain.ImageStore
	Janitor *places.ImageJanitor
	Tokens  *auth.Tokens
	Health  http.Handler
	Metrics http.Handler
	Logger  *logging.Logger

	// Registry receives request metrics. Defaults to metrics.Default.
	Registry *metrics.Registry
}

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}

func NewServer(d Deps, cfg Config) *Server {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Registry == nil {
		d.Registry = metrics.Default
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	s := &Server{
		places:  d.Places,
		users:   d.Users,
		images:  d.Images,
		janitor: d.Janitor,
		health:  d.Health,
		metrics: d.Metrics,
		cfg:     cfg,
		log:     d.Logger.WithComponent("api"),

		mLatency: d.Registry.Histogram("http_request_duration_ms", "HTTP request latency (ms)", latencyBuckets),
		mErrors:  d.Registry.Counter("http_server_errors_total", "Responses with a 5xx status"),
	}
	s.auth = auth.NewMiddleware(d.Tokens, s.unauthorized)
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestContext, cors)

	if s.health != nil {
		r.Handle("/health", s.health).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	if s.cfg.UploadDir != "" {
		// image references are paths under UploadDir, served as-is
		prefix := uploadPrefix(s.cfg.UploadDir)
		r.PathPrefix(prefix).Methods(http.MethodGet).
			Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.UploadDir))))
	}

	api := r.PathPrefix("/api").Subrouter()

	pl := api.PathPrefix("/places").Subrouter()
	pl.HandleFunc("/user/{uid}", s.getPlacesByUser).Methods(http.MethodGet)
	pl.HandleFunc("/{pid}", s.getPlace).Methods(http.MethodGet)

	protected := api.PathPrefix("/places").Subrouter()
	protected.Use(s.auth.Handler)
	protected.HandleFunc("", s.createPlace).Methods(http.MethodPost)
	protected.HandleFunc("/{pid}", s.updatePlace).Methods(http.MethodPatch)
	protected.HandleFunc("/{pid}", s.deletePlace).Methods(http.MethodDelete)

	us := api.PathPrefix("/users").Subrouter()
	us.HandleFunc("", s.listUsers).Methods(http.MethodGet)
	us.HandleFunc("/signup", s.signup).Methods(http.MethodPost)
	us.HandleFunc("/login", s.login).Methods(http.MethodPost)

	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: errs.CodeNotFound, Message: "could not find this route"})
	})
	return r
}

// uploadPrefix is the URL path under which refs stored in dir are served.
// Refs are cleaned slash paths, so the prefix is cleaned the same way.
func uploadPrefix(dir string) string {
	return "/" + strings.Trim(path.Clean(filepath.ToSlash(dir)), "/") + "/"
}

// requestContext tags the request with an id, records its latency and logs
// its outcome.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), logging.RequestIDKey, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(start)
		s.mLatency.Observe(float64(elapsed.Microseconds()) / 1000)
		if rec.status >= http.StatusInternalServerError {
			s.mErrors.Inc(1)
		}
		s.log.Ctx(ctx).Debug("request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", elapsed))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE")
		next.ServeHTTP(w, r)
	})
}
