package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        string `yaml:"port"`
	Env         string `yaml:"env"` // development, staging, production

	// Database performance settings
	DBMaxOpenConns    int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int           `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime"`
	DBReadTimeout     time.Duration `yaml:"db_read_timeout"`
	DBWriteTimeout    time.Duration `yaml:"db_write_timeout"`

	// Geocoding
	Geocoder         string        `yaml:"geocoder"` // "google" or "static"
	GoogleMapsAPIKey string        `yaml:"google_maps_api_key"`
	GeocodeTimeout   time.Duration `yaml:"geocode_timeout"`

	// Image storage
	ImageStore  string `yaml:"image_store"` // "local" or "gcs"
	UploadDir   string `yaml:"upload_dir"`
	GCSBucket   string `yaml:"gcs_bucket"`
	MaxUploadMB int    `yaml:"max_upload_mb"`

	// Post-commit image cleanup
	ImageCleanupWorkers int `yaml:"image_cleanup_workers"`
	ImageCleanupQueue   int `yaml:"image_cleanup_queue"`

	// Auth
	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// EmptyOwnerPlacesAsError keeps the legacy behaviour of answering an
	// empty owner listing with NOT_FOUND.
	EmptyOwnerPlacesAsError bool `yaml:"empty_owner_places_as_error"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads configuration from the environment and then overlays the YAML
// file named by CONFIG_FILE, if any.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Env:         strings.ToLower(getEnv("ENV", "development")),

		DBMaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 10*time.Minute),
		DBReadTimeout:     getDuration("DB_READ_TIMEOUT", 8*time.Second),
		DBWriteTimeout:    getDuration("DB_WRITE_TIMEOUT", 6*time.Second),

		Geocoder:         strings.ToLower(getEnv("GEOCODER", "google")),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		GeocodeTimeout:   getDuration("GEOCODE_TIMEOUT", 10*time.Second),

		ImageStore:  strings.ToLower(getEnv("IMAGE_STORE", "local")),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads/images"),
		GCSBucket:   getEnv("GCS_BUCKET", ""),
		MaxUploadMB: getInt("MAX_UPLOAD_MB", 5),

		ImageCleanupWorkers: getInt("IMAGE_CLEANUP_WORKERS", 2),
		ImageCleanupQueue:   getInt("IMAGE_CLEANUP_QUEUE", 256),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getDuration("JWT_TTL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		EmptyOwnerPlacesAsError: getBool("EMPTY_OWNER_PLACES_AS_ERROR", true),

		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// overlayFile decodes a YAML document on top of cfg. Keys absent from the
// file keep their environment values.
func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// MaxUploadBytes returns the multipart upload limit.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return def
	}
	return v
}
