package config

import (
	"fmt"
	"strconv"
	"strings"

	errs "place-registry/pkg/errors"
)

// FieldError represents a single configuration problem
type FieldError struct {
	Field   string
	Value   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// ConfigValidator collects field errors
type ConfigValidator struct {
	errors []FieldError
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{errors: make([]FieldError, 0)}
}

func (cv *ConfigValidator) AddError(field, value, message string) {
	cv.errors = append(cv.errors, FieldError{Field: field, Value: value, Message: message})
}

func (cv *ConfigValidator) HasErrors() bool { return len(cv.errors) > 0 }

func (cv *ConfigValidator) GetErrors() []FieldError { return cv.errors }

func (cv *ConfigValidator) GetErrorsAsString() string {
	parts := make([]string, 0, len(cv.errors))
	for _, err := range cv.errors {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "\n")
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	validator := NewConfigValidator()

	c.validateRequired(validator)
	c.validateFormats(validator)
	c.validateRanges(validator)

	if validator.HasErrors() {
		return errs.NewValidation("config.Validate", fmt.Sprintf("configuration validation failed:\n%s", validator.GetErrorsAsString()), nil)
	}
	return nil
}

func (c *Config) validateRequired(v *ConfigValidator) {
	if c.DatabaseURL == "" {
		v.AddError("DATABASE_URL", c.DatabaseURL, "database URL is required")
	}
	if c.Geocoder == "google" && c.GoogleMapsAPIKey == "" {
		v.AddError("GOOGLE_MAPS_API_KEY", c.GoogleMapsAPIKey, "Google Maps API key is required when GEOCODER=google")
	}
	if c.ImageStore == "gcs" && c.GCSBucket == "" {
		v.AddError("GCS_BUCKET", c.GCSBucket, "bucket name is required when IMAGE_STORE=gcs")
	}
	if c.JWTSecret == "" {
		v.AddError("JWT_SECRET", c.JWTSecret, "token signing secret is required")
	}
	if c.Port == "" {
		v.AddError("PORT", c.Port, "port is required")
	}
}

func (c *Config) validateFormats(v *ConfigValidator) {
	if c.DatabaseURL != "" {
		// go-sql-driver DSN: user:pass@tcp(host:port)/dbname
		if !strings.Contains(c.DatabaseURL, "@") || !strings.Contains(c.DatabaseURL, "/") {
			v.AddError("DATABASE_URL", maskString(c.DatabaseURL, 8), "invalid database URL format")
		}
	}
	if c.Port != "" {
		if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
			v.AddError("PORT", c.Port, "invalid port number (must be 1-65535)")
		}
	}
	if !contains([]string{"google", "static"}, c.Geocoder) {
		v.AddError("GEOCODER", c.Geocoder, "must be one of: google, static")
	}
	if !contains([]string{"local", "gcs"}, c.ImageStore) {
		v.AddError("IMAGE_STORE", c.ImageStore, "must be one of: local, gcs")
	}
	if !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		v.AddError("LOG_LEVEL", c.LogLevel, "invalid log level (must be one of: debug, info, warn, error)")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		v.AddError("LOG_FORMAT", c.LogFormat, "invalid log format (must be 'json' or 'text')")
	}
}

func (c *Config) validateRanges(v *ConfigValidator) {
	if c.DBMaxOpenConns < 1 || c.DBMaxOpenConns > 1000 {
		v.AddError("DB_MAX_OPEN_CONNS", strconv.Itoa(c.DBMaxOpenConns), "max open connections must be between 1 and 1000")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		v.AddError("DB_MAX_IDLE_CONNS", strconv.Itoa(c.DBMaxIdleConns), "max idle connections must be between 0 and max open connections")
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 50 {
		v.AddError("MAX_UPLOAD_MB", strconv.Itoa(c.MaxUploadMB), "upload limit must be between 1 and 50 MB")
	}
	if c.ImageCleanupWorkers < 1 || c.ImageCleanupWorkers > 32 {
		v.AddError("IMAGE_CLEANUP_WORKERS", strconv.Itoa(c.ImageCleanupWorkers), "cleanup workers must be between 1 and 32")
	}
	if c.ImageCleanupQueue < 1 {
		v.AddError("IMAGE_CLEANUP_QUEUE", strconv.Itoa(c.ImageCleanupQueue), "cleanup queue must hold at least one entry")
	}
	if c.JWTTTL <= 0 {
		v.AddError("JWT_TTL", c.JWTTTL.String(), "token lifetime must be positive")
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Summary returns the configuration with secrets masked, for startup logs.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"database_url":        maskString(c.DatabaseURL, 8),
		"google_maps_api_key": maskString(c.GoogleMapsAPIKey, 6),
		"jwt_secret":          maskString(c.JWTSecret, 0),
		"port":                c.Port,
		"env":                 c.Env,
		"geocoder":            c.Geocoder,
		"image_store":         c.ImageStore,
		"upload_dir":          c.UploadDir,
		"gcs_bucket":          c.GCSBucket,
		"log_level":           c.LogLevel,
		"log_format":          c.LogFormat,
		"empty_owner_error":   c.EmptyOwnerPlacesAsError,
	}
}

// maskString masks sensitive strings for logging/display
func maskString(s string, keepFirst int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}
