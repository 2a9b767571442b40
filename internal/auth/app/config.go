package app

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/crm/pkg/httpx"
	"github.com/aussiebroadwan/crm/pkg/jwtx"
	"github.com/joho/godotenv"
)

type Config struct {
	SigningSecret  string // Required: HS256 secret, at least 32 bytes
	Issuer         string // Optional: iss claim stamped on access tokens (default: crm-auth)
	BootstrapToken string // Optional: token required to perform bootstrap over HTTP

	AccessTTL     time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTTL    time.Duration // Optional: refresh credential lifetime (default: 7d)
	RememberMeTTL time.Duration // Optional: refresh lifetime with remember-me (default: 30d)

	CookieDomain string // Optional: Domain attribute of the session cookies
	LandingPath  string // Optional: where the login route sends signed-in callers

	TrustedProxies []netip.Prefix // Optional: peers allowed to set X-Forwarded-For (default: none)

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile           string        // Optional: path to file containing pepper for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, production) (default: production)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// ConfigError reports configuration that prevents the service from starting.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first; variables already set win.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Issuer:               getEnvOrDefault("AUTH_ISSUER", "crm-auth"),
		BootstrapToken:       os.Getenv("BOOTSTRAP_TOKEN"),
		AccessTTL:            getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:           getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		RememberMeTTL:        getEnvDurationOrDefault("AUTH_REMEMBER_ME_TTL", jwtx.DefaultRememberMeTTL),
		CookieDomain:         os.Getenv("AUTH_COOKIE_DOMAIN"),
		LandingPath:          getEnvOrDefault("AUTH_LANDING_PATH", "/v1/auth/me"),
		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "production"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	proxies, err := httpx.ParseTrustedProxies(os.Getenv("AUTH_TRUSTED_PROXIES"))
	if err != nil {
		return cfg, &ConfigError{Key: "AUTH_TRUSTED_PROXIES", Reason: err.Error()}
	}
	cfg.TrustedProxies = proxies

	secret, err := loadSecret("AUTH_SIGNING_SECRET")
	if err != nil {
		return cfg, err
	}
	cfg.SigningSecret = secret

	return cfg, cfg.Validate()
}

// Validate reports the first setting that would leave the service unable to
// authenticate anyone.
func (c Config) Validate() error {
	switch {
	case c.SigningSecret == "":
		return &ConfigError{Key: "AUTH_SIGNING_SECRET", Reason: "is required"}
	case len(c.SigningSecret) < jwtx.MinSecretLength:
		return &ConfigError{Key: "AUTH_SIGNING_SECRET", Reason: fmt.Sprintf("must be at least %d bytes", jwtx.MinSecretLength)}
	case c.AccessTTL <= 0:
		return &ConfigError{Key: "AUTH_ACCESS_TTL", Reason: "must be positive"}
	case c.RefreshTTL < c.AccessTTL:
		return &ConfigError{Key: "AUTH_REFRESH_TTL", Reason: "must not be shorter than AUTH_ACCESS_TTL"}
	case c.RememberMeTTL < c.RefreshTTL:
		return &ConfigError{Key: "AUTH_REMEMBER_ME_TTL", Reason: "must not be shorter than AUTH_REFRESH_TTL"}
	}
	return nil
}

// SecureCookies reports whether session cookies carry the Secure attribute.
// It is true unless ENV explicitly names a local environment.
func (c Config) SecureCookies() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "local", "test":
		return false
	default:
		return true
	}
}

// loadSecret reads key from the environment, or from the file named by
// key_FILE when key itself is unset.
func loadSecret(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &ConfigError{Key: key + "_FILE", Reason: "file does not exist"}
		}
		return "", &ConfigError{Key: key + "_FILE", Reason: err.Error()}
	}
	return strings.TrimSpace(string(raw)), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
