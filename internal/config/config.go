// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development)
// or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string

	// StorefrontID names the storefront this instance serves; it is also
	// the Secret Manager secret holding the backend credentials.
	StorefrontID string

	// RedisAddr selects the session store. Empty means in-memory, which
	// loses sessions on restart and is only suitable for development.
	RedisAddr string

	// MinClientVersion, when set, is the lowest Shopsync-Client version
	// admitted past the version gate. Semver, with or without the "v".
	MinClientVersion string

	// StockTTLSeconds overrides the stock cache lifetime. Zero keeps the
	// default.
	StockTTLSeconds int

	// Backend holds storefront-specific settings (loaded from secrets).
	Backend BackendConfig
}

// BackendConfig contains the upstream endpoints and credentials for one
// storefront. In production this is loaded from Secret Manager as JSON;
// in development from individual env vars or CONFIG_FILE.
type BackendConfig struct {
	// CatalogURL is the product catalog service, the stock oracle's
	// upstream.
	CatalogURL string `json:"catalog_url"`

	// CommerceURL is the remote collection service holding authenticated
	// users' carts and wishlists. Optional: when empty the service runs
	// guest-only and never mirrors.
	CommerceURL string `json:"commerce_url,omitempty"`

	// AuthURL is the identity service used to verify bearer tokens.
	// Required whenever CommerceURL is set.
	AuthURL string `json:"auth_url,omitempty"`

	// APIKey authenticates this service to the catalog backend.
	APIKey string `json:"api_key,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", "8080"),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		StorefrontID:     os.Getenv("STOREFRONT_ID"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
	}

	if ttl := os.Getenv("STOCK_TTL_SECONDS"); ttl != "" {
		n, err := strconv.Atoi(ttl)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid STOCK_TTL_SECONDS %q", ttl)
		}
		cfg.StockTTLSeconds = n
	}

	// StorefrontID required in all environments
	if cfg.StorefrontID == "" {
		return nil, fmt.Errorf("STOREFRONT_ID environment variable required")
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading backend config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port             string        `json:"port"`
		Environment      string        `json:"environment"`
		LogLevel         string        `json:"log_level"`
		StorefrontID     string        `json:"storefront_id"`
		RedisAddr        string        `json:"redis_addr"`
		MinClientVersion string        `json:"min_client_version"`
		StockTTLSeconds  int           `json:"stock_ttl_seconds"`
		Backend          BackendConfig `json:"backend"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, "8080"),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		StorefrontID:     fileConfig.StorefrontID,
		RedisAddr:        fileConfig.RedisAddr,
		MinClientVersion: fileConfig.MinClientVersion,
		StockTTLSeconds:  fileConfig.StockTTLSeconds,
		Backend:          fileConfig.Backend,
	}

	if cfg.StorefrontID == "" {
		return nil, fmt.Errorf("storefront_id is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromEnv reads backend config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Backend = BackendConfig{
		CatalogURL:  os.Getenv("CATALOG_URL"),
		CommerceURL: os.Getenv("COMMERCE_URL"),
		AuthURL:     os.Getenv("AUTH_URL"),
		APIKey:      os.Getenv("CATALOG_API_KEY"),
	}
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Backend.CatalogURL == "" {
		return fmt.Errorf("catalog_url is required")
	}
	if _, err := url.Parse(c.Backend.CatalogURL); err != nil {
		return fmt.Errorf("invalid catalog_url: %w", err)
	}

	// Authenticated sessions need both the collection service and a way
	// to verify tokens; neither is useful without the other.
	if c.Backend.CommerceURL != "" && c.Backend.AuthURL == "" {
		return fmt.Errorf("auth_url is required when commerce_url is set")
	}
	if c.Backend.AuthURL != "" && c.Backend.CommerceURL == "" {
		return fmt.Errorf("commerce_url is required when auth_url is set")
	}
	if c.Backend.CommerceURL != "" {
		if _, err := url.Parse(c.Backend.CommerceURL); err != nil {
			return fmt.Errorf("invalid commerce_url: %w", err)
		}
		if _, err := url.Parse(c.Backend.AuthURL); err != nil {
			return fmt.Errorf("invalid auth_url: %w", err)
		}
	}
	return nil
}

// GuestOnly reports whether the service runs without a remote collection
// backend. Mirroring and login merge are disabled in this mode.
func (c *Config) GuestOnly() bool {
	return c.Backend.CommerceURL == ""
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
