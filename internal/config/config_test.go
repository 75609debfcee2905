package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// clearEnv unsets every variable Load reads so tests start clean.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT",
		"STOREFRONT_ID", "REDIS_ADDR", "MIN_CLIENT_VERSION", "STOCK_TTL_SECONDS",
		"CATALOG_URL", "COMMERCE_URL", "AUTH_URL", "CATALOG_API_KEY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_DevelopmentFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOREFRONT_ID", "store-1")
	t.Setenv("CATALOG_URL", "https://catalog.example.com")
	t.Setenv("COMMERCE_URL", "https://commerce.example.com")
	t.Setenv("AUTH_URL", "https://auth.example.com")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want default 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Backend.CatalogURL != "https://catalog.example.com" {
		t.Errorf("CatalogURL = %s", cfg.Backend.CatalogURL)
	}
	if cfg.GuestOnly() {
		t.Error("GuestOnly() = true with commerce_url set")
	}
}

func TestLoad_RequiresStorefrontID(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_URL", "https://catalog.example.com")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() = nil error without STOREFRONT_ID")
	}
}

func TestLoad_RequiresCatalogURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOREFRONT_ID", "store-1")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() = nil error without CATALOG_URL")
	}
}

func TestLoad_CommerceAndAuthArePaired(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOREFRONT_ID", "store-1")
	t.Setenv("CATALOG_URL", "https://catalog.example.com")
	t.Setenv("COMMERCE_URL", "https://commerce.example.com")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() = nil error with commerce_url but no auth_url")
	}
}

func TestLoad_GuestOnlyWithoutCommerceURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOREFRONT_ID", "store-1")
	t.Setenv("CATALOG_URL", "https://catalog.example.com")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.GuestOnly() {
		t.Error("GuestOnly() = false without commerce_url")
	}
}

func TestLoad_InvalidStockTTLRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOREFRONT_ID", "store-1")
	t.Setenv("CATALOG_URL", "https://catalog.example.com")
	t.Setenv("STOCK_TTL_SECONDS", "soon")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() = nil error with non-numeric STOCK_TTL_SECONDS")
	}
}

func TestLoad_FromConfigFile(t *testing.T) {
	clearEnv(t)

	content := `{
		"port": "9090",
		"log_level": "debug",
		"storefront_id": "store-2",
		"min_client_version": "1.4.0",
		"stock_ttl_seconds": 10,
		"backend": {
			"catalog_url": "https://catalog.example.com",
			"commerce_url": "https://commerce.example.com",
			"auth_url": "https://auth.example.com",
			"api_key": "k"
		}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" || cfg.StorefrontID != "store-2" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StockTTLSeconds != 10 {
		t.Errorf("StockTTLSeconds = %d, want 10", cfg.StockTTLSeconds)
	}
	if cfg.MinClientVersion != "1.4.0" {
		t.Errorf("MinClientVersion = %s", cfg.MinClientVersion)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want default development", cfg.Environment)
	}
}

func TestLoad_ConfigFileRequiresStorefrontID(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"backend":{"catalog_url":"https://c.example.com"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() = nil error for config file without storefront_id")
	}
}
