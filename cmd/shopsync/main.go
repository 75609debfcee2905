// Shopsync - storefront session service for stock-aware carts and
// wishlists. Designed for Cloud Run deployment; session state lives in
// Redis so instances stay stateless.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopsync/internal/clientinfo"
	"shopsync/internal/config"
	"shopsync/internal/handler"
	"shopsync/internal/middleware"
	"shopsync/internal/model"
	"shopsync/internal/reconcile"
	"shopsync/internal/remote"
	"shopsync/internal/session"
	"shopsync/internal/stock"
	"shopsync/internal/store"
	"shopsync/internal/syncq"
	"shopsync/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("storefront_id", cfg.StorefrontID),
		slog.String("environment", cfg.Environment),
		slog.Bool("guest_only", cfg.GuestOnly()),
		slog.Bool("redis", cfg.RedisAddr != ""),
	)

	// Session store: Redis in production, memory for local development
	sessionStore, err := createStore(cfg)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	if err := sessionStore.Ping(ctx); err != nil {
		return fmt.Errorf("session store unreachable: %w", err)
	}

	// Stock oracle against the catalog service
	oracleCfg := stock.Config{
		CatalogURL: cfg.Backend.CatalogURL,
		APIKey:     cfg.Backend.APIKey,
		HTTPClient: transport.NewClient(10 * time.Second),
	}
	if cfg.StockTTLSeconds > 0 {
		oracleCfg.TTL = time.Duration(cfg.StockTTLSeconds) * time.Second
	}
	oracle, err := stock.New(oracleCfg, logger)
	if err != nil {
		return fmt.Errorf("creating stock oracle: %w", err)
	}

	// Remote collection client and mirror queue (authenticated mode only)
	var (
		remoteClient *remote.Client
		queue        *syncq.Queue
		verifier     session.TokenVerifier
	)
	var reconcilerRemote reconcile.RemoteStore
	var reconcilerQueue reconcile.MirrorQueue
	if !cfg.GuestOnly() {
		remoteClient, err = remote.NewClient(remote.Config{
			CommerceURL: cfg.Backend.CommerceURL,
			HTTPClient:  transport.NewClient(15 * time.Second),
		})
		if err != nil {
			return fmt.Errorf("creating remote collection client: %w", err)
		}

		queue = syncq.New(remoteClient, syncq.Config{}, logger)
		go queue.Run(ctx)

		verifier, err = session.NewAuthClient(cfg.Backend.AuthURL, transport.NewClient(10*time.Second))
		if err != nil {
			return fmt.Errorf("creating auth client: %w", err)
		}

		reconcilerRemote = remoteClient
		reconcilerQueue = queue
	}

	carts := reconcile.New(model.KindCart, sessionStore, oracle, reconcilerRemote, reconcilerQueue, logger)
	wishlists := reconcile.New(model.KindWishlist, sessionStore, oracle, reconcilerRemote, reconcilerQueue, logger)
	resolver := session.NewResolver(verifier, logger)

	h := handler.New(carts, wishlists, resolver, sessionStore, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → client gate → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		clientinfo.Middleware(cfg.MinClientVersion, logger),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Stop the mirror worker after in-flight requests drain
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createStore selects the session store backend from configuration.
func createStore(cfg *config.Config) (store.Store, error) {
	if cfg.RedisAddr != "" {
		return store.NewRedisStore(cfg.RedisAddr)
	}
	if cfg.Environment == "production" {
		return nil, fmt.Errorf("REDIS_ADDR is required in production")
	}
	return store.NewMemoryStore(), nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
