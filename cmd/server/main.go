package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alextreichler/storefront/internal/config"
	"github.com/alextreichler/storefront/internal/handlers"
	"github.com/alextreichler/storefront/internal/notify"
	"github.com/alextreichler/storefront/internal/orders"
	"github.com/alextreichler/storefront/internal/reporting"
	"github.com/alextreichler/storefront/internal/store"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	if cfg.LogFormat == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))

	// 2. Init DB
	db, err := store.NewStore(cfg.DBDriver, cfg.DSN())
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run Migrations
	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// 3. Notifications
	logNotifier, err := notify.NewLogNotifier(slog.Default())
	if err != nil {
		slog.Error("Failed to load notification templates", "error", err)
		os.Exit(1)
	}
	notifiers := notify.Multi{logNotifier}
	if cfg.RedisURL != "" {
		rn, err := notify.NewRedisNotifier(cfg.RedisURL, notify.DefaultStream)
		if err != nil {
			// Orders still work without the event stream.
			slog.Warn("Redis unavailable, order events will only be logged", "error", err)
		} else {
			defer rn.Close()
			notifiers = append(notifiers, rn)
			slog.Info("Publishing order events to Redis", "stream", notify.DefaultStream)
		}
	}

	// 4. Services
	orderService := orders.NewService(db,
		orders.WithNotifier(notifiers),
		orders.WithRecentLimit(cfg.RecentOrdersLimit),
	)
	rateLimiter := handlers.NewRateLimiter(cfg.RateLimitPerMin)
	defer rateLimiter.Stop()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Store:          db,
		Orders:         orderService,
		Stats:          reporting.NewAggregator(db),
		SessionStore:   handlers.NewSessionStore(cfg.SessionKey, cfg.CookieSecure, cfg.CookieDomain),
		RateLimiter:    rateLimiter,
		UploadDir:      cfg.UploadDir,
		CSRFEnabled:    cfg.CSRFEnabled,
		CSRFKey:        cfg.CSRFKey,
		CookieSecure:   cfg.CookieSecure,
		TrustedOrigins: append([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port}, cfg.TrustedOrigins...),
	})

	// 5. Start Server with Graceful Shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Create a channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "port", cfg.Port, "driver", db.Driver(), "csrf", cfg.CSRFEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until a signal is received or the listener fails
	select {
	case <-stop:
	case err := <-serverErr:
		slog.Error("Server failed to listen and serve", "error", err)
		return
	}

	slog.Info("Shutting down server gracefully...")

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		return
	}

	slog.Info("Server exited gracefully.")
}
