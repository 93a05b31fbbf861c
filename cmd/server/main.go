// Botgate - chat bot gateway server
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ashureev/botgate/internal/api"
	"github.com/ashureev/botgate/internal/bot"
	"github.com/ashureev/botgate/internal/config"
	"github.com/ashureev/botgate/internal/domain"
	"github.com/ashureev/botgate/internal/middleware"
	"github.com/ashureev/botgate/internal/session"
	"github.com/ashureev/botgate/internal/store"
	"github.com/ashureev/botgate/internal/stream"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogFile != "" {
		logOut = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		}
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize the archive (optional).
	var repo store.Repository
	var archiver *store.Archiver
	if cfg.Archive.Enabled {
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()

		if err := repo.Ping(context.Background()); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Database connected")

		archiver = store.NewArchiver(repo, cfg.Archive.QueueSize, logger)
		defer archiver.Close()
	} else {
		slog.Info("Event archive disabled")
	}

	// Event routing: the dispatcher fans runtime events out to sessions.
	// The session manager registers keys on authentication and drops them
	// on close; the fallback delivery path buffers events on decorated
	// sessions for polling clients.
	dispatcher := bot.NewDispatcher(nil)
	mgr := session.NewManager(cfg.SessionTimeout, session.Hooks{
		Subscribe: func(key string, b bot.Binding) {
			dispatcher.Subscribe(key, b.Key())
		},
		Unsubscribe: dispatcher.Unsubscribe,
	})
	dispatcher.SetDeliver(func(key string, ev domain.Event) {
		if us, ok := mgr.Lookup(key).(*session.UnreadSession); ok {
			us.EnqueueUnread(ev)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the bot runtime (optional).
	bindings := make(map[string]bot.Binding)
	defaultBot := ""
	if cfg.BotRuntimeAddr != "" {
		runtime, err := bot.NewRuntimeClient(cfg.BotRuntimeAddr, logger)
		if err != nil {
			slog.Error("Failed to connect to bot runtime", "error", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := runtime.Close(); closeErr != nil {
				slog.Warn("Failed to close runtime client", "error", closeErr)
			}
		}()

		bindings[runtime.Key()] = runtime
		defaultBot = runtime.Key()

		events, err := runtime.Events(ctx)
		if err != nil {
			slog.Error("Failed to open runtime event feed", "error", err)
			os.Exit(1)
		}
		var tap bot.EventHandler
		if archiver != nil {
			tap = archiver.ArchiveEvent
		}
		go dispatcher.Run(ctx, events, tap)
	} else {
		slog.Info("Bot runtime disabled (BOT_RUNTIME_ADDR not set)")
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(mgr, repo, archiver, bindings, defaultBot, cfg)
	healthHandler := api.NewHealthHandler(repo, bindings)
	wsHandler := stream.NewHandler(mgr, dispatcher, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	baseHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/events", wsHandler.ServeHTTP)

	// Create server.
	// Note: streaming connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout, WebSocket streams stay open
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	if repo != nil {
		store.StartRetentionWorker(ctx, repo, cfg.Archive.Retention)
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	mgr.CloseAll()

	slog.Info("Server stopped successfully")
}
