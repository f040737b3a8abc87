package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/garnizeh/whitelist/api"
	dbfs "github.com/garnizeh/whitelist/db"
	"github.com/garnizeh/whitelist/internal/catalog"
	"github.com/garnizeh/whitelist/internal/config"
	"github.com/garnizeh/whitelist/internal/db"
	"github.com/garnizeh/whitelist/internal/jobs"
	"github.com/garnizeh/whitelist/internal/lifecycle"
	"github.com/garnizeh/whitelist/internal/repository/sqlstore"
	"github.com/garnizeh/whitelist/internal/retention"
	"github.com/garnizeh/whitelist/internal/session"
	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/media"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config YAML file")
		envFile    = flag.String("env", ".env", "Path to a .env file; missing files are ignored")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	api.SetLogger(logger)
	discord.SetLogger(logger)
	media.SetLogger(logger)

	logger.Info("starting whitelist portal", "version", version, "build_time", buildTime)

	ctx := context.Background()

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabaseDriver, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
	}
	store := sqlstore.New(conn, logger)

	bot, err := discord.NewDefaultClient(cfg.Discord)
	if err != nil {
		log.Fatalf("Failed to create Discord client: %v", err)
	}
	defer bot.Close()

	var (
		mediaBackend lifecycle.MediaStore
		mediaHandler http.Handler
	)
	switch cfg.Media.Driver {
	case "local":
		disk, err := media.NewDisk(cfg.Media.LocalDir, strings.TrimRight(cfg.PublicURL, "/")+"/media", cfg.Apply.MaxAudioBytes)
		if err != nil {
			log.Fatalf("Failed to prepare media dir: %v", err)
		}
		mediaBackend, mediaHandler = disk, disk.Handler()
	default:
		cld, err := media.NewCloudinary(cfg.Media)
		if err != nil {
			log.Fatalf("Failed to create Cloudinary client: %v", err)
		}
		mediaBackend = cld
	}

	// Staff announcements go through the job queue so webhook hiccups are retried.
	jobRepo := jobs.NewRepository(conn)
	pool := jobs.NewWorkerPool(jobRepo, map[string]jobs.Handler{
		jobs.TypeStaffWebhook: jobs.StaffWebhookHandler(bot),
	}, logger, cfg.Jobs.Workers)
	var announcer lifecycle.Announcer
	if cfg.Discord.WebhookURL != "" {
		announcer = jobs.NewAnnouncer(pool, cfg.Jobs.MaxAttempts)
	}

	svc := lifecycle.New(lifecycle.Deps{
		Questions:    store,
		Applications: store,
		Media:        mediaBackend,
		Members:      bot,
		Notifier:     bot,
		Announcer:    announcer,
		ServerName:   cfg.ServerName,
		Logger:       logger,
	})
	sweeper := retention.New(retention.Deps{
		Answers: store,
		Media:   mediaBackend,
		Window:  cfg.Cleanup.Retention,
		Logger:  logger,
	})

	handler := api.SetupRoutes(api.Deps{
		Config:    cfg,
		Version:   version,
		BuildTime: buildTime,
		Lifecycle: svc,
		Catalog:   catalog.New(store, logger),
		Sweeper:   sweeper,
		Issuer:    session.NewIssuer(cfg.JWTSecret, cfg.TokenDuration, session.NewAllowList(cfg.AdminIDs)),
		OAuth:     discord.NewOAuth(cfg.Discord, discord.Endpoint, nil),
		Members:   bot,
		Media:     mediaHandler,
	})

	workerCtx, stopWorkers := context.WithCancel(ctx)
	pool.Start(workerCtx)

	var scheduler *retention.Scheduler
	if cfg.Cleanup.Schedule != "" {
		scheduler, err = retention.NewScheduler(sweeper, cfg.Cleanup.Schedule)
		if err != nil {
			log.Fatalf("Failed to schedule cleanup: %v", err)
		}
		scheduler.Start()
		logger.Info("retention sweep scheduled", "schedule", cfg.Cleanup.Schedule, "window", cfg.Cleanup.Retention.String())
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + cfg.Media.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	stopWorkers()
	pool.Stop()

	// Close database connection
	if err := conn.Close(); err != nil {
		logger.Error("closing DB", "err", err)
	}

	logger.Info("server exited")
}
