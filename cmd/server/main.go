package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghostarr/ghostarr/internal/api"
	"github.com/ghostarr/ghostarr/internal/config"
	"github.com/ghostarr/ghostarr/internal/crypto"
	"github.com/ghostarr/ghostarr/internal/database"
	"github.com/ghostarr/ghostarr/internal/events"
	"github.com/ghostarr/ghostarr/internal/generator"
	"github.com/ghostarr/ghostarr/internal/logging"
	"github.com/ghostarr/ghostarr/internal/metrics"
	"github.com/ghostarr/ghostarr/internal/models"
	"github.com/ghostarr/ghostarr/internal/scheduler"
	"github.com/ghostarr/ghostarr/internal/server"
	"github.com/ghostarr/ghostarr/internal/template"
	_ "github.com/lib/pq"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting ghostarr")

	logger.Info("connecting to database")
	db, err := database.Connect(database.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	cryptoSvc, err := crypto.New(cfg.App.SecretKey)
	if err != nil {
		logger.Error("failed to init credential encryption", "error", err)
		os.Exit(1)
	}

	// Create repositories
	historyRepo := database.NewHistoryRepository(db)
	settingRepo := database.NewSettingRepository(db, cryptoSvc)
	templateRepo := database.NewTemplateRepository(db)
	scheduleRepo := database.NewScheduleRepository(db)

	if err := templateRepo.SeedBuiltin(template.BuiltinName, template.BuiltinDescription, template.BuiltinBody, true); err != nil {
		logger.Warn("failed to seed builtin template, continuing anyway", "error", err)
	}

	// Event bus for progress streaming
	bus := events.NewBus(logger, cfg.Events.HistoryTTL)

	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	generationCollector, err := metrics.NewGenerationCollector(collector)
	if err != nil {
		logger.Error("failed to init generation metrics", "error", err)
		os.Exit(1)
	}

	// Generation pipeline
	service := generator.NewService(
		bus,
		logger,
		historyRepo,
		settingRepo,
		templateRepo,
		generator.DefaultSources(logger),
		generationCollector,
	)

	// Setup HTTP routes
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"ghostarr","status":"ready","version":"0.1.0"}`))
	})

	mux.Handle("/metrics", collector.Handler())

	logger.Info("setting up REST API")
	api.SetupRoutes(mux, service, bus, historyRepo, settingRepo, templateRepo, scheduleRepo, logger)

	// Background schedule poller
	logger.Info("starting schedule poller")
	sched := scheduler.NewScheduler(scheduleRepo, service, logger)
	go sched.Start(context.Background())

	// History retention
	retention := scheduler.NewRetention(
		historyRepo,
		settingRepo,
		func(c models.ServiceConfig) generator.Publisher {
			return generator.DefaultSources(logger).Ghost(c)
		},
		logger,
		cfg.Retention.Days,
	)
	retention.DeletePosts = cfg.Retention.DeletePosts
	go retention.Start(context.Background())

	// Serve the web UI for non-API routes
	logger.Info("setting up static file server for web UI")
	handler := server.SPAMiddleware(collector.InstrumentHandler(mux), "./web/dist", "./web/dist/index.html")

	srv := server.New(cfg.Server, logger, handler)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("ghostarr started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	sched.Stop()
	retention.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
