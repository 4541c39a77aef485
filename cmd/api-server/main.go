package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/medschedule/booking-engine/internal/api"
	"github.com/medschedule/booking-engine/internal/appointment"
	"github.com/medschedule/booking-engine/internal/calendar"
	"github.com/medschedule/booking-engine/internal/config"
	"github.com/medschedule/booking-engine/internal/db"
	"github.com/medschedule/booking-engine/internal/dialogue"
	"github.com/medschedule/booking-engine/internal/logging"
	"github.com/medschedule/booking-engine/internal/metrics"
	"github.com/medschedule/booking-engine/internal/nlu"
	"github.com/medschedule/booking-engine/internal/notify"
	redisclient "github.com/medschedule/booking-engine/internal/redis"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	avail := appointment.NewAvailability(repo, log)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	var cal calendar.Client
	if cfg.GoogleCredentialsFile != "" {
		gc, err := calendar.NewGoogleClient(rootCtx, cfg.GoogleCredentialsFile)
		if err != nil {
			log.Fatal("calendar client error", zap.Error(err))
		}
		cal = gc
		log.Info("google calendar client ready")
	} else {
		log.Warn("GOOGLE_CREDENTIALS_FILE not set, bookings will be refused")
	}

	var notifier appointment.Notifier
	if emailer := notify.NewEmailNotifier(notify.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFrom,
		FromName:  cfg.SendGridName,
	}, log); emailer != nil {
		notifier = emailer
	} else {
		notifier = notify.NewStubNotifier(log)
	}

	coord := appointment.NewCoordinator(repo, avail, cal, notifier, locker, cfg.DefaultTimezone, log)

	var extractor nlu.Extractor
	if cfg.GeminiAPIKey != "" {
		gem, err := nlu.NewGeminiExtractor(rootCtx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("gemini client error", zap.Error(err))
		}
		extractor = nlu.NewSafe(gem, log)
		log.Info("gemini extractor ready", zap.String("model", cfg.GeminiModel))
	} else {
		log.Info("GEMINI_API_KEY not set, running on keyword rules only")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dialogueMetrics := metrics.NewDialogueMetrics(registry)

	store := dialogue.NewRedisStore(rdb, cfg.SessionTTL)

	engine := dialogue.NewEngine(dialogue.EngineConfig{
		Store:      store,
		Repo:       repo,
		Avail:      avail,
		Coord:      coord,
		Extractor:  extractor,
		Metrics:    dialogueMetrics,
		FallbackTZ: cfg.DefaultTimezone,
		Logger:     log,
	})

	router := api.NewRouter(api.RouterConfig{
		Engine:    engine,
		Directory: repo,
		PgPool:    pgPool,
		Redis:     rdb,
		Registry:  registry,
		Env:       cfg.Env,
		Version:   version,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}

	log.Info("api-server stopped")
}
