package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physio-outreach/internal/app"
	"github.com/jwalitptl/physio-outreach/internal/config"
	"github.com/jwalitptl/physio-outreach/internal/email"
	"github.com/jwalitptl/physio-outreach/internal/handler/health"
	"github.com/jwalitptl/physio-outreach/internal/repository/postgres"
	"github.com/jwalitptl/physio-outreach/internal/worker"
	"github.com/jwalitptl/physio-outreach/pkg/logger"
	"github.com/jwalitptl/physio-outreach/pkg/messaging"
	"github.com/jwalitptl/physio-outreach/pkg/messaging/redis"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
	"github.com/jwalitptl/physio-outreach/pkg/telemetry"
)

func setupHealthCheck(port int, h *health.Handler, logger *logger.Logger) *http.Server {
	engine := gin.New()
	h.RegisterRoutes(engine.Group(""))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	flag.Parse()

	_ = godotenv.Load()

	// Load config
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal(err, "Failed to set up telemetry")
	}

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(app.MetricsNamespace, registry)

	svc, err := app.NewOutreachService(cfg, postgres.NewOpener(db), logger, m)
	if err != nil {
		logger.Fatal(err, "Failed to build outreach service")
	}

	checks := []health.Check{{Name: "database", Ping: db.PingContext}}

	// Initialize Redis broker
	var publisher *messaging.Publisher
	if cfg.Redis.Enabled() {
		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, logger)
		if err != nil {
			logger.Fatal(err, "Failed to create Redis broker")
		}
		defer broker.Close()
		publisher = messaging.NewPublisher(broker, cfg.Worker.Channel)
		checks = append(checks, health.Check{Name: "redis", Ping: broker.Ping})
	} else {
		logger.Warn("Redis is not configured, scan results will not be published")
	}

	var mailer email.Service
	if cfg.SMTP.Enabled() {
		mailer = email.NewSMTPService(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
	}

	gin.SetMode(gin.ReleaseMode)
	healthSrv := setupHealthCheck(cfg.Worker.HealthPort, health.NewHandler(registry, checks...), logger)

	scanWorker := worker.NewScanWorker(
		svc,
		publisher,
		mailer,
		worker.ScanWorkerConfig{
			Interval:   cfg.Worker.Interval,
			RunOnStart: cfg.Worker.RunOnStart,
		},
		logger,
		m,
	)
	scanWorker.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health check server shutdown failed")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Telemetry shutdown failed")
	}
}
