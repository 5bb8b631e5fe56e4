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
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physio-outreach/internal/app"
	"github.com/jwalitptl/physio-outreach/internal/config"
	"github.com/jwalitptl/physio-outreach/internal/handler/health"
	outreachhandler "github.com/jwalitptl/physio-outreach/internal/handler/outreach"
	"github.com/jwalitptl/physio-outreach/internal/middleware"
	"github.com/jwalitptl/physio-outreach/internal/repository/postgres"
	"github.com/jwalitptl/physio-outreach/internal/router"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
	"github.com/jwalitptl/physio-outreach/pkg/telemetry"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	flag.Parse()

	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal(err, "failed to set up telemetry")
	}

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal(err, "failed to connect to database")
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
		logger.Fatal(err, "failed to build outreach service")
	}

	var auth *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		auth = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		logger.Warn("authentication is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		logger,
		auth,
		health.NewHandler(registry, health.Check{Name: "database", Ping: db.PingContext}),
		outreachhandler.NewHandler(svc),
		m,
		router.RouterConfig{
			ServiceName:      cfg.Telemetry.ServiceName,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			ClientTTL:        cfg.RateLimit.ClientTTL,
			HSTSMaxAge:       cfg.Server.HSTSMaxAge,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "telemetry shutdown failed")
	}
}
