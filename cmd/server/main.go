// Command server runs the consent-gated telemetry collection service. main
// wires the dependencies and the server lifecycle; every domain decision
// lives in the internal services.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"trailguard/internal/audit"
	"trailguard/internal/consent"
	"trailguard/internal/crypto"
	"trailguard/internal/jwttoken"
	"trailguard/internal/platform/config"
	"trailguard/internal/platform/httpserver"
	"trailguard/internal/platform/logger"
	"trailguard/internal/platform/metrics"
	"trailguard/internal/platform/middleware"
	"trailguard/internal/platform/postgres"
	platformredis "trailguard/internal/platform/redis"
	"trailguard/internal/telemetry"
	httptransport "trailguard/internal/transport/http"
	"trailguard/internal/transport/http/shared"
)

const (
	shutdownTimeout = 10 * time.Second
	auditBufferSize = 1024
)

func main() {
	// .env is a development convenience; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.New(false).Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.DevMode)
	respond := shared.NewResponder(cfg.DevMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient == nil {
		log.Warn("redis not configured, rate limiting disabled")
	} else {
		defer redisClient.Close()
	}

	cryptoSvc, err := crypto.New(cfg.EncryptionKey, cfg.SaltSecret)
	if err != nil {
		log.Error("cryptographic material invalid", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	auditOpts := []audit.Option{audit.WithAsyncBuffer(auditBufferSize)}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("kafka audit sink unavailable", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}
	auditor := audit.NewPublisher(audit.NewPostgresStore(db), log, m, auditOpts...)
	defer auditor.Close()

	telemetryStore := telemetry.NewPostgresStore(db)
	telemetrySvc := telemetry.NewService(telemetryStore, nil, cryptoSvc, auditor, m)
	ledger := consent.NewService(consent.NewPostgresStore(db), cryptoSvc, auditor, telemetrySvc, m, cfg.ConsentTTL)
	telemetrySvc.BindLedger(ledger)
	gate := consent.NewGate(ledger, auditor, m)

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		rateLimiter = middleware.NewRateLimiter(redisClient, log, cfg.RateLimitWindow, cfg.RateLimitRequests)
	}

	var adminHandler *httptransport.AdminHandler
	if cfg.JWTSigningKey != "" {
		jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
		adminHandler = httptransport.NewAdminHandler(audit.NewPostgresStore(db), telemetryStore, jwtSvc, log, respond)
	} else {
		log.Warn("JWT_SIGNING_KEY not set, admin surface disabled")
	}

	healthChecks := map[string]httptransport.HealthChecker{
		"postgres": dbHealth{db: db},
	}
	if redisClient != nil {
		healthChecks["redis"] = redisClient
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        m,
		Gatherer:       registry,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
		StaticDir:      os.Getenv("STATIC_DIR"),
		Consent:        httptransport.NewConsentHandler(ledger, auditor, log, respond),
		Telemetry:      httptransport.NewTelemetryHandler(gate, ledger, telemetrySvc, auditor, log, respond),
		Health:         httptransport.NewHealthHandler(healthChecks),
		Admin:          adminHandler,
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("server draining")
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return postgres.Health(ctx, h.db)
}
