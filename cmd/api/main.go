package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bhadresh-123/phicore/internal/access"
	"github.com/bhadresh-123/phicore/internal/alert"
	"github.com/bhadresh-123/phicore/internal/audit"
	"github.com/bhadresh-123/phicore/internal/config"
	"github.com/bhadresh-123/phicore/internal/handler"
	membershipHandler "github.com/bhadresh-123/phicore/internal/handler/membership"
	resourceHandler "github.com/bhadresh-123/phicore/internal/handler/resource"
	"github.com/bhadresh-123/phicore/internal/membership"
	"github.com/bhadresh-123/phicore/internal/middleware"
	"github.com/bhadresh-123/phicore/internal/phi"
	"github.com/bhadresh-123/phicore/internal/repository/postgres"
	"github.com/bhadresh-123/phicore/internal/router"
	"github.com/bhadresh-123/phicore/internal/worker"
	"github.com/bhadresh-123/phicore/pkg/logger"
	"github.com/bhadresh-123/phicore/pkg/messaging/redis"
	"github.com/bhadresh-123/phicore/pkg/metrics"
	"github.com/bhadresh-123/phicore/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Key material is loaded once here and never mutated afterwards.
	keys, err := security.LoadKeys()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load encryption keys")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	membershipRepo := postgres.NewMembershipRepository(db)
	resourceRepo := postgres.NewResourceRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	m := metrics.NewMetrics("phicore", "core")
	appLog := logger.NewLogger(nil)
	zl := appLog.Zerolog()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, zl)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	notifier := alert.NewMailer(cfg.Alert)
	recorder := audit.NewRecorder(auditRepo, broker, notifier, zl, m)

	codec, err := phi.NewCodec(keys)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to initialize PHI codec")
	}

	lookup := membership.NewCachedLookup(membershipRepo, cfg.Audit.MembershipCacheTTL, 5*time.Minute)
	resolver := access.NewResolver(lookup)
	gate := access.NewGate(resolver, codec, resourceRepo, recorder, zl, m)

	membershipSvc := membership.NewService(membershipRepo, lookup, recorder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewRetentionSweeper(auditRepo, cfg.Audit.SweepInterval, zl, m)
	go sweeper.Start(ctx)

	engine := router.New(router.Deps{
		Health:     handler.NewHealthHandler(db),
		Resource:   resourceHandler.NewHandler(gate),
		Membership: membershipHandler.NewHandler(membershipSvc),
		Auth:       middleware.NewAuthMiddleware(cfg.JWT.Secret),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		zl.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	zl.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("graceful shutdown failed")
	}
}
