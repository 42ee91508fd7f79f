// Package main is the entry point for the campus points-economy API
// server. It wires together the ledger core, authz, idempotency, the
// offer/bet engines, the payout worker pool, the odds relay, and the HTTP
// server alongside its WebSocket hub.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/redis/go-redis/v9"

	"github.com/campusexchange/points/internal/api"
	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/config"
	"github.com/campusexchange/points/internal/idempotency"
	"github.com/campusexchange/points/internal/ledger"
	"github.com/campusexchange/points/internal/payout"
	"github.com/campusexchange/points/internal/queue"
	"github.com/campusexchange/points/internal/relay"
	"github.com/campusexchange/points/internal/repository"
	"github.com/campusexchange/points/internal/schema"
	"github.com/campusexchange/points/internal/service"
	"github.com/campusexchange/points/internal/ws"
)

const payoutWorkerCount = 3

func main() {
	// ── 1. Config + logger ───────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting points-economy server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ──────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 3. Repositories ──────────────────────────────────────────────────
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	rbac := repository.NewRBACRepository(db)
	audit := repository.NewAuditRepository(db)
	offers := repository.NewOfferRepository(db)
	bets := repository.NewBetRepository(db)
	payouts := repository.NewPayoutRepository(db)
	groups := repository.NewGroupRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)

	// ── 4. Schema + RBAC bootstrap ───────────────────────────────────────
	bootstrapper := schema.New(db, rbac, users, cfg, logger)
	ctx := context.Background()
	if err = bootstrapper.Run(ctx, "migrations"); err != nil {
		logger.Error("schema bootstrap failed", "err", err)
		os.Exit(1)
	}
	logger.Info("schema bootstrapped")

	// ── 5. Ledger core ───────────────────────────────────────────────────
	ledgerCore := ledger.New(rbac.FindSuperAdminID)

	// ── 6. Authz: rotating-secret JWT verifier, permission cache, resolver ─
	verifier := authz.NewVerifier(rbac, cfg.Auth.SecretCacheTTL)
	if err = verifier.Refresh(ctx); err != nil {
		logger.Error("authz: initial secret refresh failed", "err", err)
		os.Exit(1)
	}
	permCache := authz.NewPermissionCache(rbac, cfg.Auth.PermissionCacheTTL)
	resolver := authz.NewResolver(verifier, users, permCache)

	// ── 7. Idempotency wrapper ───────────────────────────────────────────
	wrap := idempotency.New(idemRepo)

	// ── 8. Redis: durable payout queue + odds pub/sub ────────────────────
	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err = redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}
	payoutQueue := queue.New(redisClient, cfg.Redis.PayoutQueue, cfg.Redis.PopTimeout)
	oddsPublisher := relay.NewPublisher(redisClient, cfg.Redis.OddsChannel)

	// ── 9. WebSocket hub ──────────────────────────────────────────────────
	var allowedOrigins []string
	if ori := os.Getenv("WS_ALLOWED_ORIGINS"); ori != "" {
		for _, o := range strings.Split(ori, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(allowedOrigins)

	oddsSubscriber := relay.NewSubscriber(redisClient, cfg.Redis.OddsChannel, hub, logger)

	// ── 10. Services ──────────────────────────────────────────────────────
	authSvc := service.NewAuthService(db, users, sessions, verifier, cfg)
	offerSvc := service.NewOfferService(db, offers, groups, ledgerCore)
	betSvc := service.NewBetService(db, bets, payouts, groups, ledgerCore, payoutQueue, oddsPublisher, cfg.Auth.PayoutMaxAttempts)
	adminSvc := service.NewAdminService(db, users, sessions, rbac, audit, ledgerCore, resolver)
	groupSvc := service.NewGroupService(groups)

	// ── 11. Root context + signal handling ───────────────────────────────
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 12. Background loops ──────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	go oddsSubscriber.Run(runCtx)
	logger.Info("odds relay subscriber started")

	sweeper := payout.NewSweeper(payoutQueue, payouts, logger, 30*time.Second)
	go sweeper.Run(runCtx)

	for i := 0; i < payoutWorkerCount; i++ {
		w := payout.New(i, payoutQueue, payouts, bets, ledgerCore, oddsPublisher, logger, time.Second)
		go w.Run(runCtx)
	}
	logger.Info("payout workers started", "count", payoutWorkerCount)

	// ── 13. HTTP router ───────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		DB:       db,
		Cfg:      cfg,
		Resolver: resolver,
		Wrap:     wrap,
		Users:    users,
		AuthSvc:  authSvc,
		OfferSvc: offerSvc,
		BetSvc:   betSvc,
		AdminSvc: adminSvc,
		GroupSvc: groupSvc,
		Hub:      hub,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	// ── 14. Graceful shutdown ─────────────────────────────────────────────
	<-runCtx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	redisClient.Close()
	db.Close()
	logger.Info("server stopped cleanly")
}
