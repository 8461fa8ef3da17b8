// Package main is the entry point for the gateway service.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/akz4ol/sqlgateway/internal/audit"
	"github.com/akz4ol/sqlgateway/internal/authn"
	"github.com/akz4ol/sqlgateway/internal/catalog"
	"github.com/akz4ol/sqlgateway/internal/config"
	"github.com/akz4ol/sqlgateway/internal/crypto"
	"github.com/akz4ol/sqlgateway/internal/dispatcher"
	"github.com/akz4ol/sqlgateway/internal/executor"
	"github.com/akz4ol/sqlgateway/internal/handler"
	"github.com/akz4ol/sqlgateway/internal/middleware"
	"github.com/akz4ol/sqlgateway/internal/pool"
	"github.com/akz4ol/sqlgateway/internal/ratelimit"
	"github.com/akz4ol/sqlgateway/internal/router"
	"github.com/akz4ol/sqlgateway/internal/server"
	"github.com/akz4ol/sqlgateway/internal/session"
	"github.com/akz4ol/sqlgateway/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	logger := setupLogger(cfg)

	logger.Info().
		Str("env", cfg.Server.Env).
		Str("transport", cfg.Server.Transport).
		Msg("Starting gateway")

	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.CatalogPath), 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create storage directory")
	}

	masterKey, err := crypto.NewMasterKey(cfg.Storage.MasterKeyPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load master key")
	}

	store, err := catalog.Open(ctx, cfg.Storage.CatalogPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open catalog")
	}
	defer store.Close()

	bootstrap, created, err := store.Bootstrap(ctx, "admin")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap catalog")
	}
	if created {
		logger.Warn().
			Str("username", "admin").
			Str("password", bootstrap.AdminPassword).
			Str("default_api_key", bootstrap.DefaultAPIKeySecret).
			Msg("first run: generated admin credentials, shown once, rotate promptly")
	}

	poolMgr := pool.NewManager(logger)
	defer poolMgr.CloseAll()

	sessionMgr := session.NewManager(store, poolMgr, logger, cfg.Resources.MaxActiveDatabases, cfg.Resources.MaxActiveConnections)
	defer sessionMgr.Stop()

	exec := executor.New(store, poolMgr, sessionMgr, masterKey)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set; generating an ephemeral signing key for this process")
		secret, err := crypto.GenerateToken(32)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to generate ephemeral JWT secret")
		}
		jwtSecret = secret
	}
	signer := crypto.NewTokenSigner(jwtSecret)
	authenticator := authn.New(signer, store, store)

	auditLogger := audit.NewLogger(store, logger)

	disp := dispatcher.New(store, sessionMgr, exec, logger)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
	}
	limiter := ratelimit.NewLimiter(rdb, time.Duration(cfg.RateLimit.WindowMS)*time.Millisecond, logger)

	switch cfg.Server.Transport {
	case "stdio":
		runStdio(ctx, disp, logger)
	case "http":
		runHTTP(cfg, logger, store, authenticator, signer, limiter, auditLogger, exec, disp, sessionMgr, masterKey, poolMgr)
	default:
		logger.Fatal().Str("transport", cfg.Server.Transport).Msg("unknown TRANSPORT, expected stdio or http")
	}

	logger.Info().Msg("gateway shutdown complete")
}

func runStdio(ctx context.Context, disp *dispatcher.Dispatcher, logger zerolog.Logger) {
	stdio := transport.NewStdio(disp, logger)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stdio.Serve(sigCtx, os.Stdin, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("stdio transport error")
	}
}

func runHTTP(
	cfg *config.Config,
	logger zerolog.Logger,
	store *catalog.Store,
	authenticator *authn.Authenticator,
	signer *crypto.TokenSigner,
	limiter *ratelimit.Limiter,
	auditLogger *audit.Logger,
	exec *executor.Executor,
	disp *dispatcher.Dispatcher,
	sessionMgr *session.Manager,
	masterKey *crypto.MasterKey,
	poolMgr *pool.Manager,
) {
	deps := router.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authn:              authenticator,
		RateLimiter:        limiter,
		Audit:              auditLogger,
		HealthHandler:      handler.NewHealthHandler(store),
		AuthHandler:        handler.NewAuthHandler(store, store, signer, cfg.Auth.JWTExpiresIn, logger),
		ConnectionsHandler: handler.NewConnectionsHandler(store, masterKey, poolMgr, logger),
		DatabasesHandler:   handler.NewDatabasesHandler(store, logger),
		QueryHandler:       handler.NewQueryHandler(exec, logger),
		KeysHandler:        handler.NewKeysHandler(store, logger),
		LogsHandler:        handler.NewLogsHandler(store, logger),
		SettingsHandler:    handler.NewSettingsHandler(store, logger),
		MCPHTTPHandler:     transport.NewHTTPHandler(disp, sessionMgr, logger),
	}

	r := router.New(deps)
	srv := server.New(cfg, r, logger)

	logger.Info().Str("port", cfg.Server.Port).Msg("gateway ready to accept connections")
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// setupLogger configures zerolog based on environment. In stdio transport
// mode stdout is reserved for line-delimited JSON-RPC frames, so logs (and
// the one-time bootstrap credentials) always go to stderr there; in HTTP
// mode stdout is free and keeps the teacher's normal destination.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := os.Stdout
	if cfg.Server.Transport == "stdio" {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "console" || cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(out).With().Timestamp().Logger()
	}

	return logger
}
