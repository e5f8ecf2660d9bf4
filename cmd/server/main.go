package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"elearning/internal/auth"
	"elearning/internal/config"
	"elearning/internal/crypto"
	identitygrpc "elearning/internal/grpc"
	internalhttp "elearning/internal/http"
	"elearning/internal/migrate"
	"elearning/internal/obs"
	"elearning/internal/repository"
	"elearning/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config invalid", zap.Error(err))
	}

	logger, err := obs.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		zap.NewExample().Fatal("logger init failed", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store internalhttp.Store
	switch cfg.DBAdapter {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemory()
	default:
		if cfg.MigrateOnStart {
			if err := migrate.Apply(cfg.DatabaseURL, logger); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
		}
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connection failed", zap.Error(err))
		}
		defer pool.Close()
		store = repository.NewStore(pool)
	}

	var directory tenant.Directory = store
	var cache *tenant.CachedDirectory
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis ping failed; tenant cache will degrade to the database", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		cache = tenant.NewCachedDirectory(store, redisClient, cfg.TenantCacheTTL, logger)
		directory = cache
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(registry)

	tokens := auth.NewTokens(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	authn := auth.NewAuthenticator(tokens, store, auth.AuthenticatorConfig{
		TouchTimeout:       cfg.TouchTimeout,
		SuperAdminTenantID: cfg.SuperAdminTenantID,
	}, logger)
	accounts := auth.NewService(store, tokens, crypto.NewHasher(cfg.BcryptCost), authn, logger)

	deps := internalhttp.Deps{
		Store:         store,
		Directory:     directory,
		Authenticator: authn,
		Accounts:      accounts,
		Metrics:       metrics,
		Logger:        logger,
	}
	if cache != nil {
		deps.Cache = cache
	}
	server := internalhttp.NewServer(cfg, deps)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("environment", cfg.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	var grpcServer *grpc.Server
	if cfg.ServiceAuthToken == "" {
		logger.Warn("SERVICE_AUTH_TOKEN not set; identity grpc service disabled")
	} else {
		grpcServer, err = identitygrpc.NewServer(identitygrpc.NewIdentityServer(authn, directory, logger), cfg.ServiceAuthToken, logger)
		if err != nil {
			logger.Fatal("grpc server init failed", zap.Error(err))
		}
		go func() {
			listener, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				logger.Fatal("grpc listen error", zap.Error(err))
			}
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(listener); err != nil {
				logger.Fatal("grpc server error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	authn.Wait()
}
