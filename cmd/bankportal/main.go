// Package main запускает HTTP-сервер банковского портала.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bankportal/internal/config"
	"github.com/mmeshcher/bankportal/internal/handler"
	"github.com/mmeshcher/bankportal/internal/mfa"
	"github.com/mmeshcher/bankportal/internal/middleware"
	"github.com/mmeshcher/bankportal/internal/repository"
	"github.com/mmeshcher/bankportal/internal/security"
	"github.com/mmeshcher/bankportal/internal/service"
	"github.com/mmeshcher/bankportal/internal/session"
	"github.com/mmeshcher/bankportal/internal/token"
)

const (
	redisKeyPrefix  = "bankportal:"
	janitorInterval = time.Minute
)

func newLogger(development bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func newRepository(cfg *config.Config, sugar *zap.SugaredLogger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Development())
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := newRepository(cfg, sugar)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var (
		blacklist token.Blacklist
		sessions  session.Registry
		purges    []service.PurgeFunc
	)

	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}

		blacklist = token.NewRedisBlacklist(rdb, redisKeyPrefix)
		sessions = session.NewRedisRegistry(rdb, redisKeyPrefix, cfg.SessionIdleTimeout, cfg.TokenTTL)
	} else {
		sugar.Warn("REDIS_ADDRESS is empty, token revocation and sessions are kept in process memory")

		memBlacklist := token.NewMemoryBlacklist()
		memSessions := session.NewMemoryRegistry(cfg.SessionIdleTimeout)
		blacklist, sessions = memBlacklist, memSessions

		purges = append(purges,
			memBlacklist.Purge,
			func() int { return memSessions.Purge(cfg.TokenTTL) },
		)
	}

	tokens := token.NewService(cfg.JWTSecret, cfg.TokenTTL, blacklist)

	svc := service.NewService(
		repo,
		tokens,
		sessions,
		mfa.NewEngine(cfg.MFAIssuer),
		security.NewHasher(cfg.BcryptCost),
		logger,
	)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(tokens, sessions, logger)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.Development())

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Очистка истёкших отзывов и сессий, только для хранения в памяти процесса
	svc.StartJanitor(ctx, janitorInterval, purges...)

	g.Go(func() error {
		sugar.Infow("starting bankportal server", "addr", cfg.RunAddress, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
