package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"group-chat/internal/changefeed"
	"group-chat/internal/config"
	"group-chat/internal/db"
	"group-chat/internal/eventbus"
	apihttp "group-chat/internal/http"
	"group-chat/internal/repository"
	"group-chat/internal/retry"
	"group-chat/internal/service"
	"group-chat/internal/stream"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	startup := retry.Policy{Attempts: cfg.StartupRetries, Base: cfg.StartupBackoff, Max: 10 * cfg.StartupBackoff}

	pool, err := connectPostgres(ctx, cfg, startup, logger)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := retry.Do(ctx, startup, func(ctx context.Context) error {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return redisClient.Ping(ctxPing).Err()
	}, func(attempt int, err error) {
		logger.Warn("redis ping failed", zap.Int("attempt", attempt), zap.Error(err))
	}); err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}

	var bus eventbus.Bus
	switch cfg.EventBus {
	case config.EventBusMemory:
		bus = eventbus.NewMemoryBus(0, logger)
	default:
		bus = eventbus.NewRedisBus(redisClient, logger)
	}

	userRepo := repository.NewPgUserRepository(pool)
	groupRepo := repository.NewPgGroupRepository(pool)
	memberRepo := repository.NewPgMembershipRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)

	publisher := changefeed.NewPublisher(bus, logger)
	cache := service.NewMessageCache(redisClient, cfg.MessageCacheTTL, logger)
	limiter := service.NewRedisPostRateLimiter(redisClient, cfg.PostRateWindow, cfg.PostRateLimit)

	// En modo listen la base anuncia los cambios; el servicio no publica.
	var notifier changefeed.Notifier = publisher
	feedCtx, stopFeed := context.WithCancel(ctx)
	var (
		feedDone   <-chan struct{}
		feedFailed <-chan error
	)
	if cfg.ChangeFeedMode == config.ChangeFeedListen {
		notifier = nil
		listener := changefeed.NewListener(pool, messageRepo, publisher, startup, logger)
		if err := listener.Attach(feedCtx); err != nil {
			logger.Fatal("change feed attach", zap.Error(err))
		}
		feedDone, feedFailed = listener.Start(feedCtx)
	} else {
		closed := make(chan struct{})
		close(closed)
		feedDone = closed
	}

	authSvc := service.NewAuthService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLHours)*time.Hour,
		service.NewRedisRefreshTokenStore(redisClient, cfg.RedisOpTimeout),
	)
	userSvc := service.NewUserService(logger, userRepo)
	groupSvc := service.NewGroupService(logger, groupRepo, memberRepo)
	messageSvc := service.NewMessageService(logger, messageRepo, memberRepo, notifier, cache, limiter)
	streams := stream.NewManager(authSvc, memberRepo, bus, cfg.StreamHeartbeat, logger)

	router := apihttp.NewRouter(
		logger,
		authSvc,
		apihttp.NewUserHandler(logger, userSvc, authSvc),
		apihttp.NewMessageHandler(logger, messageSvc),
		apihttp.NewGroupHandler(logger, groupSvc),
		apihttp.NewStreamHandler(logger, streams, bus),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("event_bus", cfg.EventBus),
			zap.String("changefeed", cfg.ChangeFeedMode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stopHTTP := func(ctx context.Context) error {
		// Las sesiones SSE no terminan solas: se cancelan antes de cerrar el server.
		if err := streams.Shutdown(ctx); err != nil {
			logger.Warn("streams shutdown", zap.Error(err))
		}
		return server.Shutdown(ctx)
	}

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": stopHTTP,
		"changefeed": func(ctx context.Context) error {
			stopFeed()
			select {
			case <-feedDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	var exitCode int
	select {
	case exitCode = <-wait:
	case err := <-feedFailed:
		// Sin change feed ninguna escritura llega a los streams: se apaga con error.
		logger.Error("change feed lost, shutting down", zap.Error(err))
		ctxStop, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
		if err := stopHTTP(ctxStop); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
		stopFeed()
		exitCode = 1
	}
	if err := bus.Close(); err != nil {
		logger.Warn("event bus close", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("redis close", zap.Error(err))
	}
	pool.Close()
	logger.Info("server stopped", zap.Int("exit_code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}

func connectPostgres(ctx context.Context, cfg *config.Config, policy retry.Policy, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return db.Ping(ctxPing, pool)
	}, func(attempt int, err error) {
		logger.Warn("db ping failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
