package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/infra/config"
	"github.com/obidovbek/ubergo-sub004/internal/infra/database"
	kafkainfra "github.com/obidovbek/ubergo-sub004/internal/infra/kafka"
	"github.com/obidovbek/ubergo-sub004/internal/infra/logger"
	redisinfra "github.com/obidovbek/ubergo-sub004/internal/infra/redis"
	"github.com/obidovbek/ubergo-sub004/internal/infra/security"
	"github.com/obidovbek/ubergo-sub004/internal/infra/sms"
	"github.com/obidovbek/ubergo-sub004/internal/infra/sso"
	postgresrepo "github.com/obidovbek/ubergo-sub004/internal/repository/postgres"
	redisrepo "github.com/obidovbek/ubergo-sub004/internal/repository/redis"
	"github.com/obidovbek/ubergo-sub004/internal/transport/http/middleware"
	"github.com/obidovbek/ubergo-sub004/internal/transport/http/routes"
	"github.com/obidovbek/ubergo-sub004/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	repos := postgresrepo.NewRepositories(pool)

	otpStore := redisrepo.NewOtpRepository(redisClient.Client(), cfg.Redis.OtpPrefix)

	rateLimitTTL := maxDuration(cfg.RateLimit.OtpSendWindow, cfg.RateLimit.OtpVerifyWindow,
		cfg.RateLimit.SsoWindow, cfg.RateLimit.RefreshWindow) * 2
	if rateLimitTTL <= 0 {
		rateLimitTTL = 30 * time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitTTL,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var dispatcher port.ChannelDispatcher
	if cfg.Dispatch.Sms.BaseURL != "" || cfg.Dispatch.Call.BaseURL != "" || cfg.Dispatch.Push.BaseURL != "" {
		dispatcher = sms.NewProviderDispatcher(cfg.Dispatch, log)
	} else {
		log.Info("no delivery providers configured, logging codes instead")
		dispatcher = sms.NewLoggingDispatcher(log)
	}

	providers := sso.NewRegistry(
		sso.NewGoogleProvider(cfg.Sso.GoogleClientID),
		sso.NewFacebookProvider(),
	)

	otpService := usecase.NewOtpService(cfg, otpStore, dispatcher, rateLimitStore, log)
	identityService := usecase.NewIdentityService(repos.Identities, eventPublisher, log)
	tokenService := usecase.NewTokenService(cfg, repos.Tokens, jwtManager, keyProvider.SigningKID(), eventPublisher, log)
	authService := usecase.NewAuthService(otpService, identityService, tokenService, providers, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Auth:        authService,
		JWTManager:  jwtManager,
		Database:    pool,
		Cache:       redisClient,
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func maxDuration(values ...time.Duration) time.Duration {
	var max time.Duration
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}
