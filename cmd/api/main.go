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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcloud/autenticador/internal/auth"
	"github.com/mcloud/autenticador/internal/auth0"
	"github.com/mcloud/autenticador/internal/config"
	"github.com/mcloud/autenticador/internal/db"
	"github.com/mcloud/autenticador/internal/events"
	internalhttp "github.com/mcloud/autenticador/internal/http"
	"github.com/mcloud/autenticador/internal/i18n"
	"github.com/mcloud/autenticador/internal/metrics"
	"github.com/mcloud/autenticador/internal/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	configureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBMigrate {
		if err := db.MigrateUp(cfg.DBDSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	remote, err := auth0.New(auth0.Config{
		Domain:       cfg.Auth0.Domain,
		ClientID:     cfg.Auth0.MgmtClientID,
		ClientSecret: cfg.Auth0.MgmtClientSecret,
		Audience:     cfg.Auth0.MgmtAudience,
		Timeout:      cfg.Auth0.HTTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("auth0: %w", err)
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return fmt.Errorf("verifier: %w", err)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQP.URL != "" {
		publisher = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log.Logger.With().Str("component", "events").Logger())
	}
	defer publisher.Close()

	registry := metrics.NewRegistry()

	service := user.NewService(user.NewRepository(pool), remote, user.Options{
		PageSize:           cfg.Sync.PageSize,
		CountCheckInterval: cfg.Sync.CountCheckInterval,
		Cache:              user.NewCatalogCache(redisClient, cfg.Sync.CatalogCacheTTL),
		Publisher:          publisher,
		Logger:             log.Logger.With().Str("component", "usuarios").Logger(),
	})

	refresher := user.NewRefresher(service, user.NewRedisLocker(redisClient, cfg.Sync.LockTTL), user.RefresherConfig{
		Enabled:  cfg.Sync.Enabled,
		Interval: cfg.Sync.Interval,
	}, log.Logger.With().Str("component", "refresher").Logger())
	service.UseTrigger(refresher)
	refresher.Start(ctx)
	defer refresher.Stop()

	handler := internalhttp.NewRouter(internalhttp.Dependencies{
		Config:   cfg,
		DB:       pool,
		Redis:    redisClient,
		Verifier: verifier,
		Users:    service,
		Trigger:  refresher,
		Messages: i18n.NewCatalog(cfg.DefaultLocale),
		Registry: registry,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.Mode == config.AuthModeHS256 {
		log.Warn().Msg("AUTH_MODE=hs256: tokens locais aceitos, não use em produção")
		return auth.NewJWTManager(cfg.Auth.HS256Secret, cfg.Auth.HS256Issuer, cfg.Auth.HS256TokenTTL), nil
	}
	return auth.NewOIDCVerifier(ctx, cfg.Auth0.Domain, cfg.Auth0.Audience)
}

func configureLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
