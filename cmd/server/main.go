// @title                       Account Service API
// @version                     1.0
// @description                 Login, registration and password recovery on top of a GoTrue identity provider.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/enterprise-hub/account-service/internal/api"
	"github.com/enterprise-hub/account-service/internal/api/handler"
	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
	"github.com/enterprise-hub/account-service/internal/core/service"
	mongostore "github.com/enterprise-hub/account-service/internal/infrastructure/db/mongo"
	"github.com/enterprise-hub/account-service/internal/infrastructure/db/postgres"
	redisstore "github.com/enterprise-hub/account-service/internal/infrastructure/db/redis"
	"github.com/enterprise-hub/account-service/internal/infrastructure/identity/gotrue"
	"github.com/enterprise-hub/account-service/internal/infrastructure/queue"
	"github.com/enterprise-hub/account-service/internal/pkg/config"
	"github.com/enterprise-hub/account-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "account-service",
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	profiles, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()
	revocations := redisstore.NewRevocationList(rdb)

	identity, err := gotrue.NewClient(gotrue.Config{URL: cfg.Supabase.URL, AnonKey: cfg.Supabase.AnonKey})
	if err != nil {
		return err
	}
	// A nil admin keeps login working; registration then reports SERVER_ERROR.
	var admin ports.IdentityAdmin
	adminClient, err := gotrue.NewAdminClient(gotrue.Config{
		URL:            cfg.Supabase.URL,
		AnonKey:        cfg.Supabase.AnonKey,
		ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
	})
	switch {
	case errors.Is(err, gotrue.ErrMissingServiceKey):
		log.Warn().Msg("SUPABASE_SERVICE_ROLE_KEY not set, registration is disabled")
	case err != nil:
		return err
	default:
		admin = adminClient
	}

	cleanup := queue.NewDispatcher(queue.Config{}, service.NewCompensator(admin, profiles), log)
	cleanup.Start(ctx)

	accounts := service.NewAccountService(identity, admin, profiles, service.Options{
		AdminEmails:   cfg.Auth.AdminEmails,
		InitialStatus: domain.AccountStatus(cfg.Auth.InitialStatus),
		SiteURL:       cfg.SiteURL,
		Revoker:       revocations,
		Cleanup:       cleanup,
	}, log)

	e := api.NewRouter(api.Dependencies{
		Accounts:  accounts,
		Roles:     accounts,
		Revoker:   revocations,
		JWTSecret: cfg.Supabase.JWTSecret,
		Cookies: handler.CookieConfig{
			Secure: cfg.Auth.CookieSecure,
			Domain: cfg.Auth.CookieDomain,
		},
		AuthRateLimit: cfg.Auth.RateLimit,
		Readiness: map[string]handler.Checker{
			"store": profiles.Ping,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Logger: log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("starting account service")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.ProfileRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		repo := mongostore.NewProfileRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = mongostore.Disconnect(client)
			return nil, nil, err
		}
		return repo, func() {
			if err := mongostore.Disconnect(client); err != nil {
				log.Error().Err(err).Msg("mongo disconnect failed")
			}
		}, nil
	default:
		db, err := postgres.Open(ctx, postgres.Config{DSN: cfg.Postgres.URL})
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewProfileRepository(db), func() { _ = db.Close() }, nil
	}
}
