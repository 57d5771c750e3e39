package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/majidsafwaan2/gymguard/internal/adapter/cache"
	idpadapter "github.com/majidsafwaan2/gymguard/internal/adapter/idp"
	"github.com/majidsafwaan2/gymguard/internal/authz"
	"github.com/majidsafwaan2/gymguard/internal/bootstrap"
	"github.com/majidsafwaan2/gymguard/internal/config"
	"github.com/majidsafwaan2/gymguard/internal/consent"
	"github.com/majidsafwaan2/gymguard/internal/credential"
	httptransport "github.com/majidsafwaan2/gymguard/internal/http"
	"github.com/majidsafwaan2/gymguard/internal/http/handler"
	httpmiddleware "github.com/majidsafwaan2/gymguard/internal/http/middleware"
	"github.com/majidsafwaan2/gymguard/internal/identity"
	"github.com/majidsafwaan2/gymguard/internal/metrics"
	apimiddleware "github.com/majidsafwaan2/gymguard/internal/middleware"
	"github.com/majidsafwaan2/gymguard/internal/repository"
	"github.com/majidsafwaan2/gymguard/internal/server"
	"github.com/majidsafwaan2/gymguard/internal/service"
	"github.com/majidsafwaan2/gymguard/internal/session"
	"github.com/majidsafwaan2/gymguard/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newIdentityRepository,
			newSessionRepository,
			newRedisClient,
			newSessionCache,
			newProviderClient,
			newLocalVerifier,
			newFederatedVerifier,
			newCredentialVerifier,
			newConsentPolicy,
			identity.NewResolver,
			newSessionRegistry,
			newPrometheusRegistry,
			newMetricsRecorder,
			authz.NewGate,
			service.NewAuthService,
			newAuthHandler,
			newAuthorizer,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newIdentityRepository(pool *pgxpool.Pool) repository.IdentityRepository {
	return repository.NewPostgresIdentityRepo(pool)
}

func newSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return repository.NewPostgresSessionRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newSessionCache(client redis.UniversalClient) repository.SessionCache {
	return cacheadapter.NewRedisSessionCache(client)
}

func newProviderClient(cfg config.Config) credential.ProviderClient {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	return idpadapter.NewHTTPProviderClient(httpClient, cfg.ProviderVerifyURL, cfg.ProviderAudience)
}

func newLocalVerifier(cfg config.Config) *credential.LocalVerifier {
	return credential.NewLocalVerifier([]byte(cfg.SigningSecret), cfg.SigningAlgorithm, cfg.TokenIssuer, cfg.AccessTokenTTL)
}

func newFederatedVerifier(provider credential.ProviderClient, cfg config.Config) *credential.FederatedVerifier {
	return credential.NewFederatedVerifier(provider, cfg.ProviderTimeout)
}

func newCredentialVerifier(local *credential.LocalVerifier, federated *credential.FederatedVerifier, cfg config.Config) *credential.Verifier {
	return credential.NewVerifier(local, federated, cfg.TokenIssuer)
}

func newConsentPolicy(cfg config.Config) consent.Policy {
	return consent.Policy{
		AdultAge:          cfg.AdultAgeThreshold,
		MinRegistrableAge: cfg.MinRegistrableAge,
		MaxRegistrableAge: cfg.MaxRegistrableAge,
		Enforced:          cfg.ConsentEnforced,
	}
}

func newSessionRegistry(sessions repository.SessionRepository, identities repository.IdentityRepository, cache repository.SessionCache, node *snowflake.Node, cfg config.Config, recorder metrics.Recorder, logger *zap.Logger) *session.Registry {
	return session.NewRegistry(sessions, identities, cache, node, cfg.SessionTTL, cfg.SessionTokenLen, recorder, logger)
}

func newPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetricsRecorder(reg *prometheus.Registry) metrics.Recorder {
	return metrics.NewCollector(reg)
}

func newAuthHandler(auth *service.AuthService, policy consent.Policy, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, policy, logger)
}

func newAuthorizer(gate *authz.Gate) *httpmiddleware.Authorizer {
	return &httpmiddleware.Authorizer{Gate: gate}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
