package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AlexKimmel/GateQL/internal/auth"
	"github.com/AlexKimmel/GateQL/internal/books"
	"github.com/AlexKimmel/GateQL/internal/books/postgres"
	"github.com/AlexKimmel/GateQL/internal/config"
	"github.com/AlexKimmel/GateQL/internal/gateway"
	"github.com/AlexKimmel/GateQL/internal/obs"
	"github.com/AlexKimmel/GateQL/internal/ratelimit"
	"github.com/AlexKimmel/GateQL/internal/ratelimit/memory"
	"github.com/AlexKimmel/GateQL/internal/ratelimit/redis"
	"github.com/AlexKimmel/GateQL/internal/schema"
)

const version = "v0.1.0"

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}

	cfg, err := config.Load(config.Path("./config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Str("version", version).Msg("Setup logger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	store, err := openCounters(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Counters).Msg("open counter store")
	}
	defer store.Close()

	repo, closeRepo, err := openBooks(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Books).Msg("open book repository")
	}
	defer closeRepo()

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("throttle config")
	}
	for _, r := range registry.Resolvers() {
		logger.Info().Str("resolver", r).Interface("policies", registry.Policies(r)).Msg("throttle attached")
	}

	guard := ratelimit.NewGuard(
		ratelimit.NewEngine(store),
		registry,
		ratelimit.WithLogger(logger),
		ratelimit.WithFailureMode(cfg.FailureMode()),
		ratelimit.OnThrottled(metrics.Throttled),
		ratelimit.OnAdmitted(metrics.Admitted),
		ratelimit.OnStoreError(metrics.StoreError),
	)

	gql, err := schema.New(repo, guard)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse schema")
	}

	pairs := map[string]string{} // secret -> keyID
	for _, k := range cfg.Auth.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	authStore := auth.NewStatic(cfg.Auth.Header, pairs,
		auth.WithRoles(cfg.Auth.RolesByKeyID()),
		auth.AllowAnonymous(cfg.Auth.AllowAnonymous),
		auth.TrustForwardedFor(cfg.Auth.TrustXFF),
	)

	skip := map[string]struct{}{
		"/health":                         {},
		"/version":                        {},
		cfg.Observability.PrometheusPath: {},
	}

	r := chi.NewRouter()
	r.Use(obs.Logger(logger), metrics.Middleware(skip))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})
	r.Method(http.MethodGet, cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Handle(cfg.Server.GraphQLPath, gateway.Chain(
		gateway.NewGraphQL(gql),
		gateway.BodyLimit(int(cfg.Server.MaxBody())),
		authStore.Middleware(skip),
		gateway.Identify(authStore.ClientID),
		gateway.RateLimit(guard, gateway.EndpointResolver, skip),
	))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	// start
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("graphql", cfg.Server.GraphQLPath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

func openCounters(ctx context.Context, cfg *config.Root, logger zerolog.Logger) (ratelimit.Store, error) {
	if cfg.Storage.Counters == "redis" {
		rs, err := redis.Open(ctx, redis.Config{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("addr", cfg.Storage.Redis.Addr).Msg("redis throttle counters")
		return rs, nil
	}
	mem := memory.New()
	mem.StartJanitor(ctx, cfg.Storage.SweepInterval())
	logger.Info().Dur("sweep_every", cfg.Storage.SweepInterval()).Msg("in-memory throttle counters")
	return mem, nil
}

func openBooks(ctx context.Context, cfg *config.Root) (books.Repository, func(), error) {
	if cfg.Storage.Books == "postgres" {
		pool, err := postgres.Connect(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.New(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	}
	return books.NewMemory(), func() {}, nil
}

// buildRegistry attaches the configured policies, refusing identities the
// schema does not serve so that a typo cannot silently disable a throttle.
func buildRegistry(cfg *config.Root) (*ratelimit.Registry, error) {
	resolvers, endpoint, err := cfg.Policies()
	if err != nil {
		return nil, err
	}
	registry := ratelimit.NewRegistry()
	for resolver, policies := range resolvers {
		if !schema.Known(resolver) {
			return nil, &ratelimit.ConfigurationError{Resolver: resolver, Reason: "schema has no such field"}
		}
		if err := registry.Attach(resolver, policies...); err != nil {
			return nil, err
		}
	}
	if len(endpoint) > 0 {
		if err := registry.Attach(gateway.EndpointResolver, endpoint...); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
