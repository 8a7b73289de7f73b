package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-mentor/db"
	"github.com/noah-isme/backend-mentor/internal/adminpricing"
	"github.com/noah-isme/backend-mentor/internal/app"
	"github.com/noah-isme/backend-mentor/internal/audit"
	"github.com/noah-isme/backend-mentor/internal/auth"
	"github.com/noah-isme/backend-mentor/internal/common"
	"github.com/noah-isme/backend-mentor/internal/config"
	"github.com/noah-isme/backend-mentor/internal/health"
	"github.com/noah-isme/backend-mentor/internal/obs"
	"github.com/noah-isme/backend-mentor/internal/pricingcfg"
	"github.com/noah-isme/backend-mentor/internal/quote"
	"github.com/noah-isme/backend-mentor/internal/ratelimit"
	"github.com/noah-isme/backend-mentor/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "mentor")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "mentor-pricing-api",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(ctx, cfg, logger, "mentor-pricing-api")
	defer pool.Close()

	mustRunMigrations(cfg, logger)

	redisClient := mustInitRedis(ctx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	validate := validator.New()

	resolver := pricingcfg.Resolver{
		Store: pricingcfg.NewStore(pool),
		Defaults: pricingcfg.Defaults{
			MentorHourlyRate:  cfg.DefaultHourlyRate,
			CommissionPercent: cfg.CommissionPercent,
			TaxRate:           cfg.TaxRate,
			AgenticAIFee:      cfg.AgenticAIFee,
			Currency:          cfg.Currency,
		},
	}

	engine := &quote.Engine{Config: resolver, Store: quote.NewStore(pool)}
	quoteHandler := &quote.Handler{
		Engine:   engine,
		Cache:    quote.NewCache(redisClient, cfg.BreakdownCacheTTL),
		Validate: validate,
	}

	auditStore := audit.NewStore(pool)
	auditService := audit.Service{Store: auditStore, Enabled: true}
	auditHandler := audit.Handler{Store: auditStore}

	adminHandler := &adminpricing.Handler{
		Store:    adminpricing.NewStore(pool),
		Audit:    auditService,
		Config:   resolver,
		Validate: validate,
		Log:      logger,
	}

	authMiddleware := auth.Middleware{Verifier: auth.Verifier{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	calcLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient},
		Config: ratelimit.Config{
			Key:    ratelimit.PerUserKey("calc"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.CalculateRateLimit,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter unavailable")
		},
	}

	adminLimiter, err := app.NewAdminRateLimiter(redisClient, limiter.Rate{Period: time.Minute, Limit: 30})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise admin rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/pricing", func(p chi.Router) {
			p.With(authMiddleware.Authenticate, calcLimiter.Middleware).Post("/calculate", quoteHandler.Calculate)
			p.With(authMiddleware.RequireAuth, idem.Middleware).Post("/confirm", quoteHandler.Confirm)
			p.Get("/breakdowns/{token}", quoteHandler.GetByToken)
		})

		v.Route("/admin/pricing", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(authMiddleware.RequireRole(auth.RoleAdmin))
			admin.Use(adminLimiter.Handler)

			admin.Post("/simulate", adminHandler.Simulate)

			admin.Post("/mentor-rates", adminHandler.CreateMentorRate)
			admin.Get("/mentor-rates", adminHandler.ListMentorRates)

			admin.Post("/regional-multipliers", adminHandler.CreateRegionalMultiplier)
			admin.Get("/regional-multipliers", adminHandler.ListRegionalMultipliers)

			admin.Post("/surge-rules", adminHandler.CreateSurgeRule)
			admin.Get("/surge-rules", adminHandler.ListSurgeRules)
			admin.Patch("/surge-rules/{id}", adminHandler.ToggleSurgeRule)

			admin.Post("/promos", adminHandler.CreatePromo)
			admin.Get("/promos", adminHandler.ListPromos)
			admin.Put("/promos/{code}", adminHandler.UpdatePromo)

			admin.Post("/community-discounts", adminHandler.CreateCommunityDiscount)
			admin.Get("/community-discounts", adminHandler.ListCommunityDiscounts)

			admin.Post("/commission-policies", adminHandler.CreateCommissionPolicy)
			admin.Get("/commission-policies", adminHandler.ListCommissionPolicies)

			admin.Get("/audit-logs", auditHandler.List)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger, appName string) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustRunMigrations(cfg *config.Config, logger zerolog.Logger) {
	src, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		logger.Fatal().Err(err).Msg("load migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrator")
	}
	if err := app.RunMigrations(m); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Error().Err(srcErr).Msg("close migration source")
	}
	if dbErr != nil {
		logger.Error().Err(dbErr).Msg("close migration db")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
