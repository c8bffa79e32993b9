// Package main is the entrypoint for the stowbox API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stowbox/stowbox/internal/cache"
	"github.com/stowbox/stowbox/internal/config"
	"github.com/stowbox/stowbox/internal/gc"
	"github.com/stowbox/stowbox/internal/handler"
	"github.com/stowbox/stowbox/internal/identity"
	"github.com/stowbox/stowbox/internal/mailer"
	"github.com/stowbox/stowbox/internal/metrics"
	"github.com/stowbox/stowbox/internal/middleware"
	"github.com/stowbox/stowbox/internal/objectstore"
	"github.com/stowbox/stowbox/internal/repository"
	"github.com/stowbox/stowbox/internal/server"
	"github.com/stowbox/stowbox/internal/service"
	"github.com/stowbox/stowbox/internal/session"
	"github.com/stowbox/stowbox/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.OTLPEndpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		Insecure:    cfg.Tracing.OTLPInsecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if cfg.DatabaseAutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.PoolOptions{Size: cfg.RedisPoolSize})
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	blobs, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize object store",
			slog.String("driver", cfg.ObjectStore.Driver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("object store ready", slog.String("driver", cfg.ObjectStore.Driver))

	recorder := metrics.NewInMemory()

	provider := identity.New(repo, cacheClient, cacheClient, newMailer(cfg, logger), identity.Options{
		SigningKey:  []byte(cfg.Session.SigningKey),
		SessionTTL:  cfg.Session.TTL,
		CodeLength:  cfg.OTP.Length,
		CodeTTL:     cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
	}, recorder, logger)

	accountService := service.NewAccountService(repo, provider, cacheClient, service.AccountOptions{
		AvatarPlaceholderURL: cfg.Session.AvatarPlaceholderURL,
		EmailPerMinute:       cfg.OTP.EmailPerMinute,
	}, recorder, logger)

	urls := objectstore.NewURLBuilder(cfg.ObjectStore.PublicEndpoint, cfg.ObjectStore.Bucket, cfg.ObjectStore.Project)
	fileService := service.NewFileService(repo, blobs, urls, cacheClient, service.FileOptions{
		MaxFileSize:       cfg.Limits.MaxFileSize,
		CapacityBytes:     cfg.Limits.AccountCapacity,
		UploadConcurrency: cfg.Limits.UploadConcurrency,
		ListingTTL:        cfg.ListingCacheTTL,
	}, recorder, logger)

	sessions := session.NewManager(accountService, session.Options{
		CookieName: cfg.Session.CookieName,
		LoginPath:  cfg.Session.LoginPath,
		Insecure:   cfg.IsDevelopment(),
	}, logger)

	sweeper := gc.New(repo, blobs, repo, gc.Config{
		Enabled:     cfg.GC.Enabled,
		Interval:    cfg.GC.Interval,
		GracePeriod: cfg.GC.GracePeriod,
		BatchSize:   cfg.GC.BatchSize,
		DryRun:      cfg.GC.DryRun,
	}, recorder, logger)
	sweeper.Start()

	r := setupRouter(routes{
		auth:    handler.NewAuthHandler(accountService, sessions, logger),
		files:   handler.NewFileHandler(fileService, handler.UploadLimits{MaxFileSize: cfg.Limits.MaxFileSize, MaxFiles: cfg.Limits.MaxFilesPerUpload}, logger),
		health:  handler.NewHealthHandler(logger, handler.Dependency{Name: "postgres", Checker: repo}, handler.Dependency{Name: "redis", Checker: cacheClient}, handler.Dependency{Name: "objectstore", Checker: blobs}),
		metrics: handler.NewMetricsHandler(recorder),
		gc:      handler.NewGCHandler(sweeper, logger),
	}, sessions, cacheClient, recorder, cfg, logger)

	srv := server.New(otelhttp.NewHandler(r, "stowbox", otelhttp.WithFilter(untraced)), server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered in dependency order; they stop in reverse.
	srv.OnShutdown("repository", func(context.Context) error { repo.Close(); return nil })
	srv.OnShutdown("cache", func(context.Context) error { return cacheClient.Close() })
	srv.OnShutdown("tracing", server.ShutdownFunc(shutdownTracing))
	srv.OnShutdown("sweeper", sweeper.Stop)

	logger.Info("starting server",
		slog.Int("port", cfg.AppPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("env", cfg.AppEnv),
		slog.String("version", version),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (objectstore.Store, error) {
	store := cfg.ObjectStore
	switch store.Driver {
	case "minio":
		return objectstore.NewMinioStore(ctx, objectstore.MinioOptions{
			Endpoint:  store.Endpoint,
			AccessKey: store.AccessKey,
			SecretKey: store.SecretKey,
			Bucket:    store.Bucket,
			Region:    store.Region,
			UseSSL:    store.UseSSL,
		}, logger)
	case "s3":
		return objectstore.NewS3Store(ctx, objectstore.S3Options{
			Endpoint:  store.Endpoint,
			Region:    store.Region,
			AccessKey: store.AccessKey,
			SecretKey: store.SecretKey,
			Bucket:    store.Bucket,
		}, logger)
	case "memory":
		return objectstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown object store driver %q", store.Driver)
	}
}

func newMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.Mailer.Driver == "relay" {
		client := mailer.NewHTTPClient(cfg.Mailer.Timeout)
		client.Transport = otelhttp.NewTransport(client.Transport)
		return mailer.NewRelayMailer(cfg.Mailer.RelayURL, cfg.Mailer.RelaySecret, cfg.Mailer.From, client, logger)
	}
	return mailer.NewLogMailer(os.Stdout, logger)
}

type routes struct {
	auth    *handler.AuthHandler
	files   *handler.FileHandler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	gc      *handler.GCHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(h routes, sessions *session.Manager, limiter middleware.IPLimiter, recorder metrics.Recorder, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(cors))

	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)

	if cfg.IsDevelopment() {
		r.Post("/internal/gc", h.gc.Run)
	}

	requireSession := middleware.RequireSession(sessions, logger)
	jsonBody := middleware.MaxBodySize(cfg.MaxRequestBodySize)
	otpLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		Scope:     "otp",
		Limiter:   limiter,
		Counter:   recorder,
		Logger:    logger,
		PerMinute: cfg.OTP.IPPerMinute,
	})
	verifyLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		Scope:     "verify",
		Limiter:   limiter,
		Counter:   recorder,
		Logger:    logger,
		PerMinute: cfg.OTP.VerifyPerMinute,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(jsonBody)
			r.With(otpLimit).Post("/register", h.auth.Register)
			r.With(otpLimit).Post("/sign-in", h.auth.SignIn)
			r.With(otpLimit).Post("/otp", h.auth.ResendOTP)
			r.With(verifyLimit).Post("/verify", h.auth.Verify)
			r.Post("/sign-out", h.auth.SignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Get("/me", h.auth.Me)
			r.Get("/usage", h.files.Usage)

			r.Route("/files", func(r chi.Router) {
				r.Get("/", h.files.List)
				r.Post("/", h.files.Upload)
				r.Delete("/{id}", h.files.Delete)
				r.With(jsonBody).Patch("/{id}/name", h.files.Rename)
				r.With(jsonBody).Put("/{id}/shares", h.files.Share)
			})
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

// untraced skips spans for probe and scrape traffic.
func untraced(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
