package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/config"
	"github.com/BradenHooton/arcadia/internal/database"
	"github.com/BradenHooton/arcadia/internal/handlers"
	"github.com/BradenHooton/arcadia/internal/metrics"
	middlewareCustom "github.com/BradenHooton/arcadia/internal/middleware"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/repositories"
	"github.com/BradenHooton/arcadia/internal/routes"
	"github.com/BradenHooton/arcadia/internal/services"
	pkgauth "github.com/BradenHooton/arcadia/pkg/auth"
	pkghttp "github.com/BradenHooton/arcadia/pkg/http"
	pkglogger "github.com/BradenHooton/arcadia/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("sessions", cfg.Storage.SessionDriver),
		slog.String("email", cfg.Email.Provider),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	accounts, accountsHealth, closeAccounts, err := openAccountStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open account store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeAccounts()

	sessions, sessionsHealth, closeSessions, err := openSessionStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeSessions()

	// Email transport
	var emailSender services.EmailSender
	if cfg.Email.Provider == config.EmailProviderSES {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		emailSender, err = services.NewSESEmailSender(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("EMAIL_PROVIDER=log: one-time codes will not be delivered")
		emailSender = services.NewLogEmailSender(logger)
	}

	// Authenticator-app MFA needs an encryption key for the stored secrets
	var totpManager *auth.TOTPManager
	if len(cfg.MFA.EncryptionKey) > 0 {
		totpManager, err = auth.NewTOTPManager(cfg.MFA.EncryptionKey, cfg.MFA.Issuer)
		if err != nil {
			logger.Error("failed to initialize totp", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Info("MFA_ENCRYPTION_KEY not set, authenticator-app MFA disabled")
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.IdentityTokenExpiry, cfg.Security.LoginOTPExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)
	appMetrics := metrics.New("arcadia")

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: cfg.Security.TimingBaseDelay,
		Jitter:    cfg.Security.TimingJitter,
	})

	deps := services.AuthDeps{
		Accounts: accounts,
		Sessions: sessions,
		Tokens:   tokenManager,
		TOTP:     totpManager,
		Email:    emailSender,
		Timing:   timingDelay,
		Metrics:  appMetrics,
		Logger:   logger,
		Audit:    auditLogger,
	}
	authCfg := services.AuthConfig{
		Lockout:          auth.LockoutPolicy{Threshold: cfg.Security.LockoutThreshold, Duration: cfg.Security.LockoutDuration},
		Password:         auth.PasswordPolicy{MaxAge: cfg.Security.PasswordMaxAge, HistorySize: cfg.Security.PasswordHistorySize},
		LoginOTPExpiry:   cfg.Security.LoginOTPExpiry,
		ResetOTPExpiry:   cfg.Security.ResetOTPExpiry,
		ResetTokenExpiry: cfg.Security.ResetTokenExpiry,
		SessionExpiry:    cfg.Auth.SessionTokenExpiry,
		MaxOTPAttempts:   cfg.Security.MaxOTPAttempts,
		AppURL:           cfg.Email.AppURL,
		EmailTimeout:     cfg.Email.SendTimeout,
	}

	authService := services.NewAuthService(deps, authCfg)
	mfaService := services.NewMFAService(deps, authCfg)
	adminService := services.NewAdminService(accounts, logger, auditLogger)

	// Bootstrap first admin if configured
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdmin(ctx, authService, accounts, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(appMetrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:  handlers.NewAuthHandler(authService, ipConfig, logger),
		MFA:   handlers.NewMFAHandler(mfaService, logger),
		Admin: handlers.NewAdminHandler(adminService, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"accounts": accountsHealth,
			"sessions": sessionsHealth,
		}, logger),
	}, routes.Options{
		Authenticator: auth.NewAuthenticator(tokenManager, accounts, logger),
		Metrics:       appMetrics,
		RateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RateLimit,
			IPConfig:          ipConfig,
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// openAccountStore connects the configured account repository and returns
// it with a health check and a close function
func openAccountStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.AccountRepository, handlers.HealthCheck, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, nil, err
			}
		}
		return repositories.NewPostgresAccountRepository(db), db.HealthCheck, db.Close, nil

	case config.StorageMongo:
		mdb, err := database.NewMongoConnection(&cfg.Mongo, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := repositories.NewMongoAccountRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			mdb.Close()
			return nil, nil, nil, err
		}
		return repo, mdb.HealthCheck, mdb.Close, nil

	default:
		logger.Warn("STORAGE_DRIVER=memory: accounts are lost on restart")
		return repositories.NewMemoryAccountRepository(), func(context.Context) error { return nil }, func() {}, nil
	}
}

// openSessionStore returns the Redis session registry when REDIS_ADDR is
// set, the in-process one otherwise
func openSessionStore(cfg *config.Config, logger *slog.Logger) (repositories.SessionStore, handlers.HealthCheck, func(), error) {
	if cfg.Storage.SessionDriver != "redis" {
		return repositories.NewMemorySessionStore(), func(context.Context) error { return nil }, func() {}, nil
	}

	client, err := database.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	health := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", slog.Any("error", err))
		}
	}
	return repositories.NewRedisSessionStore(client), health, closeFn, nil
}

// ensureAdmin registers the first admin from ADMIN_USERNAME, ADMIN_EMAIL and
// ADMIN_PASSWORD if they are set and the account does not exist yet
func ensureAdmin(ctx context.Context, authService *services.AuthService, accounts repositories.AccountRepository, logger *slog.Logger) error {
	username := os.Getenv("ADMIN_USERNAME")
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || email == "" || password == "" {
		logger.Info("no ADMIN_USERNAME, ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	existing, err := accounts.GetByEmail(ctx, pkgauth.NormalizeEmail(email))
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			logger.Info("admin account already exists")
			return nil
		}
		return fmt.Errorf("ADMIN_EMAIL belongs to a non-admin account")
	case !errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("failed to check for admin: %w", err)
	}

	account, err := authService.Register(ctx, services.RegisterRequest{Username: username, Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	role := models.RoleAdmin
	if _, err := accounts.UpdateStanding(ctx, account.ID, models.StandingUpdate{Role: &role, At: time.Now()}); err != nil {
		return fmt.Errorf("failed to grant admin role: %w", err)
	}

	logger.Info("admin account created", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
