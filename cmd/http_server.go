package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/crm-backend/api"
	"github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/auth"
	authredis "github.com/frahmantamala/crm-backend/internal/auth/redis"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/mailer"
	"github.com/frahmantamala/crm-backend/internal/role"
	rolepg "github.com/frahmantamala/crm-backend/internal/role/postgres"
	"github.com/frahmantamala/crm-backend/internal/settings"
	settingspg "github.com/frahmantamala/crm-backend/internal/settings/postgres"
	"github.com/frahmantamala/crm-backend/internal/storage"
	"github.com/frahmantamala/crm-backend/internal/transport"
	"github.com/frahmantamala/crm-backend/internal/transport/middleware"
	"github.com/frahmantamala/crm-backend/internal/transport/rest"
	"github.com/frahmantamala/crm-backend/internal/user"
	userpg "github.com/frahmantamala/crm-backend/internal/user/postgres"
	"github.com/frahmantamala/crm-backend/pkg/logger"
	pkgredis "github.com/frahmantamala/crm-backend/pkg/redis"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  *goredis.Client
	Bus    *events.EventBus
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	ctx := context.Background()
	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(ctx, deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "environment", deps.Config.Environment)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.close()
	deps.Logger.Info("Server stopped")
}

// close drains pending event handlers, then releases redis and the database.
func (d *Dependencies) close() {
	d.Bus.Wait()
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func setupRoutes(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	roleService := role.NewService(rolepg.NewRoleRepository(deps.Gorm), rolepg.NewUsageCounter(deps.DB), deps.Bus, lg)
	resolver := role.NewResolver(roleService, lg)

	var blobs user.BlobStore
	if cfg.Storage.Enabled() {
		store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize avatar storage: %w", err)
		}
		blobs = store
	} else {
		lg.Warn("object storage not configured, avatar uploads disabled")
	}

	userRepo := userpg.NewUserRepository(deps.Gorm)
	hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost)
	userService := user.NewService(userRepo, resolver, roleService, hasher, blobs, deps.Bus, lg).
		WithMaxAvatarSize(cfg.Storage.MaxAvatarBytes)

	settingsService := settings.NewService(
		settingspg.NewTemplateRepository(deps.Gorm),
		settingspg.NewDocumentRepository(deps.Gorm),
		userService,
		resolver,
		deps.Bus,
		lg,
	)

	mail, err := mailer.NewSender(cfg.Email, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(userRepo, tokens, hasher, deps.Bus, lg).
		WithOTP(authredis.NewOTPStore(deps.Redis), mail, auth.OTPSettings{
			TTL:         cfg.OTP.TTL,
			Length:      cfg.OTP.Length,
			MaxAttempts: cfg.OTP.MaxAttempts,
		})
	if cfg.OAuth.Enabled() {
		authService = authService.WithGoogle(
			auth.NewGoogleProvider(cfg.OAuth),
			authredis.NewStateStore(deps.Redis),
			userService,
			cfg.OAuth.StateTTL,
		)
	} else {
		lg.Warn("google sign-in not configured")
	}

	base := transport.NewBaseHandler(lg)
	handlers := rest.Handlers{
		Health:   rest.NewHealthHandler(base, deps.DB, deps.Redis),
		Auth:     auth.NewHandler(base, authService),
		RBAC:     auth.NewRBACAuthorization(resolver, lg),
		User:     user.NewHandler(base, userService, cfg.Storage.MaxAvatarBytes),
		Role:     role.NewHandler(base, roleService),
		Settings: settings.NewHandler(base, settingsService),
	}

	opts := rest.Options{
		AllowedOrigins: cfg.Server.Origins(),
		OpenAPISpec:    api.Spec,
	}
	if cfg.Server.ValidateRequests {
		doc, err := middleware.LoadOpenAPI(ctx, api.Spec)
		if err != nil {
			return fmt.Errorf("failed to load openapi document: %w", err)
		}
		validator, err := middleware.OpenAPIValidator(doc, base)
		if err != nil {
			return fmt.Errorf("failed to build request validator: %w", err)
		}
		opts.Validator = validator
	}

	rest.RegisterAllRoutes(deps.Router, handlers, opts, lg)
	return nil
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	rdb, err := pkgredis.Connect(ctx, pkgredis.Config{
		URL:            config.Redis.ConnectionURL,
		RetryAttempts:  config.Redis.RetryAttempts,
		RetryInterval:  config.Redis.RetryInterval,
		ConnectTimeout: config.Redis.ConnectTimeout,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	bus := events.NewEventBus(lg)
	events.RegisterAuditLogger(bus, lg)

	return &Dependencies{
		Config: config,
		DB:     db,
		Gorm:   gdb,
		Redis:  rdb,
		Bus:    bus,
		Router: chi.NewRouter(),
		Logger: lg,
	}, nil
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initGorm runs gorm on the sqlx pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}
