/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the timesheet engine server.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve    Run the HTTP server (default when no command is given)
  token    Print a bearer token for an existing user (ops/debugging)
  reset    Delete every row from the database (dev only)
  version  Print the build version

STARTUP SEQUENCE (serve):
  1. Load YAML config (after .env), build the zap logger
  2. Open the SQLite store
  3. Build the settings cache (memory, or Redis layered under memory)
  4. Build metrics, the engine and the JWT service
  5. Bootstrap the administrator from auth.admin_email
  6. Start the period scheduler
  7. Start the HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close cache and database connections

EXAMPLES:
  ./server --conf configs/timesheet.yaml
  ./server token --conf configs/timesheet.yaml --email admin@example.com
  DATABASE_PATH=":memory:" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sections and defaults
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/timesheet-engine/api"
	"github.com/warp/timesheet-engine/auth"
	"github.com/warp/timesheet-engine/cache"
	"github.com/warp/timesheet-engine/calendar"
	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/logger"
	"github.com/warp/timesheet-engine/metrics"
	"github.com/warp/timesheet-engine/store/sqlite"
	"github.com/warp/timesheet-engine/timesheet"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	tokenEmail string

	rootCmd = &cobra.Command{
		Use:   "server",
		Short: "Timesheet engine API server",
		Long:  `Timesheet engine: time entries, projects, tasks and periods behind a role-scoped REST API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printToken(cmd.Context())
		},
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Delete all data from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reset(cmd.Context())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("timesheet-engine version %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "configs/timesheet.yaml", "path to configuration file")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email of the user to issue a token for")
	tokenCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(serveCmd, tokenCmd, resetCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// WIRING
// =============================================================================

// app holds everything serve builds from the config.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *sqlite.Store
	redis   *redis.Client
	metrics *metrics.Metrics
	engine  *timesheet.Engine
	auth    *auth.Service
}

// loadConfig reads path, falling back to the defaults when the file does not
// exist. found is reported so the caller can log it once zap is built.
func loadConfig(path string) (cfg *config.Config, found bool, err error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), false, nil
	}
	cfg, err = config.Load(path)
	return cfg, true, err
}

// setup loads the config and builds the logger it describes.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, found, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	zl, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if !found {
		zl.Warn("config file not found, using defaults", zap.String("path", configPath))
	}
	return cfg, zl, nil
}

func build(ctx context.Context) (*app, error) {
	cfg, zl, err := setup()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: zl}

	a.store, err = sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	settingsCache, err := a.buildCache(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var recorder timesheet.Recorder
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
		recorder = a.metrics
	}

	loc, err := cfg.Timesheet.Location()
	if err != nil {
		a.close()
		return nil, err
	}
	periodType, err := calendar.ParsePeriodType(cfg.Timesheet.PeriodType)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = timesheet.New(a.store, timesheet.Options{
		Policy:     cfg.Timesheet.Policy(),
		PeriodType: periodType,
		Location:   loc,
		Cache:      settingsCache,
		Logger:     zl,
		Recorder:   recorder,
	})

	a.auth, err = auth.NewService(auth.Config{SecretKey: cfg.Auth.JWTSecret, Duration: cfg.Auth.TokenDuration})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("auth: %w", err)
	}
	return a, nil
}

func (a *app) buildCache(ctx context.Context) (cache.Cache, error) {
	l1 := cache.NewMemory(a.cfg.Cache.TTL)
	if a.cfg.Cache.Type != "redis" {
		return l1, nil
	}
	rc := a.cfg.Cache.Redis
	a.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		// The layered cache degrades to L1 on L2 errors, so an unreachable
		// Redis is not fatal.
		a.logger.Warn("redis unreachable at startup", zap.String("addr", rc.Addr), zap.Error(err))
	}
	return cache.NewLayered(l1, cache.NewRedis(a.redis, rc.Prefix, a.cfg.Cache.TTL), a.logger), nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Sync()
}

// =============================================================================
// COMMANDS
// =============================================================================

func serve(ctx context.Context) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	lg := a.logger

	if a.cfg.Auth.AdminEmail != "" {
		user, created, err := a.engine.Directory.EnsureAdmin(ctx, a.cfg.Auth.AdminEmail, a.cfg.Auth.AdminPassword, a.cfg.Auth.AdminName)
		if err != nil {
			return fmt.Errorf("bootstrap administrator: %w", err)
		}
		if created {
			lg.Info("administrator created", zap.String("email", user.Email))
		}
	}

	handler := api.NewHandler(a.engine, a.auth, lg)
	handler.Ping = a.store.Ping
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Metrics:     a.metrics,
	})

	scheduler := api.NewPeriodScheduler(a.engine.Periods, lg)
	scheduler.Enabled = a.cfg.Scheduler.Enabled
	scheduler.CheckInterval = a.cfg.Scheduler.Interval
	if a.metrics != nil {
		scheduler.Recorder = a.metrics
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening",
			zap.Int("port", a.cfg.Server.Port),
			zap.String("database", a.cfg.Database.Path),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	lg.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	lg.Info("server stopped")
	return nil
}

func printToken(ctx context.Context) error {
	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	user, err := a.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(tokenEmail)))
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return fmt.Errorf("no active user with email %s", tokenEmail)
	}
	token, expires, err := a.auth.GenerateToken(user.Principal())
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expires.Format(time.RFC3339))
	return nil
}

func reset(ctx context.Context) error {
	cfg, zl, err := setup()
	if err != nil {
		return err
	}
	defer zl.Sync()
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Reset(ctx); err != nil {
		return err
	}
	zl.Info("database reset", zap.String("path", cfg.Database.Path))
	return nil
}
