package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caseload/caseload/internal/config"
	"github.com/caseload/caseload/internal/domain/patient"
	"github.com/caseload/caseload/internal/domain/session"
	"github.com/caseload/caseload/internal/platform/auth"
	"github.com/caseload/caseload/internal/platform/db"
	"github.com/caseload/caseload/internal/platform/logging"
	"github.com/caseload/caseload/internal/platform/middleware"
	"github.com/caseload/caseload/internal/platform/notification"
	"github.com/caseload/caseload/internal/platform/telemetry"
	"github.com/caseload/caseload/internal/platform/websocket"
	"github.com/caseload/caseload/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caseload-server",
		Short: "Practitioner session scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// reminders bundles the notifier side of the server. stop releases whatever
// the chosen backend holds.
type reminders struct {
	notifier notification.Notifier
	handles  notification.HandleStore
	run      func(ctx context.Context)
	stop     func()
}

// newReminders uses Redis when REDIS_URL is set and in-process timers
// otherwise.
func newReminders(ctx context.Context, cfg *config.Config, deliver notification.Deliverer, logger zerolog.Logger) (*reminders, error) {
	if cfg.RedisURL == "" {
		handles := notification.NewMemoryHandleStore()
		timers := notification.NewTimerNotifier(notification.NewFiredReleaser(deliver, handles, logger), logger)
		logger.Warn().Msg("REDIS_URL not set; reminders are kept in process memory")
		return &reminders{
			notifier: timers,
			handles:  handles,
			run:      func(context.Context) {},
			stop:     timers.Stop,
		}, nil
	}

	rdb, err := notification.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	handles := notification.NewRedisHandleStore(rdb)
	notifier := notification.NewRedisNotifier(rdb, logger)
	dispatcher := notification.NewDispatcher(notifier, notification.NewFiredReleaser(deliver, handles, logger), cfg.ReminderPollInterval, logger)
	return &reminders{
		notifier: notifier,
		handles:  handles,
		run: func(ctx context.Context) {
			if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("reminder dispatcher stopped")
			}
		},
		stop: func() { closeRedis(rdb, logger) },
	}, nil
}

func closeRedis(rdb *redis.Client, logger zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn().Err(err).Msg("redis close failed")
	}
}

func newSender(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notification.Sender, error) {
	if cfg.FCMCredentialsFile == "" {
		return notification.LogSender{Logger: logger}, nil
	}
	return notification.NewFCMSender(ctx, cfg.FCMCredentialsFile)
}

type routerDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	health   echo.HandlerFunc
	patients *patient.Handler
	sessions *session.Handler
	live     *websocket.Handler
}

func newRouter(d routerDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(d.metrics.Middleware())

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     d.cfg.AuthIssuer,
		SigningKey: []byte(d.cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if d.cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET(auth.HealthPath, d.health)
	e.GET(auth.MetricsPath, d.metrics.Handler())

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if d.cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = d.cfg.RateLimitRPS
		rateLimitCfg.BurstSize = d.cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	d.patients.RegisterRoutes(apiV1)
	d.sessions.RegisterRoutes(apiV1)
	d.live.RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{
		Env:        cfg.Env,
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	// Database
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if n, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	} else if n > 0 {
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	// Reminders
	metrics := telemetry.New()
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise push sender")
	}
	hub := websocket.NewHub(logger)
	deliver := notification.NewDelivery(notification.NewTemplateEngine(), notification.MultiSender{sender, hub}, metrics, logger)
	rem, err := newReminders(ctx, cfg, deliver, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise reminders")
	}
	defer rem.stop()
	go rem.run(ctx)

	// Domain services
	tx := db.NewTxRunner(pool)
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), tx, cfg.PhoneRegion, logger)
	scheduler := session.NewScheduler(rem.notifier, loc, metrics, logger)
	sessionSvc := session.NewService(session.NewSessionRepoPG(pool), patientSvc, tx, scheduler, rem.handles, metrics, logger)
	patientSvc.SetSessionRemover(sessionSvc)

	e := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		health:   db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }),
		patients: patient.NewHandler(patientSvc),
		sessions: session.NewHandler(sessionSvc),
		live:     websocket.NewHandler(hub, cfg.CORSOrigins),
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
