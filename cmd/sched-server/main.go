package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medisched/medisched/internal/config"
	"github.com/medisched/medisched/internal/domain/schedule"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/db"
	"github.com/medisched/medisched/internal/platform/events"
	"github.com/medisched/medisched/internal/platform/jobs"
	"github.com/medisched/medisched/internal/platform/lock"
	"github.com/medisched/medisched/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sched-server",
		Short: "Doctor schedule capacity API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the schedule API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// workerCmd runs the background job server: the nightly sweep that expires
// past-dated schedules, plus any tasks enqueued ad hoc.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the background job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			deps, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			handler := jobs.NewHandler(deps.Service, logger)
			srv, mux, err := jobs.NewServer(cfg.RedisURL, handler)
			if err != nil {
				return err
			}

			scheduler, err := jobs.NewScheduler(cfg.RedisURL)
			if err != nil {
				return err
			}
			go func() {
				if err := scheduler.Run(); err != nil {
					logger.Error().Err(err).Msg("scheduler stopped")
				}
			}()

			logger.Info().Msg("starting job worker")
			return srv.Run(mux)
		},
	}
}

// sweepCmd expires past-dated schedules once and exits. Useful for cron
// environments that do not run the asynq worker.
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-expired",
		Short: "Mark past-dated schedules as expired and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			deps, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			count, err := deps.Service.MarkExpiredSchedules(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			logger.Info().Int("expired", count).Msg("sweep complete")
			return nil
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	deps, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer deps.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M", "10M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Token endpoint and auth middleware
	secret, generated, err := resolveSigningSecret(cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid JWT secret")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set, using a random per-process secret")
	}
	verifier := auth.NewVerifier(string(secret), cfg.JWTIssuer, cfg.JWTAudience)

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		tokenHandler := auth.NewTokenHandler(verifier, devAccounts(), devAccountRoles())
		tokenHandler.RegisterRoutes(e.Group("/api/v1"))
		apiV1.Use(auth.DevMiddleware())
	} else {
		apiV1.Use(verifier.Middleware())
	}
	// After auth, so the limiter buckets by authenticated user.
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	handler := schedule.NewHandler(deps.Service)
	handler.RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(deps.Pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// serviceDeps bundles the shared infrastructure behind the schedule service
// so the serve, worker and sweep commands wire it identically.
type serviceDeps struct {
	Service *schedule.Service
	Pool    *pgxpool.Pool
	rdb     *redis.Client
}

func (d *serviceDeps) Close() {
	if d.rdb != nil {
		d.rdb.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

func buildService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*serviceDeps, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	var publisher schedule.EventPublisher
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, publishing events to log only")
		publisher = events.NewLogPublisher(logger)
	} else {
		publisher = events.NewStreamPublisher(rdb, cfg.EventStream, logger)
	}

	scheduleRepo := schedule.NewScheduleRepo(pool)
	slotRepo := schedule.NewSlotRepo(pool)

	svc := schedule.NewService(
		scheduleRepo,
		schedule.NewSlotManager(slotRepo),
		schedule.NewAutoScheduler(schedule.DefaultStrategyRegistry(), scheduleRepo),
		lock.NewRedisLocker(rdb),
		db.NewTransactor(pool),
		publisher,
		logger,
		schedule.WithLockTimings(cfg.LockWait(), cfg.LockLease()),
	)

	return &serviceDeps{Service: svc, Pool: pool, rdb: rdb}, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// resolveSigningSecret returns the JWT signing secret. When none is
// configured it generates a random per-process secret, which invalidates
// tokens on restart but never falls back to a predictable default.
func resolveSigningSecret(configured string) (secret []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}

	buf := make([]byte, 32)
	if _, err := crypto_rand.Read(buf); err != nil {
		return nil, false, fmt.Errorf("generate signing secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), true, nil
}

// devAccounts are the service accounts available from the dev-only token
// endpoint. Production deployments issue tokens from an external identity
// provider and never register this endpoint.
func devAccounts() map[string]string {
	return map[string]string{
		"admin":     "admin",
		"scheduler": "scheduler",
		"staff":     "staff",
	}
}

func devAccountRoles() map[string][]string {
	return map[string][]string{
		"admin":     {"admin"},
		"scheduler": {"scheduler"},
		"staff":     {"staff"},
	}
}
