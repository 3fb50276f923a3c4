package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/frontdesk/internal/config"
	"github.com/ehr/frontdesk/internal/domain/admission"
	"github.com/ehr/frontdesk/internal/domain/announce"
	"github.com/ehr/frontdesk/internal/domain/intake"
	"github.com/ehr/frontdesk/internal/domain/timesheet"
	"github.com/ehr/frontdesk/internal/domain/visit"
	"github.com/ehr/frontdesk/internal/platform/auth"
	"github.com/ehr/frontdesk/internal/platform/db"
	"github.com/ehr/frontdesk/internal/platform/lock"
	"github.com/ehr/frontdesk/internal/platform/middleware"
	"github.com/ehr/frontdesk/internal/platform/websocket"
	"github.com/ehr/frontdesk/migrations"
)

const requestTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "frontdesk-server",
		Short: "Clinic front-desk admission and queue server",
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
		Short: "Start the front-desk API server",
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
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
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
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func withMigrator(dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.ClinicTimezone)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationsFS(dir)))
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.JWTSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

// newLocker uses Redis when REDIS_URL is set so that begin-visit locks hold
// across replicas, and an in-process lock otherwise.
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, using in-process visit locks (single replica only)")
		return lock.NewMemoryLock(), func() {}, nil
	}
	rl, err := lock.NewRedisLock(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return rl, func() { rl.Close() }, nil
}

type app struct {
	echo     *echo.Echo
	hub      *websocket.Hub
	stations *intake.Registry
	displays *announce.Displays
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, locker lock.Locker, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(authMiddleware(cfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	hub := websocket.NewHub(logger)
	websocket.NewWebSocketHandler(hub).RegisterRoutes(e.Group(""))

	apiV1 := e.Group("/api/v1")

	// Timesheets
	tsSvc := timesheet.NewService(timesheet.NewRepoPG(pool), db.Transactor(pool), timesheet.DefaultLabels, loc)
	timesheet.NewHandler(tsSvc).RegisterRoutes(apiV1)

	// Visits
	machine := visit.NewMachine(visit.NewRepoPG(pool), locker, hub, loc, logger)
	visit.NewHandler(machine).RegisterRoutes(apiV1)

	// Admissions
	admSvc := admission.NewService(admission.NewLookupPG(pool), machine, loc, logger)
	admission.NewHandler(admSvc).RegisterRoutes(apiV1)

	// Intake stations
	stations := intake.NewRegistry(admSvc, func(id string) intake.Sink {
		return intake.NewHubSink(hub, id, logger)
	}, intake.DefaultOptions(), logger)
	intake.NewHandler(stations).RegisterRoutes(apiV1)

	// Queue displays
	displays := announce.NewDisplays(machine, hub, cfg.QueuePollInterval, loc, logger)
	announce.NewHandler(displays).RegisterRoutes(apiV1)

	return &app{echo: e, hub: hub, stations: stations, displays: displays}, nil
}

// shutdown stops background work before the HTTP server so no timer or
// poll fires against a closed hub.
func (a *app) shutdown(ctx context.Context) error {
	a.displays.CloseAll()
	a.stations.CloseAll()
	err := a.echo.Shutdown(ctx)
	a.hub.Close()
	return err
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.ClinicTimezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeLocker()

	a, err := newApp(cfg, pool, locker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	if cfg.AnnouncerEnabled {
		info, err := a.displays.Open(0, true)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start facility announcer")
		}
		logger.Info().Str("display_id", info.ID).Str("topic", info.Topic).Msg("facility announcer started")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
