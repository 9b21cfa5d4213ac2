package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/teresarei/uro-insights-66-sub000/internal/config"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/analysis"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/blocks"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/domain/scanimport"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/changefeed"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/db"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/middleware"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/reporting"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "diary-server",
		Short: "Bladder diary API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func dayWindow(cfg *config.Config) analysis.DayWindow {
	return analysis.DayWindow{StartHour: cfg.DayStartHour, EndHour: cfg.DayEndHour}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the diary API server",
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

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
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
		return fn(ctx, db.NewMigrator(pool, dir))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
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

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Change feed
	checks := map[string]db.Checker{}
	var bus changefeed.Bus
	if cfg.RedisURL != "" {
		rb, err := changefeed.NewRedisBus(ctx, cfg.RedisURL, cfg.RedisChannel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rb.Close()
		if err := rb.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start change feed")
		}
		checks["redis"] = rb.Ping
		bus = rb
		logger.Info().Str("channel", cfg.RedisChannel).Msg("redis change feed started")
	} else {
		bus = changefeed.NewMemoryBus(logger)
		logger.Info().Msg("in-process change feed")
	}

	// Services
	window := dayWindow(cfg)
	eventRepo := diary.NewEventRepoPG(pool)
	diarySvc := diary.NewService(eventRepo, bus, logger)
	analysisSvc := analysis.NewService(eventRepo, analysis.NewProfileRepoPG(pool), window, logger)
	blockSvc := blocks.NewService(blocks.NewBlockRepoPG(pool), eventRepo, cfg.BlockDuration(), window, logger)

	var extractor scanimport.Extractor
	if cfg.ScanExtractorURL != "" {
		extractor = scanimport.NewHTTPExtractor(cfg.ScanExtractorURL, cfg.ScanExtractorTimeout)
	}
	scanSvc := scanimport.NewService(extractor, diarySvc, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	// Uploads may carry MaxImages full-size images plus form overhead.
	uploadLimit := fmt.Sprintf("%dM", (scanimport.MaxImages*scanimport.MaxImageBytes)>>20+1)
	e.Use(middleware.BodyLimit("1M", uploadLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: cfg.SigningKey(),
		}))
	}
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	diary.NewHandler(diarySvc).RegisterRoutes(apiV1)
	analysis.NewHandler(analysisSvc).RegisterRoutes(apiV1)
	blocks.NewHandler(blockSvc).RegisterRoutes(apiV1)
	scanimport.NewHandler(scanSvc).RegisterRoutes(apiV1)
	reporting.NewHandler(analysisSvc).RegisterRoutes(apiV1)
	websocket.NewHandler(websocket.NewHub(), bus, diarySvc, analysisSvc, window, logger).RegisterRoutes(apiV1)

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
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
