package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthpost/vaxsched/internal/config"
	"github.com/healthpost/vaxsched/internal/domain/immunization"
	"github.com/healthpost/vaxsched/internal/platform/auth"
	"github.com/healthpost/vaxsched/internal/platform/db"
	"github.com/healthpost/vaxsched/internal/platform/defaulter"
	"github.com/healthpost/vaxsched/internal/platform/logging"
	"github.com/healthpost/vaxsched/internal/platform/middleware"
	"github.com/healthpost/vaxsched/internal/platform/reporting"
	"github.com/healthpost/vaxsched/internal/program"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the schedule API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Dev:        cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

func loadCatalog(cfg *config.Config) (*program.Catalog, error) {
	if cfg.TemplatesFile == "" {
		return program.DefaultCatalog(), nil
	}
	return program.LoadCatalog(cfg.TemplatesFile)
}

// store is the opened database together with everything that depends on the
// driver.
type store struct {
	subjects immunization.SubjectRepository
	migrator *db.Migrator
	pinger   db.Pinger
	stats    func() *db.PoolStats
	close    func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			subjects: immunization.NewSubjectRepoSQLite(conn),
			migrator: db.NewSQLiteMigrator(conn),
			pinger:   db.SQLPinger{DB: conn},
			close:    func() { _ = conn.Close() },
		}, nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &store{
			subjects: immunization.NewSubjectRepoPG(pool),
			migrator: db.NewPostgresMigrator(pool),
			pinger:   pool,
			stats:    func() *db.PoolStats { return db.GetPoolStats(pool) },
			close:    pool.Close,
		}, nil
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Error().Err(err).Str("file", cfg.TemplatesFile).Msg("failed to load program templates")
		return err
	}

	// Database
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.DBDriver).Msg("failed to connect to database")
		return err
	}
	defer st.close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	if cfg.DBDriver == "sqlite" {
		n, err := st.migrator.Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info().Int("applied", n).Msg("sqlite schema ready")
	}

	svc := immunization.NewService(st.subjects, catalog, immunization.Options{
		Location:  loc,
		GraceDays: cfg.DefaulterGraceDays,
	}, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", "Location", middleware.RequestIDHeader},
	}))

	// Health check
	e.GET("/health", db.HealthHandler(cfg.DBDriver, st.pinger, st.stats))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	limiter := middleware.RateLimit(rateLimitCfg)

	// API groups
	apiV1 := e.Group("/api/v1", authMW, limiter)
	fhirGroup := e.Group("/fhir", authMW, limiter)

	immunization.NewHandler(svc, cfg.PrivilegedRoles).RegisterRoutes(apiV1, fhirGroup)
	reporting.NewHandler(svc).RegisterRoutes(apiV1)

	// Defaulter sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := defaulter.NewSweeper(svc, cfg.DefaulterSweepSpec, loc, logger)
	if err := sweeper.Start(sweepCtx); err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sweeper.Stop(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
