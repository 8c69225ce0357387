package main

import (
	"context"
	"errors"
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

	"github.com/urocare/pathway/internal/config"
	"github.com/urocare/pathway/internal/domain/decision"
	"github.com/urocare/pathway/internal/domain/guideline"
	"github.com/urocare/pathway/internal/domain/pathway"
	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/domain/scheduling"
	"github.com/urocare/pathway/internal/domain/staff"
	"github.com/urocare/pathway/internal/platform/auth"
	"github.com/urocare/pathway/internal/platform/db"
	"github.com/urocare/pathway/internal/platform/events"
	"github.com/urocare/pathway/internal/platform/lock"
	"github.com/urocare/pathway/internal/platform/middleware"
	"github.com/urocare/pathway/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pathway-server",
		Short: "Urology care pathway guard and automatic scheduling engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(backfillCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the daily scheduler",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
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
	})

	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Automatic appointment scheduler",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily scheduler once",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			infra, err := dialInfra(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer infra.close()

			sched := scheduling.NewScheduler(infra.locker, scheduling.NewRunRepoPG(pool),
				scheduling.NewAppointmentRepoPG(pool), staff.NewClinicianRepoPG(pool),
				infra.publisher, cfg.SchedulerLockTTL, logger)
			run, err := sched.Run(ctx, scheduling.TriggerManual, force)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s: scanned=%d booked=%d appointments=%d skipped=%d excluded=%d\n",
				run.ID, run.Scanned, run.Booked, run.Appointments, run.Skipped, run.Excluded)
			return nil
		},
	}
	runCmd.Flags().Bool("force", false, "Run even if today's run is already recorded")
	cmd.AddCommand(runCmd)

	return cmd
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "One-time data backfills",
	}

	urologistsCmd := &cobra.Command{
		Use:   "urologists",
		Short: "Link legacy urologist names to clinician records",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			logger := newLogger()

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

			b := staff.NewBackfill(patient.NewPatientRepoPG(pool), staff.NewUserRepoPG(pool),
				staff.NewClinicianRepoPG(pool), logger)
			report, err := b.Run(ctx, dryRun)
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d, linked %d, unresolved %d (dry run: %t)\n",
				report.Scanned, report.Linked, report.Unresolved, dryRun)
			return nil
		},
	}
	urologistsCmd.Flags().Bool("dry-run", false, "Resolve names without writing")
	cmd.AddCommand(urologistsCmd)

	return cmd
}

// infra holds the optional redis and amqp connections.
type infra struct {
	locker    lock.Locker
	publisher events.Publisher
	probes    map[string]db.Probe
	closers   []func() error
}

func (i *infra) close() {
	for _, c := range i.closers {
		_ = c()
	}
}

func dialInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	out := &infra{
		locker:    lock.NewLocalLocker(),
		publisher: events.Nop{},
		probes:    map[string]db.Probe{},
	}
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		out.locker = lock.NewRedisLocker(client, "pathway:")
		out.probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		out.closers = append(out.closers, client.Close)
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set; scheduler lock is process-local")
	}
	if cfg.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			out.close()
			return nil, err
		}
		out.publisher = pub
		out.probes["amqp"] = pub.Ping
		out.closers = append(out.closers, pub.Close)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to amqp")
	}
	return out, nil
}

func runServer() error {
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	infra, err := dialInfra(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to infrastructure")
	}
	defer infra.close()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool, infra.probes))

	apiV1 := e.Group("/api/v1")

	// Auth middleware
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Repositories
	patientRepo := patient.NewPatientRepoPG(pool)
	historyRepo := patient.NewHistoryRepoPG(pool)
	clinicianRepo := staff.NewClinicianRepoPG(pool)
	ruleRepo := guideline.NewRuleRepoPG(pool)
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	runRepo := scheduling.NewRunRepoPG(pool)

	// Guidelines
	ruleCache := guideline.NewCache(ruleRepo.ListActive, cfg.GuidelineCacheTTL, logger)
	guidelineSvc := guideline.NewService(ruleRepo, ruleCache)
	guideline.NewHandler(guidelineSvc, patientRepo).RegisterRoutes(apiV1)

	// Pathway guard
	validationLogs := pathway.NewValidationLogRepoPG(pool)
	complianceLogs := pathway.NewComplianceLogRepoPG(pool)
	audit := pathway.NewAuditLog(validationLogs, complianceLogs, cfg.AuditBreakerFailures, logger)
	validator := pathway.NewValidator(patientRepo, historyRepo, apptRepo, audit, logger)
	checker := pathway.NewChecker(patientRepo, historyRepo, guidelineSvc, audit, logger)
	pathwaySvc := pathway.NewService(patientRepo, validator, checker, validationLogs, complianceLogs,
		infra.publisher, cfg.StrictDegraded(), logger)
	pathway.NewHandler(pathwaySvc).RegisterRoutes(apiV1)

	// Decision support
	decisionSvc := decision.NewService(decision.NewRecommendationRepoPG(pool), patientRepo, historyRepo, guidelineSvc, logger)
	decision.NewHandler(decisionSvc).RegisterRoutes(apiV1)

	// Scheduler
	sched := scheduling.NewScheduler(infra.locker, runRepo, apptRepo, clinicianRepo,
		infra.publisher, cfg.SchedulerLockTTL, logger)
	scheduling.NewHandler(sched, runRepo, apptRepo).RegisterRoutes(apiV1)

	var worker *scheduling.Worker
	if cfg.SchedulerEnabled {
		worker = scheduling.NewWorker(sched, cfg.SchedulerCron, cfg.SchedulerRunOnStartup, logger)
		if err := worker.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start scheduler")
		}
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	if worker != nil {
		worker.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
