package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/automaxprocs/maxprocs"

	appScanning "secintel/internal/app/scanning"
	"secintel/internal/config"
	"secintel/internal/domain/detection"
	"secintel/internal/infra/contents"
	"secintel/internal/infra/eventbus/kafka"
	findingStore "secintel/internal/infra/storage/findings/postgres"
	jobStore "secintel/internal/infra/storage/scanning/postgres"
	"secintel/pkg/common/logger"
	"secintel/pkg/common/otel"
)

const serviceType = "scan-worker"

func main() {
	_, _ = maxprocs.Set()

	// Missing .env is fine; production config comes from the environment.
	_ = godotenv.Load()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	cfg, err := config.Load(serviceType)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("%s-%s", serviceType, hostname)
	logg := logger.New(os.Stdout, parseLogLevel(cfg.LogLevel), svcName, traceIDFn)

	ctx := context.Background()

	if err := run(ctx, logg, cfg, hostname); err != nil {
		logg.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) logger.Level {
	switch s {
	case "debug", "DEBUG":
		return logger.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return logger.LevelWarn
	case "error", "ERROR":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func run(ctx context.Context, logg *logger.Logger, cfg *config.Config, hostname string) error {
	logg.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Start Tracing Support

	logg.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(logg, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		Probability:      cfg.Telemetry.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"hostname":         hostname,
			"app":              serviceType,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(context.Background())

	tracer := traceProvider.Tracer(cfg.Telemetry.ServiceName)

	// -------------------------------------------------------------------------
	// Database Support

	logg.Info(ctx, "startup", "status", "initializing database support")

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logg.Info(ctx, "startup", "status", "migrations applied")

	// -------------------------------------------------------------------------
	// Initialize Event Bus

	logg.Info(ctx, "startup", "status", "initializing event bus")

	metricCollector, err := appScanning.NewWorkerMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	bus, err := kafka.ConnectWithRetry(&kafka.Config{
		Brokers:                cfg.Kafka.Brokers,
		PushEventsTopic:        cfg.Kafka.PushEventsTopic,
		PullRequestEventsTopic: cfg.Kafka.PullRequestEventsTopic,
		ReleaseEventsTopic:     cfg.Kafka.ReleaseEventsTopic,
		SecurityAdvisoryTopic:  cfg.Kafka.SecurityAdvisoryTopic,
		GroupID:                cfg.Kafka.GroupID,
		ClientID:               fmt.Sprintf("%s-%s", serviceType, hostname),
		ServiceType:            serviceType,
	}, logg, metricCollector, tracer)
	if err != nil {
		return fmt.Errorf("connecting event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logg.Error(ctx, "shutdown", "status", "closing event bus", "err", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start Scan Worker

	logg.Info(ctx, "startup", "status", "initializing scan worker")

	fetcher := contents.NewGitHubFetcher(
		&http.Client{Timeout: 30 * time.Second},
		cfg.GitHub.Token,
		logg,
		tracer,
		contents.WithBaseURL(cfg.GitHub.APIBaseURL),
	)

	orchestrator := appScanning.NewOrchestrator(
		detection.NewEngine(detection.DefaultConfig()),
		jobStore.NewJobStore(pool, tracer),
		findingStore.NewFindingStore(pool, tracer),
		fetcher,
		appScanning.Config{
			MaxCommits:         cfg.Scanner.MaxCommits,
			MaxDeclaredChanges: cfg.Scanner.MaxDeclaredChanges,
			MaxFileSizeBytes:   cfg.Scanner.MaxFileSizeBytes(),
		},
		logg,
		tracer,
		metricCollector,
	)

	consumer := appScanning.NewConsumer(bus, orchestrator, logg)

	workerCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg.Info(ctx, "startup", "status", "scan worker running")

	if err := consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer error: %w", err)
	}

	logg.Info(ctx, "shutdown", "status", "scan worker stopped")
	return nil
}

// runMigrations applies all up migrations before the worker starts
// consuming. MIGRATIONS_PATH overrides the default for containers that
// mount the migrations elsewhere.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)

	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
