package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/automaxprocs/maxprocs"

	"secintel/internal/api"
	"secintel/internal/config"
	"secintel/internal/infra/eventbus/kafka"
	findingStore "secintel/internal/infra/storage/findings/postgres"
	"secintel/pkg/common/logger"
	"secintel/pkg/common/otel"
)

const serviceType = "webhook-api"

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
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 25
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	// -------------------------------------------------------------------------
	// Initialize Event Bus

	logg.Info(ctx, "startup", "status", "initializing event bus")

	metricCollector, err := api.NewAPIMetrics(otel.GetMeterProvider())
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
	// Start API Service

	logg.Info(ctx, "startup", "status", "initializing API support")

	findings := findingStore.NewFindingStore(pool, tracer)

	server, err := api.NewServer(api.Config{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		WebhookSecret:  cfg.API.WebhookSecret,
		AllowedOrigins: cfg.API.CORSAllowedOrigins,
	}, logg, tracer, bus, findings, metricCollector,
		api.WithReadinessCheck(pool.Ping),
	)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	serverCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(serverCtx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	logg.Info(ctx, "shutdown", "status", "server stopped")
	return nil
}
