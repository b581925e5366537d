// Package config loads service configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// APIConfig holds the HTTP server settings.
type APIConfig struct {
	Host               string
	Port               string
	WebhookSecret      string
	CORSAllowedOrigins []string
}

// KafkaConfig holds broker addresses and topic routing.
type KafkaConfig struct {
	Brokers []string
	GroupID string

	PushEventsTopic        string
	PullRequestEventsTopic string
	ReleaseEventsTopic     string
	SecurityAdvisoryTopic  string
}

// PostgresConfig holds the database connection settings. DSN wins when set;
// otherwise one is assembled from the individual fields.
type PostgresConfig struct {
	DSN      string
	User     string
	Password string
	Host     string
	Database string
}

// ConnString returns the pgx connection string.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Database)
}

// GitHubConfig holds credentials and endpoints for content fetching.
type GitHubConfig struct {
	Token         string
	APIBaseURL    string
	RequestsPerHr int
}

// ScannerConfig holds the per-event processing limits.
type ScannerConfig struct {
	MaxCommits         int
	MaxDeclaredChanges int
	MaxFileSizeMB      int
}

// MaxFileSizeBytes converts the configured limit to bytes.
func (c ScannerConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

// TelemetryConfig holds OTLP exporter settings.
type TelemetryConfig struct {
	ServiceName      string
	ExporterEndpoint string
	SamplingRatio    float64
	Insecure         bool
}

// Config is the full configuration shared by both services.
type Config struct {
	Environment string
	LogLevel    string

	API       APIConfig
	Kafka     KafkaConfig
	Postgres  PostgresConfig
	GitHub    GitHubConfig
	Scanner   ScannerConfig
	Telemetry TelemetryConfig
}

// Load reads configuration from the environment. serviceName seeds the
// telemetry service name default.
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", "8000")
	v.SetDefault("GITHUB_WEBHOOK_SECRET", "")
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_ID", "scanner-workers")
	v.SetDefault("KAFKA_PUSH_EVENTS_TOPIC", "github.push-events")
	v.SetDefault("KAFKA_PULL_REQUEST_EVENTS_TOPIC", "github.pull-request-events")
	v.SetDefault("KAFKA_RELEASE_EVENTS_TOPIC", "github.release-events")
	v.SetDefault("KAFKA_SECURITY_ADVISORY_TOPIC", "github.security-advisories")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_HOST", "postgres")
	v.SetDefault("POSTGRES_DB", "secintel")

	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_API_BASE_URL", "https://api.github.com")
	v.SetDefault("GITHUB_API_RATE_LIMIT", 5000)

	v.SetDefault("MAX_COMMITS_PER_EVENT", 10)
	v.SetDefault("MAX_DECLARED_CHANGES", 1000)
	v.SetDefault("MAX_FILE_SIZE_MB", 10)

	v.SetDefault("OTEL_SERVICE_NAME", serviceName)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.05)
	v.SetDefault("OTEL_EXPORTER_INSECURE", true)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		API: APIConfig{
			Host:               v.GetString("API_HOST"),
			Port:               v.GetString("API_PORT"),
			WebhookSecret:      v.GetString("GITHUB_WEBHOOK_SECRET"),
			CORSAllowedOrigins: splitList(v.GetString("CORS_ORIGINS")),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			GroupID: v.GetString("KAFKA_GROUP_ID"),

			PushEventsTopic:        v.GetString("KAFKA_PUSH_EVENTS_TOPIC"),
			PullRequestEventsTopic: v.GetString("KAFKA_PULL_REQUEST_EVENTS_TOPIC"),
			ReleaseEventsTopic:     v.GetString("KAFKA_RELEASE_EVENTS_TOPIC"),
			SecurityAdvisoryTopic:  v.GetString("KAFKA_SECURITY_ADVISORY_TOPIC"),
		},
		Postgres: PostgresConfig{
			DSN:      v.GetString("DATABASE_URL"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			Host:     v.GetString("POSTGRES_HOST"),
			Database: v.GetString("POSTGRES_DB"),
		},
		GitHub: GitHubConfig{
			Token:         v.GetString("GITHUB_TOKEN"),
			APIBaseURL:    v.GetString("GITHUB_API_BASE_URL"),
			RequestsPerHr: v.GetInt("GITHUB_API_RATE_LIMIT"),
		},
		Scanner: ScannerConfig{
			MaxCommits:         v.GetInt("MAX_COMMITS_PER_EVENT"),
			MaxDeclaredChanges: v.GetInt("MAX_DECLARED_CHANGES"),
			MaxFileSizeMB:      v.GetInt("MAX_FILE_SIZE_MB"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:      v.GetString("OTEL_SERVICE_NAME"),
			ExporterEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
			Insecure:         v.GetBool("OTEL_EXPORTER_INSECURE"),
		},
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}

	return cfg, nil
}

// ValidateWorker checks the settings only the scan worker needs.
func (c *Config) ValidateWorker() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
