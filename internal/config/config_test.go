package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("test-service")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8000", cfg.API.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "scanner-workers", cfg.Kafka.GroupID)
	assert.Equal(t, "github.push-events", cfg.Kafka.PushEventsTopic)
	assert.Equal(t, "test-service", cfg.Telemetry.ServiceName)
	assert.Equal(t, 10, cfg.Scanner.MaxCommits)
	assert.Equal(t, int64(10<<20), cfg.Scanner.MaxFileSizeBytes())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("GITHUB_TOKEN", "ghp_testtoken")
	t.Setenv("DATABASE_URL", "postgres://scan:scan@db:5432/scan")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("MAX_FILE_SIZE_MB", "2")

	cfg, err := Load("test-service")
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "postgres://scan:scan@db:5432/scan", cfg.Postgres.ConnString())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.API.CORSAllowedOrigins)
	assert.Equal(t, int64(2<<20), cfg.Scanner.MaxFileSizeBytes())
	assert.NoError(t, cfg.ValidateWorker())
}

func TestPostgresConnStringFallback(t *testing.T) {
	pg := PostgresConfig{User: "u", Password: "p", Host: "h", Database: "d"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", pg.ConnString())
}

func TestValidateWorkerRequiresToken(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateWorker())
}
