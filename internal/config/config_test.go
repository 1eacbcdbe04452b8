package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Inbox.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Inbox.MaxBackoff)
	assert.Equal(t, 1, cfg.Inbox.Workers)
	assert.Equal(t, UnroutedDrop, cfg.Inbox.Unrouted)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10, cfg.Relay.BatchSize)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: mysql
mysql:
  host: db
  dbname: inbox
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topics: ["orders", "payments"]
inbox:
  poll_interval: 500ms
  max_backoff: 10s
  workers: 4
`)
	t.Setenv("INBOX_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.Storage.Driver)
	assert.Equal(t, "db", cfg.MySQL.Host)
	assert.Equal(t, "3306", cfg.MySQL.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"orders", "payments"}, cfg.Kafka.Topics)
	assert.Equal(t, 500*time.Millisecond, cfg.Inbox.PollInterval)
	assert.Equal(t, 2, cfg.Inbox.Workers)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
inbox:
  unrouted: retry
  workers: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "inbox.unrouted")
	assert.Contains(t, err.Error(), "inbox.workers")
}

func TestDeadLetterRequiresPostgres(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: mysql
inbox:
  unrouted: dead_letter
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dead_letter requires the postgres driver")
}

func TestPrintMasksSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
postgres:
  password: s3cret
`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, cfg))

	out := buf.String()
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "poll_interval: 2s")
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
}
