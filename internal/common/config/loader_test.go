package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `
app:
  name: group-notifier
camunda:
  broker_address: localhost:26500
  plaintext: true
database:
  postgres:
    host: localhost
    database: split
    user: notifier
  redis:
    address: localhost:6379
transport:
  provider: fcm
`

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseConfig))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 500, cfg.Dispatch.BaseDelay)
	assert.Equal(t, 5000, cfg.Dispatch.MaxDelay)
	assert.Equal(t, 8, cfg.Lookup.Concurrency)
	assert.Equal(t, 86400, cfg.Dedup.TTL)
	assert.Equal(t, "notify:dedup:", cfg.Dedup.KeyPrefix)
	assert.Equal(t, "documents.created", cfg.NATS.Subject)
	assert.Equal(t, "DOCUMENTS", cfg.NATS.Stream)
	assert.Equal(t, "group-notifier", cfg.NATS.Durable)
	assert.Equal(t, 60000, cfg.NATS.AckWait)
	assert.Equal(t, 2000, cfg.NATS.NakDelay)
	assert.Equal(t, 5, cfg.NATS.MaxDeliver)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("NOTIFIER_TEST_DB_PASSWORD", "s3cret")
	cfg, err := LoadFromFile(writeConfig(t, `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: split
    user: notifier
  redis:
    address: localhost:6379
    password: ${NOTIFIER_TEST_DB_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Redis.Password)
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseConfig+`
workers:
  notify-group-message:
    enabled: false
`))
	require.NoError(t, err)

	w := GetWorkerConfig(cfg, "notify-group-message")
	assert.False(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 3, w.MaxRetries)
	assert.False(t, IsWorkerEnabled(cfg, "notify-group-message"))
	assert.True(t, IsWorkerEnabled(cfg, "notify-group-invitation"))
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Camunda.BrokerAddress = "localhost:26500"
		cfg.Database.Postgres.Host = "localhost"
		cfg.Database.Postgres.Database = "split"
		cfg.Database.Postgres.User = "notifier"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "no intake",
			mutate:  func(c *Config) { c.Camunda.BrokerAddress = "" },
			wantErr: "camunda.broker_address or nats.enabled",
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.NATS.Enabled = true },
			wantErr: "nats.url",
		},
		{
			name:    "nats max deliver out of range",
			mutate:  func(c *Config) { c.NATS.MaxDeliver = -5 },
			wantErr: "nats.max_deliver",
		},
		{
			name:    "dedup without redis",
			mutate:  func(c *Config) { c.Dedup.Enabled = true },
			wantErr: "database.redis.address",
		},
		{
			name:    "sns without region",
			mutate:  func(c *Config) { c.Transport.Provider = TransportSNS },
			wantErr: "transport.sns.region",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Transport.Provider = "apns" },
			wantErr: "unsupported transport.provider",
		},
		{
			name:    "inverted delays",
			mutate:  func(c *Config) { c.Dispatch.MaxDelay = 10 },
			wantErr: "dispatch.max_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, int64(1500), GetDuration(1500).Milliseconds())
}
