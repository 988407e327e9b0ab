// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Database  DatabaseConfig          `mapstructure:"database"`
	NATS      NATSConfig              `mapstructure:"nats"`
	Transport TransportConfig         `mapstructure:"transport"`
	Dispatch  DispatchConfig          `mapstructure:"dispatch"`
	Lookup    LookupConfig            `mapstructure:"lookup"`
	Dedup     DedupConfig             `mapstructure:"dedup"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Server    ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig configures the document change feed, read through a durable
// JetStream consumer.
type NATSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Stream     string `mapstructure:"stream"`
	Subject    string `mapstructure:"subject"`
	Durable    string `mapstructure:"durable"`
	AckWait    int    `mapstructure:"ack_wait"`  // milliseconds
	NakDelay   int    `mapstructure:"nak_delay"` // milliseconds
	MaxDeliver int    `mapstructure:"max_deliver"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Notification Pipeline ---

const (
	TransportFCM = "fcm"
	TransportSNS = "sns"
)

// TransportConfig selects and configures the push transport.
type TransportConfig struct {
	Provider string `mapstructure:"provider"`
	FCM      struct {
		CredentialsFile string `mapstructure:"credentials_file"`
		ProjectID       string `mapstructure:"project_id"`
	} `mapstructure:"fcm"`
	SNS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"sns"`
}

// DispatchConfig bounds retries and parallelism of push delivery.
type DispatchConfig struct {
	MaxRetries  int `mapstructure:"max_retries"`
	BaseDelay   int `mapstructure:"base_delay"` // milliseconds
	MaxDelay    int `mapstructure:"max_delay"`  // milliseconds
	Concurrency int `mapstructure:"concurrency"`
}

type LookupConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DedupConfig controls suppression of redelivered trigger events.
type DedupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TTL       int    `mapstructure:"ttl"` // seconds
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}
