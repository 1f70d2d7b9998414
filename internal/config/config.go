// Package config provides configuration structures and validation for the
// QR payment reconciliation engine. It handles environment-based configuration
// for the webhook gateway and the sync processor, covering server settings,
// database connections, the bank gateway, messaging and scheduling parameters.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	BankGateway BankGatewayConfig
	Scheduler   SchedulerConfig
	WorkerPool  WorkerPoolConfig
	Sweeps      SweepsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration for the payment event and
// dead-letter producers
type KafkaConfig struct {
	Brokers           string
	PaymentEventTopic string
	NumPartitions     int // Number of partitions for topics
	ReplicationFactor int // Replication factor for topics
	MaxWait           time.Duration
	DLQTopic          string // Topic for dead-lettered sync jobs
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the reconciliation audit log
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// BankGatewayConfig contains connection settings for the external bank gateway
type BankGatewayConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	AccountCode    string // Pre-encrypted collecting account identifier
}

// SchedulerConfig contains polling scheduler configuration
type SchedulerConfig struct {
	PollInterval  time.Duration // Cadence of the selection loop
	BatchSize     int           // Maximum QRs selected per tick
	MaxQRAge      time.Duration // QRs older than this are no longer polled
	MaxCheckCount int           // Polling stops once a QR reaches this many checks
	LeaseTimeout  time.Duration // In-flight jobs past this lease are reclaimed
}

// WorkerPoolConfig contains sync worker pool configuration
type WorkerPoolConfig struct {
	Size             int           // Maximum number of concurrent sync workers
	MaxAttempts      int           // Attempt ceiling before a job is dead-lettered
	AttemptBackoff   time.Duration // Base delay between attempts of a failed job
	DispatchInterval time.Duration // Cadence of the queue dispatch loop
}

// SweepsConfig contains cron schedules for the periodic sweeps
type SweepsConfig struct {
	ExpirySchedule      string        // Expires overdue ACTIVE QRs
	DueSoonSchedule     string        // Flags QRs due within the window
	DueSoonWindow       time.Duration // Window used by the due-soon sweep
	CleanupSchedule     string        // Deletes old sync status rows
	SyncStatusRetention time.Duration // Age after which sync status rows are removed
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.PaymentEventTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PAYMENT_EVENT_TOPIC is required")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}

	// Validate bank gateway config
	if c.BankGateway.BaseURL == "" {
		validationErrors = append(validationErrors, "BANK_GATEWAY_BASE_URL is required")
	}
	if c.BankGateway.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, "BANK_GATEWAY_REQUEST_TIMEOUT must be greater than 0")
	}

	// Validate scheduler config
	if c.Scheduler.PollInterval <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_POLL_INTERVAL must be greater than 0")
	}
	if c.Scheduler.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_BATCH_SIZE must be greater than 0")
	}
	if c.Scheduler.MaxQRAge <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_MAX_QR_AGE must be greater than 0")
	}
	if c.Scheduler.MaxCheckCount <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_MAX_CHECK_COUNT must be greater than 0")
	}
	if c.Scheduler.LeaseTimeout <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_LEASE_TIMEOUT must be greater than 0")
	}

	// Validate worker pool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}
	if c.WorkerPool.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_MAX_ATTEMPTS must be greater than 0")
	}
	if c.WorkerPool.AttemptBackoff <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_ATTEMPT_BACKOFF must be greater than 0")
	}
	if c.WorkerPool.DispatchInterval <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_DISPATCH_INTERVAL must be greater than 0")
	}

	// Validate sweeps config
	if c.Sweeps.ExpirySchedule == "" {
		validationErrors = append(validationErrors, "SWEEP_EXPIRY_SCHEDULE is required")
	}
	if c.Sweeps.DueSoonSchedule == "" {
		validationErrors = append(validationErrors, "SWEEP_DUE_SOON_SCHEDULE is required")
	}
	if c.Sweeps.DueSoonWindow <= 0 {
		validationErrors = append(validationErrors, "SWEEP_DUE_SOON_WINDOW must be greater than 0")
	}
	if c.Sweeps.CleanupSchedule == "" {
		validationErrors = append(validationErrors, "SWEEP_CLEANUP_SCHEDULE is required")
	}
	if c.Sweeps.SyncStatusRetention <= 0 {
		validationErrors = append(validationErrors, "SWEEP_SYNC_STATUS_RETENTION must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(validationErrors, "; "))
	}

	return nil
}
