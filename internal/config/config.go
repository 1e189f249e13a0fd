package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/simulation-jobs/internal/queue"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	AWS      AWSConfig      `yaml:"aws"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectRetries  int           `yaml:"connect_retries"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	// AutoMigrate applies the embedded schema on startup
	AutoMigrate bool `yaml:"auto_migrate"`
}

// QueueConfig selects the work queue backend and its settings
type QueueConfig struct {
	Backend  string         `yaml:"backend"` // redis, rabbitmq, memory
	Key      string         `yaml:"key"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      AMQPQueueConfig  `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// AMQPQueueConfig holds RabbitMQ queue configuration
type AMQPQueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// AWSConfig holds the compute service and object storage settings
type AWSConfig struct {
	Region          string      `yaml:"region"`
	Profile         string      `yaml:"profile"`
	AccessKeyID     string      `yaml:"access_key_id"`
	SecretAccessKey string      `yaml:"secret_access_key"`
	Endpoint        string      `yaml:"endpoint"`
	ForcePathStyle  bool        `yaml:"force_path_style"`
	Batch           BatchConfig `yaml:"batch"`
	InputBucket     string      `yaml:"input_bucket"`
	OutputBucket    string      `yaml:"output_bucket"`
}

// BatchConfig names the AWS Batch queue and job definition
type BatchConfig struct {
	JobQueue      string `yaml:"job_queue"`
	JobDefinition string `yaml:"job_definition"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	MaxStoreFailures  int           `yaml:"max_store_failures"`
	MetricsPort       int           `yaml:"metrics_port"`
	LogMaxBytes       int64         `yaml:"log_max_bytes"`
	RecordTimeout     time.Duration `yaml:"record_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and fills in defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.ConnectRetries == 0 {
		c.Database.ConnectRetries = 5
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 5 * time.Second
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = queue.BackendRedis
	}
	if c.Queue.Key == "" {
		c.Queue.Key = "simulation_jobs"
	}
	if c.Queue.RabbitMQ.Exchange.Type == "" {
		c.Queue.RabbitMQ.Exchange.Type = "direct"
	}
	if c.Queue.RabbitMQ.RoutingKey == "" {
		c.Queue.RabbitMQ.RoutingKey = c.Queue.RabbitMQ.Queue.Name
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.ReconcileInterval == 0 {
		c.Worker.ReconcileInterval = 10 * time.Second
	}
	if c.Worker.MaxStoreFailures == 0 {
		c.Worker.MaxStoreFailures = 5
	}
	if c.Worker.RecordTimeout == 0 {
		c.Worker.RecordTimeout = 10 * time.Second
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	return c.validateQueue()
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case queue.BackendRedis:
		if c.Queue.Redis.Addr == "" {
			return errors.New("queue redis addr is required")
		}
		if c.Queue.Key == "" {
			return errors.New("queue key is required")
		}
	case queue.BackendRabbitMQ:
		mq := c.Queue.RabbitMQ
		if mq.Host == "" {
			return errors.New("rabbitmq host is required")
		}
		if mq.Port < MinPort || mq.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", mq.Port, MinPort, MaxPort)
		}
		if mq.Exchange.Name == "" {
			return errors.New("rabbitmq exchange name is required")
		}
		if mq.Queue.Name == "" {
			return errors.New("rabbitmq queue name is required")
		}
	case queue.BackendMemory:
	default:
		return fmt.Errorf("unknown queue backend: %q", c.Queue.Backend)
	}
	return nil
}

// ValidateAPIConfig checks the API service configuration
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateWorkerConfig checks the worker service configuration
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.AWS.Batch.JobQueue == "" {
		return errors.New("aws batch job_queue is required")
	}

	if c.AWS.Batch.JobDefinition == "" {
		return errors.New("aws batch job_definition is required")
	}

	if c.AWS.InputBucket == "" {
		return errors.New("aws input_bucket is required")
	}

	if c.AWS.OutputBucket == "" {
		return errors.New("aws output_bucket is required")
	}

	if c.Worker.PollInterval <= 0 {
		return errors.New("worker poll_interval must be greater than 0")
	}

	if c.Worker.ReconcileInterval < c.Worker.PollInterval {
		return errors.New("worker reconcile_interval must not be shorter than poll_interval")
	}

	if c.Worker.MaxStoreFailures <= 0 {
		return errors.New("worker max_store_failures must be greater than 0")
	}

	if c.Worker.MetricsPort != 0 && (c.Worker.MetricsPort < MinPort || c.Worker.MetricsPort > MaxPort) {
		return fmt.Errorf("invalid worker metrics port: %d (must be between %d and %d)", c.Worker.MetricsPort, MinPort, MaxPort)
	}

	if c.Worker.LogMaxBytes < 0 {
		return errors.New("worker log_max_bytes must not be negative")
	}

	if c.Worker.RecordTimeout < 0 {
		return errors.New("worker record_timeout must not be negative")
	}

	return nil
}
