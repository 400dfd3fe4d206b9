package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
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
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Payments PaymentsConfig `yaml:"payments"`
	Matching MatchingConfig `yaml:"matching"`
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
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// RedisConfig holds the Redis connection used for advisory fraud-velocity
// counters. Redis being unavailable degrades to "no signal" and never fails
// a primary operation.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// PaymentsConfig holds PSP selection and settlement policy
type PaymentsConfig struct {
	Provider            string        `yaml:"provider"` // mock or stripe
	Currency            string        `yaml:"currency"`
	PlatformFeeRate     float64       `yaml:"platform_fee_rate"`
	AutoReleaseHours    int           `yaml:"auto_release_hours"`
	MaxPayoutRetries    int           `yaml:"max_payout_retries"`
	StripeAPIKey        string        `yaml:"stripe_api_key"`
	StripeWebhookSecret string        `yaml:"stripe_webhook_secret"`
	StripeBaseURL       string        `yaml:"stripe_base_url"`
	StripeTimeout       time.Duration `yaml:"stripe_timeout"`
	MockWebhookSecret   string        `yaml:"mock_webhook_secret"`
}

// MatchingConfig holds nearby-job search policy
type MatchingConfig struct {
	DefaultRadiusKm float64 `yaml:"default_radius_km"`
	MaxRadiusKm     float64 `yaml:"max_radius_km"`
	DefaultLimit    int     `yaml:"default_limit"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills policy values the config file may omit
func (c *Config) applyDefaults() {
	if c.Payments.Currency == "" {
		c.Payments.Currency = "KGS"
	}
	if c.Payments.PlatformFeeRate == 0 {
		c.Payments.PlatformFeeRate = 0.10
	}
	if c.Payments.AutoReleaseHours == 0 {
		c.Payments.AutoReleaseHours = 24
	}
	if c.Payments.MaxPayoutRetries == 0 {
		c.Payments.MaxPayoutRetries = 3
	}
	if c.Matching.DefaultRadiusKm == 0 {
		c.Matching.DefaultRadiusKm = 10
	}
	if c.Matching.MaxRadiusKm == 0 {
		c.Matching.MaxRadiusKm = 50
	}
	if c.Matching.DefaultLimit == 0 {
		c.Matching.DefaultLimit = 20
	}
	if c.Worker.SweepSchedule == "" {
		c.Worker.SweepSchedule = "@every 5m"
	}
}

// ValidateAPIConfig checks the configuration needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if err := c.validatePayments(); err != nil {
		return err
	}

	if c.Matching.DefaultRadiusKm <= 0 || c.Matching.DefaultRadiusKm > c.Matching.MaxRadiusKm {
		return fmt.Errorf("invalid matching radius: default %.1f must be positive and at most max %.1f",
			c.Matching.DefaultRadiusKm, c.Matching.MaxRadiusKm)
	}

	return nil
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.validatePayments()
}

func (c *Config) validatePayments() error {
	switch c.Payments.Provider {
	case "", "mock":
		// Mock provider needs no credentials.
	case "stripe":
		if c.Payments.StripeAPIKey == "" {
			return fmt.Errorf("stripe api key is required when payments.provider is stripe")
		}
		if c.Payments.StripeWebhookSecret == "" {
			return fmt.Errorf("stripe webhook secret is required when payments.provider is stripe")
		}
	default:
		return fmt.Errorf("unknown payments provider: %q", c.Payments.Provider)
	}

	if c.Payments.PlatformFeeRate < 0 || c.Payments.PlatformFeeRate >= 1 {
		return fmt.Errorf("platform fee rate must be in [0, 1), got %v", c.Payments.PlatformFeeRate)
	}

	return nil
}
