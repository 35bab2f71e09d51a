package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Auth       AuthConfig       `mapstructure:"auth"`
	OTel       OTelConfig       `mapstructure:"otel"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Booking    BookingConfig    `mapstructure:"booking"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// JWTConfig holds settings for verifying tokens issued by the identity service
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// AuthConfig controls where caller identity is read from
type AuthConfig struct {
	// TrustGatewayHeaders accepts X-User-ID / X-User-Role set by the API gateway
	TrustGatewayHeaders bool `mapstructure:"trust_gateway_headers"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// PaymentConfig selects and configures the payment gateway
type PaymentConfig struct {
	Gateway         string        `mapstructure:"gateway"` // mock, stripe
	StripeSecretKey string        `mapstructure:"stripe_secret_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MockSuccessRate float64       `mapstructure:"mock_success_rate"`
	MockDelayMs     int           `mapstructure:"mock_delay_ms"`
}

// BookingConfig holds booking ledger limits
type BookingConfig struct {
	MaxTicketsPerBooking int    `mapstructure:"max_tickets_per_booking"`
	DefaultCurrency      string `mapstructure:"default_currency"`
}

// SettlementConfig holds refund fan-out and retry settings
type SettlementConfig struct {
	RefundConcurrency   int           `mapstructure:"refund_concurrency"`
	RefundMaxRetries    int           `mapstructure:"refund_max_retries"`
	RefundRetryInterval time.Duration `mapstructure:"refund_retry_interval"`
	DeleteMaxRounds     int           `mapstructure:"delete_max_rounds"`
}

// OutboxConfig holds outbox relay settings
type OutboxConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Topic        string        `mapstructure:"topic"`
}

// ReconcilerConfig holds refund reconciler settings
type ReconcilerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MinAge      time.Duration `mapstructure:"min_age"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific env file
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("APP_NAME", "ticketing-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "ticketing")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 25)
	v.SetDefault("DATABASE_MIN_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", false)

	// Redis
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "ticketing-service")

	// JWT / Auth
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "identity-service")
	v.SetDefault("AUTH_TRUST_GATEWAY_HEADERS", false)

	// OTel
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ticketing-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Payment
	v.SetDefault("PAYMENT_GATEWAY", "mock")
	v.SetDefault("PAYMENT_STRIPE_SECRET_KEY", "")
	v.SetDefault("PAYMENT_TIMEOUT", "10s")
	v.SetDefault("PAYMENT_MOCK_SUCCESS_RATE", 1.0)
	v.SetDefault("PAYMENT_MOCK_DELAY_MS", 50)

	// Booking
	v.SetDefault("BOOKING_MAX_TICKETS_PER_BOOKING", 10)
	v.SetDefault("BOOKING_DEFAULT_CURRENCY", "usd")

	// Settlement
	v.SetDefault("SETTLEMENT_REFUND_CONCURRENCY", 8)
	v.SetDefault("SETTLEMENT_REFUND_MAX_RETRIES", 2)
	v.SetDefault("SETTLEMENT_REFUND_RETRY_INTERVAL", "200ms")
	v.SetDefault("SETTLEMENT_DELETE_MAX_ROUNDS", 3)

	// Outbox
	v.SetDefault("OUTBOX_ENABLED", true)
	v.SetDefault("OUTBOX_POLL_INTERVAL", "500ms")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_TOPIC", "ticketing-events")

	// Reconciler
	v.SetDefault("RECONCILER_INTERVAL", "1m")
	v.SetDefault("RECONCILER_BATCH_SIZE", 50)
	v.SetDefault("RECONCILER_MIN_AGE", "2m")
	v.SetDefault("RECONCILER_MAX_ATTEMPTS", 10)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT / Auth
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")
	cfg.Auth.TrustGatewayHeaders = v.GetBool("AUTH_TRUST_GATEWAY_HEADERS")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Payment
	cfg.Payment.Gateway = strings.ToLower(v.GetString("PAYMENT_GATEWAY"))
	cfg.Payment.StripeSecretKey = v.GetString("PAYMENT_STRIPE_SECRET_KEY")
	cfg.Payment.Timeout = v.GetDuration("PAYMENT_TIMEOUT")
	cfg.Payment.MockSuccessRate = v.GetFloat64("PAYMENT_MOCK_SUCCESS_RATE")
	cfg.Payment.MockDelayMs = v.GetInt("PAYMENT_MOCK_DELAY_MS")

	// Booking
	cfg.Booking.MaxTicketsPerBooking = v.GetInt("BOOKING_MAX_TICKETS_PER_BOOKING")
	cfg.Booking.DefaultCurrency = v.GetString("BOOKING_DEFAULT_CURRENCY")

	// Settlement
	cfg.Settlement.RefundConcurrency = v.GetInt("SETTLEMENT_REFUND_CONCURRENCY")
	cfg.Settlement.RefundMaxRetries = v.GetInt("SETTLEMENT_REFUND_MAX_RETRIES")
	cfg.Settlement.RefundRetryInterval = v.GetDuration("SETTLEMENT_REFUND_RETRY_INTERVAL")
	cfg.Settlement.DeleteMaxRounds = v.GetInt("SETTLEMENT_DELETE_MAX_ROUNDS")

	// Outbox
	cfg.Outbox.Enabled = v.GetBool("OUTBOX_ENABLED")
	cfg.Outbox.PollInterval = v.GetDuration("OUTBOX_POLL_INTERVAL")
	cfg.Outbox.BatchSize = v.GetInt("OUTBOX_BATCH_SIZE")
	cfg.Outbox.Topic = v.GetString("OUTBOX_TOPIC")

	// Reconciler
	cfg.Reconciler.Interval = v.GetDuration("RECONCILER_INTERVAL")
	cfg.Reconciler.BatchSize = v.GetInt("RECONCILER_BATCH_SIZE")
	cfg.Reconciler.MinAge = v.GetDuration("RECONCILER_MIN_AGE")
	cfg.Reconciler.MaxAttempts = v.GetInt("RECONCILER_MAX_ATTEMPTS")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required")
	}
	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return errors.New("JWT secret must be changed in production")
	}

	switch c.Payment.Gateway {
	case "mock":
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return errors.New("PAYMENT_STRIPE_SECRET_KEY is required for the stripe gateway")
		}
	default:
		return fmt.Errorf("unknown payment gateway: %q", c.Payment.Gateway)
	}

	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("payment timeout must be positive, got %s", c.Payment.Timeout)
	}

	if c.Booking.MaxTicketsPerBooking <= 0 {
		return fmt.Errorf("invalid max tickets per booking: %d", c.Booking.MaxTicketsPerBooking)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
