package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Storage    StorageConfig
	MarketData MarketDataConfig
	Engine     EngineConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
	ServiceKey string
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database specific configuration. Driver is pgx, postgres or sqlite;
// Path is only used by sqlite.
type DatabaseConfig struct {
	Enabled         bool
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig holds the bar cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Enabled  bool
	Brokers  string
	ClientID string
	Topics   map[string]string
}

// StorageConfig selects where completed results are archived
type StorageConfig struct {
	Type      string
	LocalPath string
	S3        S3Config
}

// S3Config holds S3 archive configuration
type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// MarketDataConfig selects the bar source
type MarketDataConfig struct {
	Source     string
	Historical HistoricalServiceConfig
	Alpaca     AlpacaConfig
	Parquet    ParquetConfig
}

// HistoricalServiceConfig points at the historical-data-service
type HistoricalServiceConfig struct {
	URL            string
	Timeout        time.Duration
	ServiceKey     string
	RequestsPerSec float64
	Burst          int
	MaxRetries     uint64
}

// AlpacaConfig holds Alpaca market data credentials
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string
}

// ParquetConfig points at a directory of <market>/<timeframe>/<SYMBOL>/<YYYY>.parquet files
type ParquetConfig struct {
	Dir    string
	Market string
}

// EngineConfig tunes the orchestrator
type EngineConfig struct {
	Workers              int
	OptimizerParallelism int
	MaxCombinations      int
	ExecutionTimeout     time.Duration
	ResultRetention      time.Duration
}

// AuthConfig holds JWT validation settings
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          int
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override, e.g. BACKTEST_DATABASE_HOST
	v.SetEnvPrefix("backtest")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "60s")
	v.SetDefault("server.idleTimeout", "120s")
	v.SetDefault("server.shutdownTimeout", "15s")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "backtests.db")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")
	v.SetDefault("database.autoMigrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", "1h")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.clientID", "backtest-service")
	v.SetDefault("kafka.topics.executionEvents", "backtest-execution-events")

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.localPath", "./data/results")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "backtests")

	// Market data defaults
	v.SetDefault("marketData.source", "database")
	v.SetDefault("marketData.historical.url", "http://historical-data-service:8082")
	v.SetDefault("marketData.historical.timeout", "30s")
	v.SetDefault("marketData.historical.serviceKey", "backtest-service-key")
	v.SetDefault("marketData.historical.requestsPerSec", 20)
	v.SetDefault("marketData.historical.burst", 5)
	v.SetDefault("marketData.historical.maxRetries", 3)
	v.SetDefault("marketData.alpaca.feed", "iex")
	v.SetDefault("marketData.parquet.dir", "./data/bars")
	v.SetDefault("marketData.parquet.market", "us")

	// Engine defaults
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.optimizerParallelism", 0)
	v.SetDefault("engine.maxCombinations", 1000)
	v.SetDefault("engine.executionTimeout", "30m")
	v.SetDefault("engine.resultRetention", "1h")

	// Auth defaults
	v.SetDefault("auth.enabled", true)

	// Rate limit defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerSec", 10)
	v.SetDefault("rateLimit.burst", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
