// Package config provides configuration management for the MEDLINE loader.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the loader reads.
const EnvPrefix = "MEDLINE"

// Accepted database.ssl_mode values. Disable is for local development only.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Sink kinds.
const (
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
	SinkDiscard  = "discard"
)

// Config holds all configuration for the loader.
type Config struct {
	// Server contains the health and metrics HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Sink selects and tunes the row destination.
	Sink SinkConfig `mapstructure:"sink"`
	// Kafka contains Kafka sink settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// S3 contains object storage settings for s3:// inputs.
	S3 S3Config `mapstructure:"s3"`
	// EUtils contains NCBI E-utilities settings for pubmed: inputs.
	EUtils EUtilsConfig `mapstructure:"eutils"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Enabled starts the HTTP server alongside a load run.
	Enabled bool `mapstructure:"enabled"`
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 9091).
	HTTPPort int `mapstructure:"http_port" validate:"min=1,max=65535"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host" validate:"required"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from MEDLINE_DATABASE_PASSWORD only).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name" validate:"required"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	// MaxConns is the maximum number of connections in the pool. A load run holds one.
	MaxConns int32 `mapstructure:"max_conns" validate:"gtefield=MinConns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns" validate:"min=0"`
	// Pool tuning, passed through to pgxpool.
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is a directory of migration files. Empty uses the migrations built into the binary.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations before a postgres load.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`

	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path" validate:"startswith=/"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// SinkConfig selects where rows go.
type SinkConfig struct {
	// Kind is one of postgres, kafka, discard.
	Kind string `mapstructure:"kind" validate:"oneof=postgres kafka discard"`
	// RateLimit caps rows per second reaching the sink. Zero disables throttling.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	// RateBurst is the token bucket size used with RateLimit.
	RateBurst int `mapstructure:"rate_burst" validate:"min=0"`
}

// KafkaConfig holds Kafka sink settings.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic receives one message per citation row.
	Topic string `mapstructure:"topic"`
	// BatchSize is the number of messages per write on commit.
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`
	// WriteTimeout bounds one batch write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SpoolDir holds rows of a run until commit. Empty uses the OS temp dir.
	SpoolDir string `mapstructure:"spool_dir"`
}

// S3Config holds object storage settings.
type S3Config struct {
	// Region is the bucket region.
	Region string `mapstructure:"region"`
	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	// UsePathStyle addresses buckets as path segments instead of subdomains.
	UsePathStyle bool `mapstructure:"use_path_style"`
	// AccessKeyID is loaded from MEDLINE_S3_ACCESS_KEY_ID only. When empty
	// the default AWS credential chain is used.
	AccessKeyID string `mapstructure:"-"`
	// SecretAccessKey is loaded from MEDLINE_S3_SECRET_ACCESS_KEY only.
	SecretAccessKey string `mapstructure:"-"`
}

// EUtilsConfig holds NCBI E-utilities settings.
type EUtilsConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"url"`
	// Tool and Email identify the loader to NCBI.
	Tool  string `mapstructure:"tool"`
	Email string `mapstructure:"email" validate:"omitempty,email"`
	// APIKey is loaded from MEDLINE_EUTILS_API_KEY only.
	APIKey string `mapstructure:"-"`
	// RateLimit is requests per second. Zero picks the NCBI limit for the key state.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	// Timeout bounds waiting for response headers, not the streamed body.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries of zero disables retrying.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from a .env file, environment variables and config files.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medline-loader")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets use mapstructure:"-" so config files can never carry them.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(EnvPrefix + "_DATABASE_PASSWORD")
	cfg.S3.AccessKeyID = os.Getenv(EnvPrefix + "_S3_ACCESS_KEY_ID")
	cfg.S3.SecretAccessKey = os.Getenv(EnvPrefix + "_S3_SECRET_ACCESS_KEY")
	cfg.EUtils.APIKey = os.Getenv(EnvPrefix + "_EUTILS_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 9091)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "medline")
	v.SetDefault("database.name", "medline")
	// Use MEDLINE_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "medline_loader")

	// Sink defaults
	v.SetDefault("sink.kind", SinkPostgres)
	v.SetDefault("sink.rate_limit", 0.0)
	v.SetDefault("sink.rate_burst", 1)

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "medline.citations")
	v.SetDefault("kafka.batch_size", 500)
	v.SetDefault("kafka.write_timeout", "30s")
	v.SetDefault("kafka.spool_dir", "")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.use_path_style", false)

	// E-utilities defaults
	v.SetDefault("eutils.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("eutils.tool", "medline-loader")
	v.SetDefault("eutils.email", "")
	v.SetDefault("eutils.rate_limit", 0.0)
	v.SetDefault("eutils.timeout", "2m")
	v.SetDefault("eutils.max_retries", 3)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %v fails %q", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return err
	}

	if c.Sink.Kind == SinkKafka {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when sink kind is %q", SinkKafka)
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when sink kind is %q", SinkKafka)
		}
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return fmt.Errorf("%s_S3_ACCESS_KEY_ID and %s_S3_SECRET_ACCESS_KEY must be set together", EnvPrefix, EnvPrefix)
	}

	return nil
}
