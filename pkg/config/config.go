// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Similarity, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Search     SearchConfig     `yaml:"search"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// TokenizerConfig selects the text analysis applied at ingestion and query
// time. Both sides must use the same settings.
type TokenizerConfig struct {
	MinTokenLength int  `yaml:"minTokenLength"`
	StopWords      bool `yaml:"stopWords"`
	Stem           bool `yaml:"stem"`
}

// IndexerConfig controls where index snapshots live, how often they are taken,
// and how many documents are tokenized concurrently in batch ingests.
type IndexerConfig struct {
	DataDir          string          `yaml:"dataDir"`
	SnapshotInterval time.Duration   `yaml:"snapshotInterval"`
	SnapshotKeep     int             `yaml:"snapshotKeep"`
	IngestWorkers    int             `yaml:"ingestWorkers"`
	Tokenizer        TokenizerConfig `yaml:"tokenizer"`
}

// SearchConfig controls pagination limits and typo tolerance.
type SearchConfig struct {
	DefaultPageSize int `yaml:"defaultPageSize"`
	MaxPageSize     int `yaml:"maxPageSize"`
	MaxEditDistance int `yaml:"maxEditDistance"`
}

// SimilarityConfig controls suggestion precomputation.
type SimilarityConfig struct {
	TopK      int           `yaml:"topK"`
	Workers   int           `yaml:"workers"`
	BatchSize int           `yaml:"batchSize"`
	Interval  time.Duration `yaml:"interval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "booksearch",
			User:            "booksearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "booksearch-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:          "data/index",
			SnapshotInterval: 5 * time.Minute,
			SnapshotKeep:     3,
			IngestWorkers:    4,
			Tokenizer: TokenizerConfig{
				MinTokenLength: 2,
				StopWords:      true,
			},
		},
		Search: SearchConfig{
			DefaultPageSize: 10,
			MaxPageSize:     100,
			MaxEditDistance: 2,
		},
		Similarity: SimilarityConfig{
			TopK:      5,
			Workers:   4,
			BatchSize: 64,
			Interval:  2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.DefaultPageSize < 1 {
		errs = append(errs, errors.New("search.defaultPageSize must be positive"))
	}
	if c.Search.MaxPageSize < c.Search.DefaultPageSize {
		errs = append(errs, errors.New("search.maxPageSize must be >= search.defaultPageSize"))
	}
	if c.Search.MaxEditDistance < 0 {
		errs = append(errs, errors.New("search.maxEditDistance must not be negative"))
	}
	if c.Similarity.TopK < 1 {
		errs = append(errs, errors.New("similarity.topK must be positive"))
	}
	if c.Similarity.Workers < 1 {
		errs = append(errs, errors.New("similarity.workers must be positive"))
	}
	if c.Similarity.BatchSize < 1 {
		errs = append(errs, errors.New("similarity.batchSize must be positive"))
	}
	if c.Indexer.IngestWorkers < 1 {
		errs = append(errs, errors.New("indexer.ingestWorkers must be positive"))
	}
	if c.Indexer.SnapshotKeep < 1 {
		errs = append(errs, errors.New("indexer.snapshotKeep must be positive"))
	}
	if c.Indexer.Tokenizer.MinTokenLength < 1 {
		errs = append(errs, errors.New("indexer.tokenizer.minTokenLength must be positive"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads BSE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("BSE_SERVER_PORT", &cfg.Server.Port)
	setString("BSE_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BSE_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("BSE_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("BSE_POSTGRES_USER", &cfg.Postgres.User)
	setString("BSE_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("BSE_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("BSE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("BSE_KAFKA_CONSUMER_GROUP", &cfg.Kafka.ConsumerGroup)
	setString("BSE_REDIS_ADDR", &cfg.Redis.Addr)
	setString("BSE_REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("BSE_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	setString("BSE_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setInt("BSE_SEARCH_MAX_EDIT_DISTANCE", &cfg.Search.MaxEditDistance)
	setInt("BSE_SIMILARITY_TOP_K", &cfg.Similarity.TopK)
	setInt("BSE_SIMILARITY_WORKERS", &cfg.Similarity.Workers)
	setString("BSE_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("BSE_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("BSE_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
