// Package config loads the goconflux runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, config file
// (goconflux.yaml in the working directory or $GOCONFLUX_CONFIG), environment
// variables with the GOCONFLUX_ prefix, and runtime overrides passed to Load.
package config

import "time"

// Config is the fully resolved runtime configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Stores     StoresConfig     `mapstructure:"stores"`
	Sources    SourcesConfig    `mapstructure:"sources"`
}

// SourcesConfig configures remote data source access.
type SourcesConfig struct {
	S3 S3SourceConfig `mapstructure:"s3"`
}

// S3SourceConfig configures s3:// source resolution. Empty fields fall back
// to the AWS SDK default chain.
type S3SourceConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the zap loggers.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	// Workers is the bounded worker pool size. Jobs beyond this stay queued.
	Workers int `mapstructure:"workers"`

	// QueueDepth is the dispatch backlog size. Submissions are never rejected
	// while the backlog has room; Submit blocks briefly beyond that.
	QueueDepth int `mapstructure:"queue_depth"`

	// ChunkSize is the number of records read and processed per chunk.
	ChunkSize int `mapstructure:"chunk_size"`

	// MaxJSONRecords caps json_batch submissions.
	MaxJSONRecords int `mapstructure:"max_json_records"`

	// UploadDir is where uploaded CSV files are spooled before processing.
	UploadDir string `mapstructure:"upload_dir"`
}

// EnrichmentConfig configures the ML enrichment service client.
type EnrichmentConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	MaxTextLen  int           `mapstructure:"max_text_len"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	EntityLimit int           `mapstructure:"entity_limit"`
}

// StoresConfig configures the three storage backends.
type StoresConfig struct {
	// Relational is the authoritative SQLite store.
	Relational RelationalConfig `mapstructure:"relational"`

	// Analytics is the eventually consistent columnar store.
	Analytics AnalyticsConfig `mapstructure:"analytics"`

	// Search is the best-effort search index.
	Search SearchConfig `mapstructure:"search"`
}

// RelationalConfig configures the authoritative relational store.
type RelationalConfig struct {
	Path string `mapstructure:"path"`
}

// AnalyticsConfig configures the ClickHouse analytical store.
type AnalyticsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Database string        `mapstructure:"database"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SearchConfig configures the search index client.
type SearchConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Index   string        `mapstructure:"index"`
	Timeout time.Duration `mapstructure:"timeout"`
}
