package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu  sync.Mutex
	appConfig *Config
)

// Load resolves the configuration and stores it for GetConfig.
//
// Optional runtime overrides (nested maps mirroring the config keys) take
// precedence over everything else. Load may be called again to reload.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOCONFLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if path := os.Getenv("GOCONFLUX_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("goconflux")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	for _, o := range overrides {
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("merge runtime overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if Load
// has not been called.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("ingest.chunk_size", 500)
	v.SetDefault("ingest.max_json_records", 1000)
	v.SetDefault("ingest.upload_dir", os.TempDir())

	v.SetDefault("enrichment.base_url", "http://localhost:8001")
	v.SetDefault("enrichment.timeout", 10*time.Second)
	v.SetDefault("enrichment.max_retries", 2)
	v.SetDefault("enrichment.max_text_len", 5000)
	v.SetDefault("enrichment.rate_limit", 0.0)
	v.SetDefault("enrichment.entity_limit", 500)

	v.SetDefault("stores.relational.path", "data/goconflux.db")
	v.SetDefault("stores.analytics.enabled", false)
	v.SetDefault("stores.analytics.addr", "localhost:9000")
	v.SetDefault("stores.analytics.database", "goconflux")
	v.SetDefault("stores.analytics.timeout", 10*time.Second)
	v.SetDefault("stores.search.enabled", false)
	v.SetDefault("stores.search.url", "http://localhost:9200")
	v.SetDefault("stores.search.index", "tickets")
	v.SetDefault("stores.search.timeout", 5*time.Second)

	v.SetDefault("sources.s3.region", "")
	v.SetDefault("sources.s3.endpoint", "")
	v.SetDefault("sources.s3.force_path_style", false)
}

// bindEnvAliases maps flat, conventional env var names onto nested keys so
// operators can use GOCONFLUX_PORT instead of GOCONFLUX_SERVER_PORT.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"server.host":            "GOCONFLUX_HOST",
		"server.port":            "GOCONFLUX_PORT",
		"server.read_timeout":    "GOCONFLUX_READ_TIMEOUT",
		"server.write_timeout":   "GOCONFLUX_WRITE_TIMEOUT",
		"logging.level":          "GOCONFLUX_LOG_LEVEL",
		"ingest.workers":         "GOCONFLUX_WORKERS",
		"enrichment.base_url":    "GOCONFLUX_ML_URL",
		"stores.relational.path": "GOCONFLUX_DB_PATH",
		"stores.search.url":      "GOCONFLUX_SEARCH_URL",
		"stores.analytics.addr":  "GOCONFLUX_ANALYTICS_ADDR",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, env)
	}
}
