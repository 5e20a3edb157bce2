// Package config loads the application configuration from an optional YAML
// file, environment variables, and built-in defaults using viper.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// RedisConfig describes how to reach the Redis instance backing the state
// cache, interest queue, and pub/sub notifiers.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// LoggerConfig controls the structured logger.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// PollerConfig controls the poller pool.
type PollerConfig struct {
	Workers          int     `mapstructure:"workers"`
	QueryTimeoutMS   int     `mapstructure:"query_timeout_ms"`
	PassiveRateLimit float64 `mapstructure:"passive_rate_limit"`
}

// WebSocketConfig controls the fan-out gateway's HTTP bind address.
type WebSocketConfig struct {
	Bind string `mapstructure:"bind"`
}

// SyncConfig controls the master-server synchroniser.
type SyncConfig struct {
	Regions    []string `mapstructure:"regions"`
	MasterAddr string   `mapstructure:"master_addr"`
	Filter     string   `mapstructure:"filter"`
	TimeoutMS  int      `mapstructure:"timeout_ms"`
}

// Config is the root configuration aggregate, unmarshalled from
// configs/config.yaml (or the nearest parent directory), environment
// variables prefixed SERVERSTF_, and the defaults set in setDefaults.
type Config struct {
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Poller    PollerConfig    `mapstructure:"poller"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configuration from file and environment variables. redisURL,
// when non-empty, overrides whatever the file/env/defaults produced for
// Redis.URL, so the --redis CLI flag takes precedence over file and
// environment values. configPath, if given, is used instead of the default search
// paths. The config file is optional; its absence is not an error.
func Load(redisURL string, configPath ...string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if len(configPath) > 0 && configPath[0] != "" {
		viper.SetConfigFile(configPath[0])
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("../configs")
		viper.AddConfigPath("../../configs")
	}

	viper.SetEnvPrefix("SERVERSTF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if redisURL != "" {
		viper.Set("redis.url", redisURL)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &cfg
	appConfigMu.Unlock()

	return &cfg, nil
}

// Get returns the most recently Load-ed configuration, or nil if Load has
// never been called.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults() {
	viper.SetDefault("redis.url", "redis://localhost:6379/0")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	viper.SetDefault("poller.workers", 0) // 0 means runtime.NumCPU()
	viper.SetDefault("poller.query_timeout_ms", 5000)
	viper.SetDefault("poller.passive_rate_limit", 50.0)

	viper.SetDefault("websocket.bind", ":8765")

	viper.SetDefault("sync.regions", []string{"all"})
	viper.SetDefault("sync.master_addr", "")
	viper.SetDefault("sync.filter", "")
	viper.SetDefault("sync.timeout_ms", 5000)
}
