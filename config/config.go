// Package config loads event store settings and builds a Pool from them.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Driver names accepted in StoreConfig.Driver
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverStream   = "stream"
	DriverDynamoDB = "dynamodb"
	DriverMemory   = "memory"
)

// Config represents the event stores of a service
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Migrate bool          `koanf:"migrate"`
	Stores  []StoreConfig `koanf:"stores"`
}

// LogConfig holds the zerolog settings
type LogConfig struct {
	Level string `koanf:"level"`
}

// StoreConfig describes one store of the pool
type StoreConfig struct {
	Name     string   `koanf:"name"`
	Patterns []string `koanf:"patterns"`
	Driver   string   `koanf:"driver"`
	Verbose  bool     `koanf:"verbose"`

	// SQL drivers
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`

	// Stream driver
	URL       string `koanf:"url"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	Category  string `koanf:"category"`
	AllStream string `koanf:"all_stream"`

	// Stream and DynamoDB page size
	PageSize int `koanf:"page_size"`

	// Notifications
	SNSTopicARN  string   `koanf:"sns_topic_arn"`
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

// IsSQL reports whether the store is backed by a relational database
func (s StoreConfig) IsSQL() bool {
	switch s.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
		return true
	}
	return false
}

// Load loads the configuration from the given file path and environment variables.
// ES_LOG__LEVEL=debug overrides log.level.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level": "info",
		"migrate":   false,
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("ES_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ES_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every store can be built
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level '%s': %w", c.Log.Level, err)
	}

	names := map[string]bool{}
	for i, store := range c.Stores {
		if store.Name == "" {
			return fmt.Errorf("store #%d has no name", i)
		}
		if names[store.Name] {
			return fmt.Errorf("store '%s' is declared more than once", store.Name)
		}
		names[store.Name] = true

		switch store.Driver {
		case DriverMySQL, DriverPostgres, DriverSQLite:
			if store.DSN == "" {
				return fmt.Errorf("store '%s': %s driver requires a dsn", store.Name, store.Driver)
			}
		case DriverStream:
			if store.URL == "" || store.Category == "" {
				return fmt.Errorf("store '%s': stream driver requires url and category", store.Name)
			}
		case DriverDynamoDB:
			if store.Table == "" {
				return fmt.Errorf("store '%s': dynamodb driver requires a table", store.Name)
			}
		case DriverMemory:
		default:
			return fmt.Errorf("store '%s': unknown driver '%s'", store.Name, store.Driver)
		}

		if len(store.KafkaBrokers) > 0 && store.KafkaTopic == "" {
			return fmt.Errorf("store '%s': kafka_brokers requires kafka_topic", store.Name)
		}
	}
	return nil
}

// ApplyLogLevel sets the global zerolog level
func (c *Config) ApplyLogLevel() {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
