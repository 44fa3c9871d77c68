package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/engine"
)

// Baseline store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Settings is everything the CLI reads from configuration.
type Settings struct {
	Database DatabaseSettings `mapstructure:"database"`
	Logging  LoggingSettings  `mapstructure:"logging"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Baseline BaselineSettings `mapstructure:"baseline"`
	Engine   engine.Config    `mapstructure:"engine"`
}

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string `mapstructure:"path"`
}

// LoggingSettings selects the slog handler.
type LoggingSettings struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console json"`
}

// RedisSettings configures the Redis baseline store.
type RedisSettings struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// MaxAttempts bounds optimistic lock retries per baseline update.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// BaselineSettings selects where approved amounts are accumulated.
type BaselineSettings struct {
	Store string `mapstructure:"store" validate:"oneof=sqlite redis memory"`
}

// SetDefaults registers the default for every non-engine key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("baseline.store", StoreSQLite)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "sentinel:")
	v.SetDefault("redis.max_attempts", 5)
}

// LoadEngineConfig overlays the engine.* keys on engine.DefaultConfig and
// validates the result.
func LoadEngineConfig(v *viper.Viper) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if v.IsSet("engine") {
		if err := v.UnmarshalKey("engine", &cfg); err != nil {
			return engine.Config{}, fmt.Errorf("%w: engine: %w", common.ErrInvalidConfig, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}

var settingsValidator = validator.New()

// Load reads every setting. The database path is expanded and defaulted.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	s.Baseline.Store = strings.ToLower(strings.TrimSpace(s.Baseline.Store))
	if err := settingsValidator.StructPartial(s, "Logging.Level", "Logging.Format", "Baseline.Store"); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if s.Baseline.Store == StoreRedis && s.Redis.URL == "" {
		return nil, fmt.Errorf("%w: redis.url is required for the redis baseline store", common.ErrMissingConfig)
	}

	engineCfg, err := LoadEngineConfig(v)
	if err != nil {
		return nil, err
	}
	s.Engine = engineCfg

	if s.Database.Path == "" {
		s.Database.Path = DefaultDatabasePath()
	} else {
		s.Database.Path = ExpandPath(s.Database.Path)
	}

	return &s, nil
}
