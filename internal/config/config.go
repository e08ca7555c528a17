// Package config loads the server configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Match      MatchConfig      `mapstructure:"match"`
	Session    SessionConfig    `mapstructure:"session"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig configures the websocket listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MatchConfig configures the lifecycle manager.
type MatchConfig struct {
	AgentTimeout  time.Duration `mapstructure:"agent_timeout"`
	AutoplayDelay time.Duration `mapstructure:"autoplay_delay"`
	MaxPly        int           `mapstructure:"max_ply"`
	WinCondition  string        `mapstructure:"win_condition"`
}

// SessionConfig configures the client transport.
type SessionConfig struct {
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `mapstructure:"heartbeat_timeout"`
	BackoffBase          time.Duration `mapstructure:"backoff_base"`
	BackoffMax           time.Duration `mapstructure:"backoff_max"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// DatabaseConfig configures the optional persistence collaborator.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// SettlementConfig configures completion-notification retries.
type SettlementConfig struct {
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration file at path. A missing file is not an
// error; defaults and GUNGI_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("GUNGI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("match.agent_timeout", 5*time.Second)
	v.SetDefault("match.autoplay_delay", 0*time.Second)
	v.SetDefault("match.max_ply", 500)
	v.SetDefault("match.win_condition", "checkmate")

	v.SetDefault("session.connect_timeout", 10*time.Second)
	v.SetDefault("session.heartbeat_interval", 15*time.Second)
	v.SetDefault("session.heartbeat_timeout", 45*time.Second)
	v.SetDefault("session.backoff_base", 500*time.Millisecond)
	v.SetDefault("session.backoff_max", 30*time.Second)
	v.SetDefault("session.max_reconnect_attempts", 8)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")

	v.SetDefault("settlement.retry_base_delay", time.Second)
	v.SetDefault("settlement.max_retries", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
