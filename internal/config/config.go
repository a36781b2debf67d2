package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "RELAY"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Session store and reaper.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
	ReapInterval       time.Duration `mapstructure:"reap_interval"`
	ClientPollInterval time.Duration `mapstructure:"client_poll_interval"`
	CandidateCap       int           `mapstructure:"candidate_cap"`
	StoreShards        int           `mapstructure:"store_shards"`

	// Submission rate limit per principal.
	SubmitRateLimit  int           `mapstructure:"submit_rate_limit"`
	SubmitRateWindow time.Duration `mapstructure:"submit_rate_window"`

	// OpenAccess disables the participant check. Development only.
	OpenAccess bool `mapstructure:"open_access"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("session_idle_timeout", "10m")
	v.SetDefault("reap_interval", "30s")
	v.SetDefault("client_poll_interval", "1s")
	v.SetDefault("candidate_cap", 256)
	v.SetDefault("store_shards", 32)
	v.SetDefault("submit_rate_limit", 120)
	v.SetDefault("submit_rate_window", "10s")
	v.SetDefault("open_access", false)
	return v
}

// Load reads config/config.<CONFIG_ENV>.yaml (env defaults to "dev") on top of defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit path. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Dur("idle_timeout", cfg.SessionIdleTimeout).Msg("config ready")
	return &cfg, nil
}

// Validate rejects settings that would reap sessions still being negotiated.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.ReapInterval <= 0 {
		return errors.New("config: reap_interval must be positive")
	}
	if c.ClientPollInterval <= 0 {
		return errors.New("config: client_poll_interval must be positive")
	}
	if c.SessionIdleTimeout < 3*c.ClientPollInterval {
		return fmt.Errorf("config: session_idle_timeout %s must be at least 3x client_poll_interval %s",
			c.SessionIdleTimeout, c.ClientPollInterval)
	}
	if c.SubmitRateLimit > 0 && c.SubmitRateWindow <= 0 {
		return errors.New("config: submit_rate_window must be positive when submit_rate_limit is set")
	}
	if c.Mode == "release" && c.Secret == "" {
		log.Warn().Str("module", "config").Msg("empty cookie secret in release mode")
	}
	return nil
}
