// Package config loads the pollbot configuration from a TOML or YAML file
// with NOSTRBOT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nicebartender/nostrbot/relay"
)

const EnvPrefix = "NOSTRBOT_"

type Config struct {
	Relays     []string `toml:"relays" yaml:"relays" env:"RELAYS"`
	Network    string   `toml:"network" yaml:"network" env:"NETWORK"`
	TorProxy   string   `toml:"tor_proxy" yaml:"tor_proxy" env:"TOR_PROXY"`
	SecretFile string   `toml:"secret_file" yaml:"secret_file" env:"SECRET_FILE"`
	// Secret takes precedence over SecretFile. It is only read from the
	// environment.
	Secret                string `toml:"-" yaml:"-" env:"SECRET"`
	Database              string `toml:"database" yaml:"database" env:"DATABASE"`
	MetricsAddr           string `toml:"metrics_addr" yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel              string `toml:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	ReconnectSeconds      int    `toml:"reconnect_seconds" yaml:"reconnect_seconds" env:"RECONNECT_SECONDS"`
	HandlerTimeoutSeconds int    `toml:"handler_timeout_seconds" yaml:"handler_timeout_seconds" env:"HANDLER_TIMEOUT_SECONDS"`
	MentionsOnly          bool   `toml:"mentions_only" yaml:"mentions_only" env:"MENTIONS_ONLY"`

	Profile ProfileConfig `toml:"profile" yaml:"profile" envPrefix:"PROFILE_"`
	Poll    PollConfig    `toml:"poll" yaml:"poll" envPrefix:"POLL_"`
}

type ProfileConfig struct {
	Name    string `toml:"name" yaml:"name" env:"NAME"`
	About   string `toml:"about" yaml:"about" env:"ABOUT"`
	Picture string `toml:"picture" yaml:"picture" env:"PICTURE"`
	Intro   string `toml:"intro" yaml:"intro" env:"INTRO"`
}

type PollConfig struct {
	ID          string `toml:"id" yaml:"id" env:"ID"`
	Question    string `toml:"question" yaml:"question" env:"QUESTION"`
	ResultsCron string `toml:"results_cron" yaml:"results_cron" env:"RESULTS_CRON"`
}

// Load reads path (skipped when empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read loads the file and environment overrides only. Callers layering more
// overrides on top finish with ApplyDefaults and Validate.
func Read(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		return fmt.Errorf("config load failed (%s): unsupported extension", path)
	}
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.Network == "" {
		c.Network = relay.Clearnet.String()
	}
	if c.TorProxy == "" {
		c.TorProxy = relay.DefaultTorProxy
	}
	if c.SecretFile == "" {
		c.SecretFile = "secret"
	}
	if c.Database == "" {
		c.Database = "nostrbot.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HandlerTimeoutSeconds == 0 {
		c.HandlerTimeoutSeconds = 30
	}
	if c.Profile.Name == "" {
		c.Profile.Name = "poll_bot"
	}
	if c.Poll.ID == "" {
		c.Poll.ID = "default"
	}
	if c.Poll.Question == "" {
		c.Poll.Question = "Do you think Pluto should be a planet?"
	}
}

func Validate(c Config) error {
	if len(c.Relays) == 0 {
		return fmt.Errorf("config missing relays")
	}
	for i, r := range c.Relays {
		r = strings.TrimSpace(r)
		if !strings.HasPrefix(r, "ws://") && !strings.HasPrefix(r, "wss://") {
			return fmt.Errorf("relay[%d] %q is not a ws:// or wss:// url", i, r)
		}
	}
	if _, err := relay.ParseNetwork(c.Network); err != nil {
		return err
	}
	if c.ReconnectSeconds < 0 {
		return fmt.Errorf("reconnect_seconds must not be negative")
	}
	if c.HandlerTimeoutSeconds < 0 {
		return fmt.Errorf("handler_timeout_seconds must not be negative")
	}
	if strings.TrimSpace(c.Poll.Question) == "" {
		return fmt.Errorf("poll question is empty")
	}
	if c.Poll.ResultsCron != "" {
		gron := gronx.New()
		if !gron.IsValid(c.Poll.ResultsCron) {
			return fmt.Errorf("poll results_cron %q is not a valid cron expression", c.Poll.ResultsCron)
		}
	}
	return nil
}

func (c Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectSeconds) * time.Second
}

func (c Config) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}

// Dialer builds the relay dialer for the configured network.
func (c Config) Dialer() (relay.Dialer, error) {
	n, err := relay.ParseNetwork(c.Network)
	if err != nil {
		return relay.Dialer{}, err
	}
	return relay.Dialer{Network: n, TorProxy: c.TorProxy}, nil
}
