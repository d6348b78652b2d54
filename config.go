package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicebartender/nostrbot/config"
	"github.com/nicebartender/nostrbot/nostr"
)

const defaultConfigFile = "nostrbot.toml"

// cliFlags are command line values layered over the config file and env.
type cliFlags struct {
	ConfigPath  string
	Relays      []string
	Network     string
	Database    string
	SecretFile  string
	LogLevel    string
	MetricsAddr string
}

func (f *cliFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.ConfigPath, "config", "c", envOrDefault("NOSTRBOT_CONFIG", ""), "Config file (.toml, .yaml)")
	fl.StringSliceVar(&f.Relays, "relay", nil, "Relay URL, repeatable; replaces configured relays")
	fl.StringVar(&f.Network, "network", "", "clearnet or tor")
	fl.StringVar(&f.Database, "db", "", "SQLite path or postgres:// URL")
	fl.StringVar(&f.SecretFile, "secret-file", "", "File holding the bot secret key (hex or nsec)")
	fl.StringVar(&f.LogLevel, "log-level", "", "trace, debug, info, warn, error or off")
	fl.StringVar(&f.MetricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")
}

// loadConfig resolves flags over env over file and validates the result.
func loadConfig(f cliFlags) (config.Config, error) {
	cfg, err := resolveConfig(f)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// resolveConfig layers flags over env over file and fills defaults. Without
// --config the default file is used when present.
func resolveConfig(f cliFlags) (config.Config, error) {
	path := f.ConfigPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.Read(path)
	if err != nil {
		return config.Config{}, err
	}

	if len(f.Relays) > 0 {
		cfg.Relays = f.Relays
	}
	overrideString(&cfg.Network, f.Network)
	overrideString(&cfg.Database, f.Database)
	overrideString(&cfg.SecretFile, f.SecretFile)
	overrideString(&cfg.LogLevel, f.LogLevel)
	overrideString(&cfg.MetricsAddr, f.MetricsAddr)

	cfg.ApplyDefaults()
	return cfg, nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadKeypair reads the bot key from the environment or the secret file.
func loadKeypair(cfg config.Config) (*nostr.Keypair, error) {
	secret := cfg.Secret
	if secret == "" {
		data, err := os.ReadFile(cfg.SecretFile)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("secret file %s not found; create one with `pollbot keygen --out %s`", cfg.SecretFile, cfg.SecretFile)
		}
		if err != nil {
			return nil, fmt.Errorf("read secret: %w", err)
		}
		secret = string(data)
	}
	k, err := nostr.ParseKeypair(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("parse secret: %w", err)
	}
	return k, nil
}
