package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. Reports whether a file was
// read.
func LoadOrDefault(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), false, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}

	return cfg, true, nil
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, loaded, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ServerURL != "" {
		cfg.Server.BaseURL = env.ServerURL
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = strings.ToLower(env.LogLevel)
	}

	if env.TokenFile != "" {
		cfg.Server.TokenFile = env.TokenFile
	}

	if cli.Server != "" {
		cfg.Server.BaseURL = cli.Server
	}

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	// Overrides can introduce values the file never had; check again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath, loaded)
}

// resolve parses the validated string settings. Errors here are
// unreachable after Validate but are still reported rather than ignored.
func resolve(cfg *Config, path string, loaded bool) (*Resolved, error) {
	r := &Resolved{Config: *cfg, Path: path, FileLoaded: loaded}

	var err error

	if r.ConnectTimeout, err = time.ParseDuration(cfg.Network.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	if r.DataTimeout, err = time.ParseDuration(cfg.Network.DataTimeout); err != nil {
		return nil, fmt.Errorf("data_timeout: %w", err)
	}

	if r.BandwidthLimit, err = ParseRate(cfg.Transfers.BandwidthLimit); err != nil {
		return nil, fmt.Errorf("bandwidth_limit: %w", err)
	}

	if r.MaxUploadSize, err = ParseSize(cfg.Transfers.MaxUploadSize); err != nil {
		return nil, fmt.Errorf("max_upload_size: %w", err)
	}

	r.TokenPath = expandHome(cfg.Server.TokenFile)
	if r.TokenPath == "" {
		r.TokenPath = DefaultTokenPath()
	}

	r.CachePath = expandHome(cfg.Cache.Path)
	if r.CachePath == "" {
		r.CachePath = DefaultCachePath()
	}

	return r, nil
}
