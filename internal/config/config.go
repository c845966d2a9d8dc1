// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudo. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Network   NetworkConfig   `toml:"network"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
	Cache     CacheConfig     `toml:"cache"`
}

// ServerConfig locates the backend and the credential issued by it.
type ServerConfig struct {
	BaseURL   string `toml:"base_url"`
	TokenFile string `toml:"token_file"` // empty = platform data dir
}

// NetworkConfig controls HTTP client behavior. max_retries applies to
// idempotent reads only; uploads and deletes are never retried.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	MaxRetries     int    `toml:"max_retries"`
}

// TransfersConfig controls upload concurrency and limits.
type TransfersConfig struct {
	ParallelUploads int    `toml:"parallel_uploads"`
	BandwidthLimit  string `toml:"bandwidth_limit"`
	MaxUploadSize   string `toml:"max_upload_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CacheConfig controls the local snapshot cache used by "ls --cached".
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // empty = platform cache dir
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not given".
type CLIOverrides struct {
	ConfigPath string // --config
	Server     string // --server
}

// Resolved is the effective configuration after all override layers, with
// string settings parsed into the values callers consume.
type Resolved struct {
	Config

	Path       string // config file consulted (may not exist)
	FileLoaded bool   // whether Path existed and was read

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	BandwidthLimit int64 // bytes per second, 0 = unlimited
	MaxUploadSize  int64 // bytes, 0 = unlimited
	TokenPath      string
	CachePath      string
}
