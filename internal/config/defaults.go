package config

// Default values for configuration options. These are layer 0 of the
// override chain and work without any config file.
const (
	defaultBaseURL         = "http://localhost:8080/api"
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "60s"
	defaultMaxRetries      = 3
	defaultParallelUploads = 4
	defaultBandwidthLimit  = "0"
	defaultMaxUploadSize   = "0"
	defaultLogLevel        = "warn"
	defaultLogFormat       = "auto"
	defaultCacheEnabled    = true
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: defaultBaseURL,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			MaxRetries:     defaultMaxRetries,
		},
		Transfers: TransfersConfig{
			ParallelUploads: defaultParallelUploads,
			BandwidthLimit:  defaultBandwidthLimit,
			MaxUploadSize:   defaultMaxUploadSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Cache: CacheConfig{
			Enabled: defaultCacheEnabled,
		},
	}
}
