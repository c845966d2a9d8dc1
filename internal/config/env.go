package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every environment override: CLOUDO_CONFIG, etc.
const envPrefix = "CLOUDO"

// EnvOverrides holds values read from the environment.
type EnvOverrides struct {
	ConfigPath string `envconfig:"CONFIG"`     // CLOUDO_CONFIG
	ServerURL  string `envconfig:"SERVER_URL"` // CLOUDO_SERVER_URL
	LogLevel   string `envconfig:"LOG_LEVEL"`  // CLOUDO_LOG_LEVEL
	TokenFile  string `envconfig:"TOKEN_FILE"` // CLOUDO_TOKEN_FILE
}

// ReadEnvOverrides reads the CLOUDO_* environment variables.
func ReadEnvOverrides() (EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return EnvOverrides{}, fmt.Errorf("reading environment: %w", err)
	}

	return env, nil
}
