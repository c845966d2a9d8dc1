// Package testutil provides shared environment helpers for E2E tests, which
// drive the built binary and cannot import internal/.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "WARNING: reading %s: %v\n", envPath, err)
	}
}

// ValidateAllowlist crashes the process if CLOUDO_ALLOWED_TEST_SERVERS is
// not set or if the server named by serverEnvVar is not in the allowlist.
// Keeps E2E runs from ever touching a production server by accident.
func ValidateAllowlist(serverEnvVar string) string {
	allowlist := os.Getenv("CLOUDO_ALLOWED_TEST_SERVERS")
	if allowlist == "" {
		fmt.Fprintln(os.Stderr, "FATAL: CLOUDO_ALLOWED_TEST_SERVERS not set")
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintln(os.Stderr, "Example: CLOUDO_ALLOWED_TEST_SERVERS=http://localhost:3000/api")
		os.Exit(1)
	}

	server := strings.TrimRight(os.Getenv(serverEnvVar), "/")
	if server == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", serverEnvVar)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimRight(strings.TrimSpace(a), "/") == server {
			return server
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in CLOUDO_ALLOWED_TEST_SERVERS=%q\n",
		serverEnvVar, server, allowlist)
	os.Exit(1)

	return ""
}

// RequireEnv returns the named variable or crashes when it is unset.
func RequireEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", name)
		os.Exit(1)
	}

	return v
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// Isolate points HOME and the XDG directories at fresh subdirectories of
// root and clears the CLOUDO_* variables that could leak production paths.
func Isolate(root string) error {
	for _, v := range []string{"CLOUDO_CONFIG", "CLOUDO_TOKEN_FILE", "CLOUDO_LOG_LEVEL"} {
		os.Unsetenv(v)
	}

	dirs := map[string]string{
		"HOME":            filepath.Join(root, "home"),
		"XDG_CONFIG_HOME": filepath.Join(root, "config"),
		"XDG_DATA_HOME":   filepath.Join(root, "data"),
		"XDG_CACHE_HOME":  filepath.Join(root, "cache"),
	}

	for env, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		os.Setenv(env, dir)
	}

	return nil
}
