package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// configFilePermissions is owner read/write, everyone else read-only.
const configFilePermissions = 0o644

// configDirPermissions is the mode for a newly created config directory.
const configDirPermissions = 0o755

// ErrConfigExists is returned by CreateDefault when the file is present.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate lists every setting as a commented-out default so users can
// discover options without reading docs. It is written once and never
// regenerated.
const configTemplate = `# cloudo configuration

[server]
base_url = %q
# Where the login credential is kept (default: platform data directory)
# token_file = ""

[network]
# connect_timeout = "10s"
# data_timeout = "60s"
# Retries for listing and locator lookups; uploads are never retried
# max_retries = 3
# user_agent = ""

[transfers]
# parallel_uploads = 4
# Bandwidth cap shared by all uploads, e.g. "5MB/s" ("0" = unlimited)
# bandwidth_limit = "0"
# Refuse uploads larger than this before sending, e.g. "2GiB" ("0" = no limit)
# max_upload_size = "0"

[logging]
# debug, info, warn, error
# log_level = "warn"
# auto, text, json
# log_format = "auto"

[cache]
# Keep the last listing for "ls --cached"
# enabled = true
# path = ""
`

// CreateDefault writes a commented default config pointing at baseURL.
// Returns ErrConfigExists rather than overwriting an existing file.
func CreateDefault(path, baseURL string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	slog.Info("creating config file", slog.String("path", path), slog.String("base_url", baseURL))

	return atomicWriteFile(path, fmt.Appendf(nil, configTemplate, baseURL))
}

// rawValueKeys are emitted unquoted; every other key is a TOML string.
var rawValueKeys = []string{"max_retries", "parallel_uploads", "enabled"}

// SetKey sets "section.key" to value in the config file at path, editing the
// text in place so comments and layout survive. A missing file is created
// from the default template first. The edited document is decoded and
// validated before it replaces the file.
func SetKey(path, dottedKey, value string) error {
	section, key, ok := strings.Cut(dottedKey, ".")
	if !ok || !slices.Contains(knownKeys[section], key) {
		return unknownSetKeyError(dottedKey)
	}

	slog.Info("setting config key",
		slog.String("path", path),
		slog.String("key", dottedKey),
	)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = fmt.Appendf(nil, configTemplate, defaultBaseURL)
	} else if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	formatted, err := formatTOMLValue(key, value)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	lines = setKeyInSection(lines, section, key, key+" = "+formatted)
	out := strings.Join(lines, "\n")

	cfg := DefaultConfig()

	md, err := toml.Decode(out, cfg)
	if err != nil {
		return fmt.Errorf("setting %s: %w", dottedKey, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return err
	}

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("setting %s: %w", dottedKey, err)
	}

	return atomicWriteFile(path, []byte(out))
}

func unknownSetKeyError(dottedKey string) error {
	all := make([]string, 0, len(knownSections)*3)
	for _, section := range knownSections {
		for _, k := range knownKeys[section] {
			all = append(all, section+"."+k)
		}
	}

	if suggestion := closestMatch(dottedKey, all); suggestion != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", dottedKey, suggestion)
	}

	return fmt.Errorf("unknown config key %q (keys look like section.key)", dottedKey)
}

// formatTOMLValue renders value for key: integers and booleans raw,
// everything else as a quoted string.
func formatTOMLValue(key, value string) (string, error) {
	if !slices.Contains(rawValueKeys, key) {
		return strconv.Quote(value), nil
	}

	if key == "enabled" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("%s: expected true or false, got %q", key, value)
		}

		return strconv.FormatBool(b), nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return "", fmt.Errorf("%s: expected an integer, got %q", key, value)
	}

	return strconv.Itoa(n), nil
}

// setKeyInSection replaces an existing "key = ..." line inside [section], or
// inserts one right after the header. A missing section is appended.
func setKeyInSection(lines []string, section, key, newLine string) []string {
	headerLine := findSectionHeader(lines, section)
	if headerLine < 0 {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}

		return append(lines, "", "["+section+"]", newLine, "")
	}

	sectionEnd := findSectionEnd(lines, headerLine+1)

	for i := headerLine + 1; i < sectionEnd; i++ {
		if isKeyLine(lines[i], key) {
			lines[i] = newLine

			return lines
		}
	}

	inserted := make([]string, 0, len(lines)+1)
	inserted = append(inserted, lines[:headerLine+1]...)
	inserted = append(inserted, newLine)
	inserted = append(inserted, lines[headerLine+1:]...)

	return inserted
}

func isKeyLine(line, key string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), key)
	if !ok {
		return false
	}

	return strings.HasPrefix(strings.TrimSpace(rest), "=")
}

func findSectionHeader(lines []string, section string) int {
	header := "[" + section + "]"

	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			return i
		}
	}

	return -1
}

// findSectionEnd returns the index of the next section header, or len(lines).
func findSectionEnd(lines []string, sectionStart int) int {
	for i := sectionStart; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "[") {
			return i
		}
	}

	return len(lines)
}

// atomicWriteFile writes data to a temp file beside path, then renames it
// into place so a crash never leaves a partial config file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
