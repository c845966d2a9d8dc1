package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"server":    {"base_url", "token_file"},
	"network":   {"connect_timeout", "data_timeout", "max_retries", "user_agent"},
	"transfers": {"bandwidth_limit", "max_upload_size", "parallel_uploads"},
	"logging":   {"log_format", "log_level"},
	"cache":     {"enabled", "path"},
}

// knownSections is the sorted list of section names, for deterministic
// suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key. A top-level key is compared
// against section names; a section key against that section's keys.
func unknownKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	keys, known := knownKeys[section]
	if !known || len(key) == 1 {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config key %q, did you mean section [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config key %q", section)
	}

	field := key[1]
	if slices.Contains(keys, field) {
		return nil
	}

	if suggestion := closestMatch(field, keys); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", field, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using a
// single-row buffer pair.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
