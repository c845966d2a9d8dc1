package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a size like "10MB", "1.5 GiB" or "2048" to bytes. SI and
// IEC suffixes are both accepted, case-insensitively. Empty and "0" mean no
// limit and return 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(n), nil
}

// ParseRate parses a bandwidth like "5MB/s", "100KiB/s" or "0" into bytes per
// second. The "/s" suffix is optional.
func ParseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(strings.ToLower(s), "/s") {
		s = s[:len(s)-len("/s")]
	}

	n, err := ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rate: %w", err)
	}

	return n, nil
}
