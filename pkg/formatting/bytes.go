// Package formatting holds small parsing and formatting helpers shared by
// configuration and logging: byte sizes for upload limits and audio payloads,
// and JSON object extraction for model replies.
package formatting

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Base-1024 units. Upload limits and audio payloads never approach petabytes.
var units = []string{"B", "KB", "MB", "GB", "TB"}

var bytesPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders n with the largest unit that keeps the value at or above one.
// Negative precision is treated as zero.
func FormatBytes(n int64, precision int) string {
	precision = max(precision, 0)
	if n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}

	size, i := float64(n), 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return strconv.FormatFloat(size, 'f', precision, 64) + " " + units[i]
}

// ParseBytes reads sizes such as "25MB", "512 kb", "1.5GiB" or "2G".
// A bare number is a byte count. Units are case-insensitive and base-1024.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	m := bytesPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}

	idx := slices.Index(units, canonicalUnit(m[2]))
	if idx == -1 {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	n := value * math.Pow(1024, float64(idx))
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("byte size out of range: %q", s)
	}
	return int64(n), nil
}

// canonicalUnit folds "K", "KiB" and "kb" to "KB". An empty unit is bytes.
func canonicalUnit(unit string) string {
	u := strings.ToUpper(unit)
	u = strings.TrimSuffix(u, "IB")
	u = strings.TrimSuffix(u, "B")
	if u == "" {
		return "B"
	}
	return u + "B"
}
