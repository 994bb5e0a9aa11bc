// Package filter selects which scans an export writes
package filter

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	MinScan int          // First scan id to read (0 = file start)
	MaxScan int          // Last scan id to read (0 = file end)
	Levels  []core.Level // Keep only these levels (nil = all)
}

// Clamp narrows the reader's scan range to the configured bounds. An empty
// result is reported as last < first.
func (c *Config) Clamp(first, last int) (int, int) {
	if c.MinScan > first {
		first = c.MinScan
	}
	if c.MaxScan > 0 && c.MaxScan < last {
		last = c.MaxScan
	}
	return first, last
}

// Keep reports whether a scan is written. Dropped scans are still read so the
// precursor linker sees every primary scan.
func (c *Config) Keep(s *core.Scan) bool {
	if len(c.Levels) == 0 {
		return true
	}
	return slices.Contains(c.Levels, s.Level)
}

// Active reports whether any filter is configured.
func (c *Config) Active() bool {
	return c.MinScan > 0 || c.MaxScan > 0 || len(c.Levels) > 0
}

// ParseRange parses a scan range like "100:200", "100:" or ":200".
func ParseRange(s string) (min, max int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}

	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid scan range '%s', expected 'first:last'", s)
	}
	if lo != "" {
		if min, err = strconv.Atoi(lo); err != nil || min < 0 {
			return 0, 0, fmt.Errorf("invalid first scan '%s'", lo)
		}
	}
	if hi != "" {
		if max, err = strconv.Atoi(hi); err != nil || max < 0 {
			return 0, 0, fmt.Errorf("invalid last scan '%s'", hi)
		}
	}
	if max > 0 && min > max {
		return 0, 0, fmt.Errorf("invalid scan range '%s': first after last", s)
	}
	return min, max, nil
}

// ParseLevels parses a comma-separated list of MS levels like "1,2" or "MS2".
func ParseLevels(s string) ([]core.Level, error) {
	var levels []core.Level
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(part), "MS"))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MS level '%s'", part)
		}
		if l := core.Level(n); !slices.Contains(levels, l) {
			levels = append(levels, l)
		}
	}
	return levels, nil
}
