// Package util provides small helpers shared across packages.
package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseBoolEnv reads an environment variable as a boolean, accepting common
// truthy spellings. Returns def when unset or unrecognized.
func ParseBoolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	case "0", "f", "false", "n", "no", "off":
		return false
	}
	return def
}

// ParseIntEnv reads an environment variable as an integer, returning def when
// unset or malformed.
func ParseIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ParseDurationEnv reads an environment variable as a time.Duration. Bare
// integers are treated as seconds. Returns def when unset or malformed.
func ParseDurationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
