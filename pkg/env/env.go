// Package env reads process settings that must be known before config.Load runs.
package env

import (
	"os"
	"strconv"
	"strings"
)

// Get returns the trimmed value of the first set key, or fallback.
func Get(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}

// Bool parses key as a boolean and returns fallback when unset or malformed.
func Bool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
