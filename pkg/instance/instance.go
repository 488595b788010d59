package instance

import (
	"os"
	"strings"
)

// GetID returns the worker instance identifier. It prefers CODESHOP_WORKER_ID,
// then the legacy WORKER_ID, then the hostname.
func GetID() string {
	for _, key := range []string{"CODESHOP_WORKER_ID", "WORKER_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
