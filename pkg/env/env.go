package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the services read.
const Prefix = "ASSURED_"

// Lookup reads ASSURED_<key> and falls back to the bare key, so platform
// provided variables such as HOSTNAME or WORKER_ID still apply.
func Lookup(key string) (string, bool) {
	key = strings.TrimPrefix(key, Prefix)
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val, true
		}
	}
	return "", false
}

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val, ok := Lookup(key); ok {
		return val
	}
	return fallback
}
