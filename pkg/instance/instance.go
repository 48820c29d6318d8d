package instance

import (
	"os"

	"github.com/assuredfarming/assured-farming-backend/pkg/env"
)

const fallbackID = "worker-0"

var hostname = os.Hostname

// GetID identifies the running process in logs and cron lock ownership.
// ASSURED_INSTANCE_ID wins, then WORKER_ID, then the host name.
func GetID() string {
	if id, ok := env.Lookup("INSTANCE_ID"); ok {
		return id
	}
	if id, ok := env.Lookup("WORKER_ID"); ok {
		return id
	}
	if host, err := hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
