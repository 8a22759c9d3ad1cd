// Package instance names the running process in logs and lock values.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// envOrder lists the variables consulted for the instance id, first hit wins.
var envOrder = []string{"DAYBOOK_INSTANCE_ID", "DYNO", "HOSTNAME"}

// ID returns the configured instance identifier or "local".
func ID() string {
	for _, key := range envOrder {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return fallbackID
}
