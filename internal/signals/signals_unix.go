//go:build unix

package signals

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the list of signals that trigger graceful shutdown.
// On Unix this includes SIGTERM (e.g. from systemd or a container runtime).
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// ReloadSignals returns the signals that make the daemon re-read its config
// and rebuild the key pool, restoring quarantined keys.
func ReloadSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP}
}
