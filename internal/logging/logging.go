// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide structured logger, grounded on github.com/charmbracelet/log
// (listed as a direct dependency of doismellburning/samoyed). Subsystems
// (array, port) get a named child logger via With("subsystem", ...)
// rather than each defining their own logger plumbing.

package logging

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu      sync.RWMutex
	root    = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	verbose bool
)

// SetDebug toggles the process-wide debug log level. Mirrors the
// teacher's facade.Config.EnableDebug knob.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = on
	if on {
		root.SetLevel(log.DebugLevel)
	} else {
		root.SetLevel(log.InfoLevel)
	}
}

// Debugging reports whether debug-level tracing is enabled.
func Debugging() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// For returns a logger scoped to the named subsystem.
func For(subsystem string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With("subsystem", subsystem)
}
