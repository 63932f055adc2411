package config

import "sync"

// RuntimeConfig stores settings chosen at runtime via CLI flags.
// These values are not persisted to config files.
type RuntimeConfig struct {
	mu      sync.RWMutex
	verbose bool
}

var globalRuntime = &RuntimeConfig{}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.verbose = v
}

// IsVerbose returns whether debug logging is enabled.
func IsVerbose() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.verbose
}
