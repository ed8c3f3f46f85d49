package config

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	global     *Config
	globalErr  error
	globalOnce sync.Once
	globalPath string
)

// SetPath selects the config file Global loads; it must be called before the first Global call
func SetPath(path string) {
	globalPath = path
}

// Global returns the process-wide configuration, loaded once
func Global() (*Config, error) {
	globalOnce.Do(func() {
		global, globalErr = Load(globalPath)
		if globalErr != nil {
			log.Debugf("Failed to load config: %v", globalErr)
		}
	})
	return global, globalErr
}

// ResetGlobal forgets the loaded configuration (useful for testing)
func ResetGlobal() {
	globalOnce = sync.Once{}
	global, globalErr, globalPath = nil, nil, ""
}
