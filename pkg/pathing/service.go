package pathing

import (
	"os"
	"path/filepath"
)

const (
	defaultDataDir   = "/var/lib/inverter_analyzer"
	defaultConfigDir = "/etc/inverter_analyzer"
)

// EnsureDirectories creates the directories the binaries write to.
// Must be called on startup before opening the reading store.
func EnsureDirectories() error {
	// Directories that must exist:
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}

	// Create all directories
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetReadingDbPath() string {
	return filepath.Join(GetDataDir(), "inverters.db")
}

func GetDataDir() string {
	if dir := os.Getenv("INVERTER_ANALYZER_DATA_DIR"); dir != "" {
		return dir
	}
	return defaultDataDir
}

func GetConfigDir() string {
	if dir := os.Getenv("INVERTER_ANALYZER_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigDir
}
