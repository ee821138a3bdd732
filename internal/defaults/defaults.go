// Package defaults resolves the on-disk locations hotword uses.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/Hotword/
//	Windows: %AppData%\Hotword\
//	Linux:   ~/.config/hotword/
//
// Override with HOTWORD_DATA_DIR environment variable.
package defaults

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the platform-appropriate data directory.
// Set HOTWORD_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("HOTWORD_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "hotword"), nil
	}
	return filepath.Join(configDir, "Hotword"), nil
}

// ModelsDir returns the directory holding downloaded ONNX models.
func ModelsDir(dataDir string) string {
	return filepath.Join(dataDir, "models")
}

// EnsureDataDir creates the data directory and its models and data
// subdirectories if they don't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	for _, sub := range []string{"", "data", "models"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return dir, nil
}
