package config

import (
	"os"
	"path/filepath"
)

const appName = "deskxr"

// ConfigDir is $XDG_CONFIG_HOME/deskxr, defaulting to ~/.config/deskxr.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}
