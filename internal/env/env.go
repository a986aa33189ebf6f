package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigEnv names the environment variable holding the platform
// configuration path.
const ConfigEnv = "EXTENDER_CONFIG"

// ErrNoConfig is returned when no platform configuration can be located.
var ErrNoConfig = errors.New("no platform configuration found")

var configNames = []string{"platforms.yaml", "platforms.yml", "platforms.toml"}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "extender"), nil
}

// PlatformsFile resolves the platform configuration file: flag when set,
// then $EXTENDER_CONFIG, then the first platforms.{yaml,yml,toml} found in
// ConfigDir.
func PlatformsFile(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if path := os.Getenv(ConfigEnv); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoConfig, err)
	}
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (use --config or $%s)", ErrNoConfig, dir, ConfigEnv)
}
