package env

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// isolate points the user config directory at a fresh temp dir and clears
// $EXTENDER_CONFIG. It returns the resulting ConfigDir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("AppData", filepath.Join(home, "AppData"))
	t.Setenv(ConfigEnv, "")

	dir, err := ConfigDir()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	return dir
}

func TestConfigDir(t *testing.T) {
	dir := isolate(t)

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		t.Fatalf("os.UserConfigDir() returned error: %v", err)
	}
	if want := filepath.Join(userConfigDir, "extender"); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
}

func TestPlatformsFileFlagWins(t *testing.T) {
	isolate(t)
	t.Setenv(ConfigEnv, "/from/env.yaml")

	got, err := PlatformsFile("/from/flag.toml")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/from/flag.toml" {
		t.Errorf("PlatformsFile() = %q, want the flag value", got)
	}
}

func TestPlatformsFileFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv(ConfigEnv, "/from/env.yaml")

	got, err := PlatformsFile("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/from/env.yaml" {
		t.Errorf("PlatformsFile() = %q, want $%s", got, ConfigEnv)
	}
}

// TestPlatformsFileSearchOrder checks that yaml is preferred over toml when
// both exist in the config directory.
func TestPlatformsFileSearchOrder(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"platforms.toml", "platforms.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := PlatformsFile("")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "platforms.yml"); got != want {
		t.Errorf("PlatformsFile() = %q, want %q", got, want)
	}
}

func TestPlatformsFileNotFound(t *testing.T) {
	isolate(t)

	_, err := PlatformsFile("")
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("PlatformsFile() error = %v, want ErrNoConfig", err)
	}
}
