package app

import (
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("environment variables take precedence", func(t *testing.T) {
		t.Setenv("RMT_CONFIG_PATH", "/custom/rmt.toml")
		t.Setenv("RMT_HOME", "/custom/home")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults: %v", err)
		}
		if defaults["config_path"] != "/custom/rmt.toml" {
			t.Errorf("config_path = %q", defaults["config_path"])
		}
		if defaults["base_dir"] != "/custom/home" {
			t.Errorf("base_dir = %q", defaults["base_dir"])
		}
		if defaults["log_dir"] != filepath.Join("/custom/home", "log") {
			t.Errorf("log_dir = %q", defaults["log_dir"])
		}
	})

	t.Run("falls back to home directory", func(t *testing.T) {
		t.Setenv("RMT_CONFIG_PATH", "")
		t.Setenv("RMT_HOME", "")
		t.Setenv("HOME", "/home/tester")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults: %v", err)
		}
		if defaults["config_path"] != "/home/tester/.config/rmt.toml" {
			t.Errorf("config_path = %q", defaults["config_path"])
		}
		if defaults["base_dir"] != "/home/tester/.local/share/rmt" {
			t.Errorf("base_dir = %q", defaults["base_dir"])
		}
	})
}
