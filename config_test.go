package serialchat

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serialchat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.RescanInterval() != time.Second {
		t.Fatalf("rescan = %v", cfg.RescanInterval())
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "data" || cfg.Defaults.BaudRate != DefaultBaudRate.Int() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/serialchat
rescan_interval_ms: 500
defaults:
  baud_rate: 9600
  parity: 0
logging:
  level: debug
  console: false
archive:
  enabled: true
  path: /var/lib/serialchat/archive.db
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/serialchat" {
		t.Fatalf("data dir = %q", cfg.DataDir)
	}
	if cfg.RescanInterval() != 500*time.Millisecond {
		t.Fatalf("rescan = %v", cfg.RescanInterval())
	}
	if cfg.Defaults.BaudRate != 9600 {
		t.Fatalf("baud = %d", cfg.Defaults.BaudRate)
	}
	// untouched keys keep their defaults
	if cfg.Defaults.DataBits != DefaultDataBits.Int() || cfg.Logging.MaxBackups != 3 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Path == "" {
		t.Fatalf("archive: %+v", cfg.Archive)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad baud", "defaults:\n  baud_rate: 1234\n"},
		{"bad data bits", "defaults:\n  data_bits: 9\n"},
		{"bad stop bits", "defaults:\n  stop_bits: 5\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"rescan too small", "rescan_interval_ms: 10\n"},
		{"archive without path", "archive:\n  enabled: true\n  path: \"\"\n"},
		{"not yaml", ": : :\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestConfigNewRecordUsesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.BaudRate = 9600
	rec := cfg.NewRecord("COM4")
	if rec.Name != "COM4" || rec.BaudRate != Baud9600 || rec.Status != StatusOffline {
		t.Fatalf("record: %+v", rec)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("seeded record invalid: %v", err)
	}
}
