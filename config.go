package serialchat

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration, loaded from a YAML file.
// A missing file yields the defaults.
type Config struct {
	DataDir          string        `yaml:"data_dir" validate:"required"`
	RescanIntervalMS int           `yaml:"rescan_interval_ms" validate:"gte=100,lte=60000"`
	Defaults         LineDefaults  `yaml:"defaults"`
	Logging          LoggingConfig `yaml:"logging"`
	Archive          ArchiveConfig `yaml:"archive"`
}

// LineDefaults seeds new port records.
type LineDefaults struct {
	BaudRate    int `yaml:"baud_rate"`
	DataBits    int `yaml:"data_bits"`
	StopBits    int `yaml:"stop_bits"`
	Parity      int `yaml:"parity"`
	FlowControl int `yaml:"flow_control"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Console    bool   `yaml:"console"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

var validate = validator.New()

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:          "data",
		RescanIntervalMS: 1000,
		Defaults: LineDefaults{
			BaudRate:    DefaultBaudRate.Int(),
			DataBits:    DefaultDataBits.Int(),
			StopBits:    int(DefaultStopBits),
			Parity:      int(DefaultParity),
			FlowControl: DefaultFlowControl.Int(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "serialchat.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Console:    true,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "data/archive.db",
		},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an
// error; malformed or invalid content is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural constraints and the line-parameter
// whitelists.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if !BaudRate(c.Defaults.BaudRate).Valid() {
		return fmt.Errorf("invalid default baud rate %d", c.Defaults.BaudRate)
	}
	if !DataBits(c.Defaults.DataBits).Valid() {
		return fmt.Errorf("default data bits must be 5-8, got: %d", c.Defaults.DataBits)
	}
	if !StopBits(c.Defaults.StopBits).Valid() {
		return fmt.Errorf("default stop bits must be 1, 2 or 3 (1.5), got: %d", c.Defaults.StopBits)
	}
	if !Parity(c.Defaults.Parity).Valid() {
		return fmt.Errorf("invalid default parity value: %d", c.Defaults.Parity)
	}
	if !FlowControl(c.Defaults.FlowControl).Valid() {
		return fmt.Errorf("invalid default flow control value: %d", c.Defaults.FlowControl)
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive enabled without a path")
	}
	return nil
}

// RescanInterval returns the port rescan period.
func (c Config) RescanInterval() time.Duration {
	return time.Duration(c.RescanIntervalMS) * time.Millisecond
}

// NewRecord builds a port record seeded with the configured defaults.
func (c Config) NewRecord(name string) PortRecord {
	return PortRecord{
		Name:        name,
		BaudRate:    BaudRate(c.Defaults.BaudRate),
		DataBits:    DataBits(c.Defaults.DataBits),
		StopBits:    StopBits(c.Defaults.StopBits),
		Parity:      Parity(c.Defaults.Parity),
		FlowControl: FlowControl(c.Defaults.FlowControl),
		Status:      StatusOffline,
	}
}
