package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/drochester/sketchlink/internal/raster"
	"github.com/drochester/sketchlink/internal/sketcher"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Transfer TransferConfig `yaml:"transfer"`
	Image    ImageConfig    `yaml:"image"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig identifies the projector and bounds the time spent
// reaching it.
type DeviceConfig struct {
	Name           string `yaml:"name"`            // advertised-name substring to scan for
	Address        string `yaml:"address"`         // optional; skips scanning when set
	ServiceUUID    string `yaml:"service_uuid"`
	CharUUID       string `yaml:"char_uuid"`
	ScanTimeout    int    `yaml:"scan_timeout"`    // seconds
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
}

// TransferConfig tunes the chunked stream.
type TransferConfig struct {
	ChunkSize    int `yaml:"chunk_size"`     // bytes per frame, 1..255
	FrameDelayMS int `yaml:"frame_delay_ms"` // pacing between frames
	Retries      int `yaml:"retries"`        // per-frame retry budget
	ReadyTimeout int `yaml:"ready_timeout"`  // seconds to wait for "OK"
	DoneTimeout  int `yaml:"done_timeout"`   // seconds to wait for "Done"
}

// ImageConfig sets the encoder target.
type ImageConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Mode   string `yaml:"mode"` // rgb565, gray8, or mono1
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sketchlink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config matching the stock device.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:           sketcher.DefaultNameFilter,
			ServiceUUID:    sketcher.ServiceUUID,
			CharUUID:       sketcher.DataCharUUID,
			ScanTimeout:    15,
			ConnectTimeout: 10,
		},
		Transfer: TransferConfig{
			ChunkSize:    sketcher.DefaultChunkSize,
			FrameDelayMS: 10,
			Retries:      3,
			ReadyTimeout: 10,
			DoneTimeout:  20,
		},
		Image: ImageConfig{
			Width:  sketcher.Width,
			Height: sketcher.Height,
			Mode:   raster.RGB565.String(),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" && c.Device.Address == "" {
		return fmt.Errorf("device.name or device.address must be set")
	}

	if c.Device.ServiceUUID == "" {
		return fmt.Errorf("device.service_uuid must not be empty")
	}

	if c.Device.CharUUID == "" {
		return fmt.Errorf("device.char_uuid must not be empty")
	}

	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0, got %d", c.Device.ScanTimeout)
	}

	if c.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be > 0, got %d", c.Device.ConnectTimeout)
	}

	if c.Transfer.ChunkSize < 1 || c.Transfer.ChunkSize > sketcher.MaxChunkSize {
		return fmt.Errorf("transfer.chunk_size must be 1..%d, got %d", sketcher.MaxChunkSize, c.Transfer.ChunkSize)
	}

	if c.Transfer.FrameDelayMS < 0 {
		return fmt.Errorf("transfer.frame_delay_ms must be >= 0, got %d", c.Transfer.FrameDelayMS)
	}

	if c.Transfer.Retries < 0 {
		return fmt.Errorf("transfer.retries must be >= 0, got %d", c.Transfer.Retries)
	}

	if c.Transfer.ReadyTimeout <= 0 {
		return fmt.Errorf("transfer.ready_timeout must be > 0, got %d", c.Transfer.ReadyTimeout)
	}

	if c.Transfer.DoneTimeout <= 0 {
		return fmt.Errorf("transfer.done_timeout must be > 0, got %d", c.Transfer.DoneTimeout)
	}

	if c.Image.Width <= 0 || c.Image.Height <= 0 {
		return fmt.Errorf("image dimensions must be > 0, got %dx%d", c.Image.Width, c.Image.Height)
	}

	if _, err := raster.ParseMode(c.Image.Mode); err != nil {
		return fmt.Errorf("image.mode: %w", err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// WriteDefault writes the default config to path, creating parent
// directories as needed. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := []byte("# sketchlink configuration\n# Values here are the stock smART Sketcher 2.0 settings.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// ParseLogLevel maps a config log level string to a slog.Level.
// Unrecognized values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
