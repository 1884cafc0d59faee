package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete recorder configuration
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Audio   AudioConfig   `yaml:"audio"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SerialConfig contains byte source configuration
type SerialConfig struct {
	Port        string `yaml:"port"`
	BaudRate    int    `yaml:"baud_rate"`
	ReadTimeout int    `yaml:"read_timeout_ms"` // milliseconds
	BufferSize  int    `yaml:"buffer_size"`     // bytes
}

// AudioConfig contains output parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Output     string `yaml:"output"`
	Continuous bool   `yaml:"continuous"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`      // stderr, stdout or a file path
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotation size for file output
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
}

// MetricsConfig contains the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration the recorder uses without a config file
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0",
			BaudRate:    460800,
			ReadTimeout: 1000,
			BufferSize:  4096,
		},
		Audio: AudioConfig{
			SampleRate: 8000,
			Output:     "output.wav",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
	}
}

// Load reads a YAML configuration file on top of Default and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Serial.Validate(); err != nil {
		return fmt.Errorf("serial config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

// Validate validates serial configuration
func (s *SerialConfig) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	if s.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", s.BaudRate)
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout_ms must be at least 1, got %d", s.ReadTimeout)
	}

	if s.BufferSize < 16 {
		return fmt.Errorf("buffer_size must be at least 16 bytes, got %d", s.BufferSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 || a.SampleRate > 384000 {
		return fmt.Errorf("sample_rate must be between 1 and 384000, got %d", a.SampleRate)
	}

	if a.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 {
		return fmt.Errorf("max_size_mb and max_backups cannot be negative")
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}
	return nil
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (s *SerialConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Millisecond
}
