package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for both binaries. The
// sender ignores the Receiver section and vice versa, so one file can drive
// a full deployment.
type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	Codec     CodecConfig     `yaml:"codec"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
	Receiver  ReceiverConfig  `yaml:"receiver"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StreamConfig contains the segmentation and pipeline parameters
type StreamConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	ChunkLength   int `yaml:"chunk_length"`   // samples
	OverlapLength int `yaml:"overlap_length"` // samples
	QueueCapacity int `yaml:"queue_capacity"` // chunks buffered between stages
}

// CodecConfig selects the codec backend and its quality setting
type CodecConfig struct {
	Backend string `yaml:"backend"`
	Layers  int    `yaml:"layers"`
}

// RateLimitConfig contains the outbound bandwidth budget
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	BytesPerSecond int  `yaml:"bytes_per_second"`
}

// SenderConfig contains the sender's connection and input settings
type SenderConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Input    string `yaml:"input"` // WAV path, empty for a synthetic tone
	Realtime bool   `yaml:"realtime"`
}

// ReceiverConfig contains the receiver's listener and output settings
type ReceiverConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	OutputDir   string `yaml:"output_dir"`
}

// HTTPConfig contains the receiver's HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("codec config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit config: %w", err)
	}

	if err := c.Sender.Validate(); err != nil {
		return fmt.Errorf("sender config: %w", err)
	}

	if err := c.Receiver.Validate(); err != nil {
		return fmt.Errorf("receiver config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be positive, got %d", s.SampleRate)
	}

	if s.ChunkLength < 1 {
		return fmt.Errorf("chunk_length must be positive, got %d", s.ChunkLength)
	}

	if s.OverlapLength < 0 || s.OverlapLength >= s.ChunkLength {
		return fmt.Errorf("overlap_length must be between 0 and chunk_length-1 (%d), got %d",
			s.ChunkLength-1, s.OverlapLength)
	}

	if s.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", s.QueueCapacity)
	}

	return nil
}

// Validate validates codec configuration
func (c *CodecConfig) Validate() error {
	if c.Backend != "zstd" && c.Backend != "identity" {
		return fmt.Errorf("backend must be zstd or identity, got %q", c.Backend)
	}

	if c.Layers < 1 {
		return fmt.Errorf("layers must be at least 1, got %d", c.Layers)
	}

	return nil
}

// Validate validates rate limit configuration
func (r *RateLimitConfig) Validate() error {
	if r.Enabled && r.BytesPerSecond < 1 {
		return fmt.Errorf("bytes_per_second must be positive when rate limiting is enabled, got %d",
			r.BytesPerSecond)
	}

	return nil
}

// Validate validates sender configuration
func (s *SenderConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	return nil
}

// Validate validates receiver configuration
func (r *ReceiverConfig) Validate() error {
	if r.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", r.Port)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}

	switch l.Format {
	case "json", "text":
	default:
		return fmt.Errorf("format must be json or text, got %q", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}
