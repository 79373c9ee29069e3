// Package config provides configuration loading for amqpdump.
//
// Configuration is loaded from a single YAML file specified by:
//   - AMQPDUMP_CONFIG environment variable, or
//   - --config flag passed to the command
//
// Without either, the defaults are used. Command line flags override
// values from the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	amqp "github.com/zedar/go-amqp-codec"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "AMQPDUMP_CONFIG"

// Config is the configuration of amqpdump.
type Config struct {
	// Decoder configures the safety ceilings of the decoder.
	Decoder DecoderConfig `yaml:"decoder"`

	// Input configures how input bytes are read and fed to the decoder.
	Input InputConfig `yaml:"input"`

	// Output configures how decoded values are reported.
	Output OutputConfig `yaml:"output"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`
}

// DecoderConfig configures the decoder ceilings.
type DecoderConfig struct {
	// MaxItemCount is the largest element count accepted for a list, map
	// or array.
	// Default: 65536
	MaxItemCount uint32 `yaml:"max_item_count"`

	// MaxAllocation is the largest single allocation in bytes made for a
	// length or count read from the input.
	// Default: 1048576
	MaxAllocation uint32 `yaml:"max_allocation"`

	// MaxDepth is the largest number of values open at once while
	// decoding nested lists, maps, arrays and described values.
	// Default: 128
	MaxDepth uint32 `yaml:"max_depth"`
}

// InputConfig configures input handling.
type InputConfig struct {
	// Hex treats the input as hex text. Whitespace is ignored.
	Hex bool `yaml:"hex"`

	// Compression is the compression of the input stream: none, gzip,
	// zstd or lz4. Decompression happens before hex decoding.
	// Default: none
	Compression string `yaml:"compression"`

	// ChunkSize is the number of bytes handed to the decoder per call.
	// Default: 4096
	ChunkSize int `yaml:"chunk_size"`

	// Verify re-encodes every decoded value and reports whether the input
	// used the canonical encoding.
	Verify bool `yaml:"verify"`
}

// OutputConfig configures the report of decoded values.
type OutputConfig struct {
	// Format is "text" for one line per value or "cbor" for a stream of
	// CBOR records.
	// Default: text
	Format string `yaml:"format"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a zerolog level name.
	// Default: info
	Level string `yaml:"level"`

	// Format is "console" or "json".
	// Default: console
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Decoder: DecoderConfig{
			MaxItemCount:  amqp.DefaultMaxItemCount,
			MaxAllocation: amqp.DefaultMaxAllocation,
			MaxDepth:      amqp.DefaultMaxDepth,
		},
		Input: InputConfig{
			Compression: "none",
			ChunkSize:   4096,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from the AMQPDUMP_CONFIG environment variable,
// or returns the defaults when it is not set.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. Values missing
// from the file keep their defaults; unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Decoder.MaxItemCount == 0 {
		return errors.New("decoder.max_item_count must be positive")
	}
	if c.Decoder.MaxAllocation == 0 {
		return errors.New("decoder.max_allocation must be positive")
	}
	if c.Decoder.MaxDepth == 0 {
		return errors.New("decoder.max_depth must be positive")
	}
	if c.Input.ChunkSize <= 0 {
		return fmt.Errorf("input.chunk_size must be positive, got %d", c.Input.ChunkSize)
	}
	switch c.Input.Compression {
	case "none", "gzip", "zstd", "lz4":
	default:
		return fmt.Errorf("input.compression must be none, gzip, zstd or lz4, got %q", c.Input.Compression)
	}
	switch c.Output.Format {
	case "text", "cbor":
	default:
		return fmt.Errorf("output.format must be text or cbor, got %q", c.Output.Format)
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// ParseLevel returns the zerolog level named by Level.
func (l LogConfig) ParseLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// DecoderOptions converts the decoder ceilings into decoder options.
func (c *Config) DecoderOptions() []amqp.DecoderOption {
	return []amqp.DecoderOption{
		amqp.DecoderMaxItemCount(c.Decoder.MaxItemCount),
		amqp.DecoderMaxAllocation(c.Decoder.MaxAllocation),
		amqp.DecoderMaxDepth(c.Decoder.MaxDepth),
	}
}
