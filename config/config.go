// Package config holds runtime configuration of flowgraph runs. Values
// come from defaults, an optional YAML file and environment overrides, in
// that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables applied by FromEnv.
const (
	EnvBufferBytes = "FLOWGRAPH_BUFFER_BYTES"
	EnvMaxItems    = "FLOWGRAPH_MAX_ITEMS"
	EnvIdleWait    = "FLOWGRAPH_IDLE_WAIT"
	EnvLogLevel    = "FLOWGRAPH_LOG_LEVEL"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config of a flowgraph run.
type Config struct {
	// BufferBytes is the default size of one stream buffer. Buffers grow
	// beyond it when block requirements don't fit.
	BufferBytes int `yaml:"buffer_bytes"`
	// MaxItems caps items per work call, zero means unlimited.
	MaxItems int `yaml:"max_items"`
	// IdleWait is how long a scheduler without progress waits before the
	// next pass when nothing wakes it up.
	IdleWait time.Duration `yaml:"idle_wait"`
	LogLevel string        `yaml:"log_level"`
}

// Default returns default configuration.
func Default() Config {
	return Config{
		BufferBytes: 32768,
		IdleWait:    time.Millisecond,
		LogLevel:    "info",
	}
}

// Load reads YAML file over defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// FromEnv applies environment overrides.
func FromEnv(cfg Config) (Config, error) {
	if v, ok := os.LookupEnv(EnvBufferBytes); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvBufferBytes, err)
		}
		cfg.BufferBytes = n
	}
	if v, ok := os.LookupEnv(EnvMaxItems); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvMaxItems, err)
		}
		cfg.MaxItems = n
	}
	if v, ok := os.LookupEnv(EnvIdleWait); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvIdleWait, err)
		}
		cfg.IdleWait = d
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	return cfg, cfg.Validate()
}

// Validate checks the values.
func (c Config) Validate() error {
	if c.BufferBytes <= 0 {
		return fmt.Errorf("%w: buffer bytes %d", ErrInvalid, c.BufferBytes)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("%w: max items %d", ErrInvalid, c.MaxItems)
	}
	if c.IdleWait <= 0 {
		return fmt.Errorf("%w: idle wait %v", ErrInvalid, c.IdleWait)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Level returns parsed log level, info for invalid values.
func (c Config) Level() logrus.Level {
	l, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
