package bridge

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/conduit-mq/conduit-go/pkg/batch"
	"github.com/conduit-mq/conduit-go/pkg/connection"
	"github.com/conduit-mq/conduit-go/pkg/subscription"
)

// Configuration errors.
var (
	ErrInvalidDebounce    = errors.New("bridge: debounce must be positive")
	ErrInvalidTimeout     = errors.New("bridge: connect timeout must be positive")
	ErrInvalidPayloadSize = errors.New("bridge: max payload size must be positive")
)

// Duration wraps time.Duration with YAML support for strings like "250ms".
type Duration time.Duration

// UnmarshalYAML parses a duration from its string form.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ByteSize wraps datasize.ByteSize with YAML support for strings like "8KB".
type ByteSize datasize.ByteSize

// UnmarshalYAML parses a byte size from its human-readable form.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := datasize.ParseString(raw)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", raw, err)
	}
	*b = ByteSize(parsed)
	return nil
}

// MarshalYAML renders the size in its human-readable form.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return datasize.ByteSize(b).HR(), nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int {
	return int(datasize.ByteSize(b).Bytes())
}

// BackoffConfig configures reconnection backoff.
type BackoffConfig struct {
	// Initial is the first retry delay.
	Initial Duration `yaml:"initial"`

	// Max caps the retry delay.
	Max Duration `yaml:"max"`

	// Multiplier is the per-attempt delay growth factor.
	Multiplier float64 `yaml:"multiplier"`

	// MaxAttempts bounds the retry budget.
	MaxAttempts int `yaml:"max_attempts"`
}

// Config configures a Bridge.
type Config struct {
	// Debounce is the window during which subscription operations fold
	// into one batch.
	Debounce Duration `yaml:"debounce"`

	// ConnectTimeout bounds each transport dial attempt.
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// MaxPayloadSize caps published payloads.
	MaxPayloadSize ByteSize `yaml:"max_payload_size"`

	// HistorySize is the number of subscription snapshots retained for
	// diagnostics.
	HistorySize int `yaml:"history_size"`

	// Backoff configures reconnection delays.
	Backoff BackoffConfig `yaml:"backoff"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:       Duration(batch.DefaultDebounce),
		ConnectTimeout: Duration(connection.DefaultConnectTimeout),
		MaxPayloadSize: ByteSize(8 * datasize.KB),
		HistorySize:    subscription.DefaultHistorySize,
		Backoff: BackoffConfig{
			Initial:     Duration(connection.InitialBackoff),
			Max:         Duration(connection.MaxBackoff),
			Multiplier:  connection.BackoffMultiplier,
			MaxAttempts: connection.MaxAttempts,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Debounce <= 0 {
		return ErrInvalidDebounce
	}
	if c.ConnectTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxPayloadSize <= 0 {
		return ErrInvalidPayloadSize
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Fields absent from the file
// keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
