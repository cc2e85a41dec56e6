package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Millisecond, cfg.Debounce.Std())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout.Std())
	assert.Equal(t, 8000, cfg.MaxPayloadSize.Bytes())
	assert.Equal(t, 10, cfg.Backoff.MaxAttempts)
}

func TestValidateRejectsZeroValues(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidDebounce)

	cfg := DefaultConfig()
	cfg.ConnectTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimeout)

	cfg = DefaultConfig()
	cfg.MaxPayloadSize = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPayloadSize)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
debounce: 25ms
max_payload_size: 64KB
backoff:
  initial: 50ms
  max_attempts: 3
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25*time.Millisecond, cfg.Debounce.Std())
	assert.Equal(t, 64*1024, cfg.MaxPayloadSize.Bytes())
	assert.Equal(t, 50*time.Millisecond, cfg.Backoff.Initial.Std())
	assert.Equal(t, 3, cfg.Backoff.MaxAttempts)

	// Absent fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Backoff.Max.Std())
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfigFile(t, "debounce: not-a-duration\n")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoadConfigRejectsBadByteSize(t *testing.T) {
	path := writeConfigFile(t, "max_payload_size: sixty-four\n")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "invalid byte size")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
