package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadFrom(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/dev/usb/lp0", cfg.Printer.Address)
	assert.Equal(t, 128, cfg.Printer.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Printer.Timeout)
	assert.Equal(t, 100, cfg.Printer.RetryAttempts)
	assert.Equal(t, 200, cfg.Printer.PreambleSize)
	assert.Equal(t, 9100, cfg.Printer.TCP.Port)
	assert.Equal(t, "/dev/usb/lp*", cfg.Discovery.CharDevGlob)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "0.0.0.0:8084", cfg.GetServerAddr())
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=ql_service sslmode=disable",
		cfg.Database.DSN())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
printer:
  address: tcp://10.0.0.5:9100
  threshold: 96
  timeout: 12s
logging:
  level: debug
  format: console
`)

	cfg, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:9100", cfg.Printer.Address)
	assert.Equal(t, 96, cfg.Printer.Threshold)
	assert.Equal(t, 12*time.Second, cfg.Printer.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Printer.RetryAttempts)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QLSVC_PRINTER_THRESHOLD", "200")
	t.Setenv("QLSVC_PRINTER_ADDRESS", "/dev/usb/lp3")

	cfg, err := LoadFrom(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Printer.Threshold)
	assert.Equal(t, "/dev/usb/lp3", cfg.Printer.Address)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold too large", "printer:\n  threshold: 300\n"},
		{"zero timeout", "printer:\n  timeout: 0s\n"},
		{"bad log level", "logging:\n  level: chatty\n"},
		{"bad environment", "app:\n  environment: moon\n"},
		{"no retries", "printer:\n  retry_attempts: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(viper.New(), writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}
