package common

import (
	"testing"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/planb/lib/db"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"missing dir", func(c *Config) { c.Dir = "" }},
		{"missing engine", func(c *Config) { c.Engine = "" }},
		{"hash width", func(c *Config) { c.HashWidth = 6 }},
		{"strategy", func(c *Config) { c.LookupStrategy = "random" }},
		{"negative probes", func(c *Config) { c.UIDMaxProbes = -1 }},
		{"negative flush interval", func(c *Config) { c.WriterFlushInterval = -time.Second }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, db.ErrConfig)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.HashWidth = 3
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data directory")
	assert.Contains(t, err.Error(), "hash width")
}

func TestString(t *testing.T) {
	cfg := DefaultConfig("/var/lib/planb")
	cfg.WriterFlushInterval = 50 * time.Millisecond
	out := cfg.String()
	assert.Contains(t, out, "STORAGE")
	assert.Contains(t, out, "/var/lib/planb")
	assert.Contains(t, out, "1024 MiB")
	assert.Contains(t, out, "50ms")
}

func TestParseLogLevel(t *testing.T) {
	for name, expected := range map[string]logger.LogLevel{
		"debug": logger.DEBUG, "INFO": logger.INFO, "warn": logger.WARNING, "warning": logger.WARNING, "error": logger.ERROR,
	} {
		lvl, err := ParseLogLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, lvl, name)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestInitLoggers(t *testing.T) {
	require.NoError(t, InitLoggers("warn"))
	assert.Error(t, InitLoggers("nope"))
}
