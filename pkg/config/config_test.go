package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"1s", "1m", "5m", "1h"}, c.Windows)
	assert.Equal(t, "kafka", c.Bus.Backend)
	assert.Equal(t, "demo", c.Bus.Topic)
	assert.Equal(t, 5*time.Second, c.Bus.PublishTimeout)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 8080, c.Server.Port)
	assert.True(t, c.Snapshot.Enabled)
	assert.Equal(t, 5*time.Second, c.Kafka.Stream.CommitInterval)
	assert.False(t, c.Source.PositiveOnly)

	ws, err := c.WindowSet()
	require.NoError(t, err)
	assert.Equal(t, 4, ws.Len())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
windows: [1m, 15m]
bus:
  backend: redis
  publish_timeout: 250ms
server:
  cors: false
log:
  level: debug
  format: console
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, []string{"1m", "15m"}, c.Windows)
	assert.Equal(t, "redis", c.Bus.Backend)
	assert.Equal(t, 250*time.Millisecond, c.Bus.PublishTimeout)
	assert.Equal(t, "demo", c.Bus.Topic)
	assert.False(t, c.Server.CORS)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "console", c.Log.Format)
}

func TestApplyEnv(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	env := map[string]string{
		"KLINE_BUS_BACKEND": "memory",
		"KLINE_WINDOWS":     "1s, 1h",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"KAFKA_TOPIC":       "klines",
		"TICK_SOURCE":       "finnhub",
		"FINNHUB_API_KEY":   "abc",
		"HTTP_PORT":         "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "memory", c.Bus.Backend)
	assert.Equal(t, []string{"1s", "1h"}, c.Windows)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "klines", c.Bus.Topic)
	assert.Equal(t, "finnhub", c.Source.Type)
	assert.Equal(t, 9090, c.Server.Port)
	assert.NoError(t, c.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Bus.Backend = "nats" }},
		{"bad window label", func(c *Config) { c.Windows = []string{"1m", "soon"} }},
		{"duplicate window", func(c *Config) { c.Windows = []string{"1m", "60s"} }},
		{"no windows", func(c *Config) { c.Windows = nil }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Brokers = nil }},
		{"finnhub without key", func(c *Config) { c.Source.Type = "finnhub" }},
		{"collector without kafka", func(c *Config) {
			c.Bus.Backend = "memory"
			c.Log.Collector.Enabled = true
		}},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load("")
			require.NoError(t, err)
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
