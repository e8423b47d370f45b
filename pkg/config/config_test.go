package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
environment: test
server:
  port: 9090
kafka:
  brokers: ["k1:9092"]
detector:
  z_threshold: 3
alerts:
  min_severity: high
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 15*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, []string{"k1:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "salespulse.alerts", c.Kafka.AlertsTopic)
	assert.Equal(t, 50*time.Millisecond, c.Kafka.Producer.Linger)
	assert.Equal(t, 3.0, c.Detector.ZThreshold)
	assert.Equal(t, 1.5, c.Detector.IQRMultiplier)
	assert.Equal(t, 15.0, c.Detector.ChangeThresholdPct)
	assert.Equal(t, "high", c.Alerts.MinSeverity)
	assert.Equal(t, 30, c.Alerts.BaselineWindow)
	assert.True(t, c.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no brokers":        "environment: x\n",
		"bad severity":      "kafka: {brokers: [k]}\nalerts: {min_severity: urgent}\n",
		"queue no redis":    "kafka: {brokers: [k]}\nqueue: {enabled: true}\n",
		"zero threshold":    "kafka: {brokers: [k]}\ndetector: {z_threshold: 0}\n",
		"tiny baseline":     "kafka: {brokers: [k]}\nalerts: {baseline_window: 1}\n",
		"port out of range": "kafka: {brokers: [k]}\nserver: {port: 70000}\n",
	}
	for name, doc := range cases {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SP_Z_THRESHOLD", "2")
	t.Setenv("CLICKHOUSE_HOST", "ch")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, 2.0, c.Detector.ZThreshold)
	assert.Equal(t, "ch", c.ClickHouse.Host)
}

func TestLoadWithEnvBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("SP_Z_THRESHOLD", "abc")
	_, err := LoadWithEnv(path)
	assert.Error(t, err)
}
