package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
database:
  host: db
  user: kitchen
  database: cafeteria
rabbitmq:
  host: mq
  user: guest
poller:
  source: postgres
  interval: 2s
listener:
  transport: amqp
monitor:
  latency_threshold: 750ms
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "/", cfg.RabbitMQ.VHost)
	assert.Equal(t, "notifications_fanout", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 750*time.Millisecond, cfg.Monitor.LatencyThreshold)
	assert.Equal(t, 15*time.Second, cfg.Monitor.Interval)
	require.Len(t, cfg.Monitor.Probes, 5)
	assert.Equal(t, "http://localhost:8002/health", cfg.Monitor.Probes[1].URL)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	p := writeConfig(t, `
poller:
  source: postgres
listener:
  transport: carrier-pigeon
`)
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database config incomplete")
	assert.Contains(t, err.Error(), `unknown listener.transport "carrier-pigeon"`)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ORDER_SYNC_KITCHEN_URL", "http://kitchen:9000")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://kitchen:9000", cfg.Services.Kitchen)
	assert.Equal(t, "http://kitchen:9000/health", cfg.Monitor.Probes[3].URL)
}
