package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/internal/common/logger"
	"order-sync/internal/config"
)

func TestTransportSelection(t *testing.T) {
	cfg := config.Default()
	for _, name := range []string{"sse", "redis", "amqp"} {
		cfg.Listener.Transport = name
		tr, closeFn, err := Transport(&cfg)
		require.NoError(t, err)
		assert.Equal(t, name, tr.Name())
		closeFn()
	}
	cfg.Listener.Transport = "carrier-pigeon"
	_, _, err := Transport(&cfg)
	assert.Error(t, err)
}

func TestHTTPSourceByDefault(t *testing.T) {
	cfg := config.Default()
	src, closeFn, err := Source(context.Background(), &cfg, logger.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "kitchen_http", src.Name())
}

func TestChaosBase(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "http://localhost:8005/notifications", chaosBase(&cfg))

	cfg.Monitor.ChaosService = "stock-service"
	cfg.Monitor.Probes = []config.ServiceEndpoint{{Name: "stock-service", URL: "http://stock:8003/health"}}
	assert.Equal(t, "http://stock:8003", chaosBase(&cfg))
}
