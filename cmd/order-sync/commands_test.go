package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/internal/domain"
)

func TestParseItems(t *testing.T) {
	items, err := parseItems([]string{"burger=2", " fries ", "cola = 3"})
	require.NoError(t, err)
	assert.Equal(t, []domain.OrderItem{
		{MenuItemID: "burger", Quantity: 2},
		{MenuItemID: "fries", Quantity: 1},
		{MenuItemID: "cola", Quantity: 3},
	}, items)

	_, err = parseItems([]string{"=2"})
	assert.Error(t, err)
	_, err = parseItems([]string{"burger=lots"})
	assert.Error(t, err)
}

func TestRootHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"board", "track", "monitor", "serve"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestMonitorRejectsBadChaosFlag(t *testing.T) {
	t.Setenv("ORDER_SYNC_LOG_LEVEL", "error")
	root := NewRootCommand()
	root.SetArgs([]string{"monitor", "--chaos", "maybe", "--config", "testdata/config.yaml"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --chaos")
}
