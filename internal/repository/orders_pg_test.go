package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/internal/domain"
)

func TestOrderRowToOrder(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	row := orderRow{
		ID:        "O1",
		StudentID: "S1",
		Status:    "STOCK_VERIFIED",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Items:     []byte(`[{"menu_item_id":"ITEM-KEBAB","quantity":3}]`),
	}
	o := row.toOrder()
	require.NoError(t, o.Validate())
	assert.Equal(t, domain.StatusStockVerified, o.Status)
	assert.Equal(t, time.UTC, o.CreatedAt.Location())
	assert.Equal(t, []domain.OrderItem{{MenuItemID: "ITEM-KEBAB", Quantity: 3}}, o.Items)
}

func TestOrderRowBadDataFailsValidation(t *testing.T) {
	bad := orderRow{ID: "O1", Status: "COOKING", Items: []byte(`[]`)}
	assert.Error(t, bad.toOrder().Validate())

	corrupt := orderRow{ID: "O2", Status: "PENDING", Items: []byte(`{not json`)}
	assert.Error(t, corrupt.toOrder().Validate())
}
