package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"order-sync/internal/domain"
	"order-sync/internal/poller"
)

// Querier is the subset of *pgxpool.Pool the snapshot source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OrdersPG reads snapshots straight from the kitchen database.
type OrdersPG struct {
	db Querier
}

func NewOrdersPG(db Querier) *OrdersPG { return &OrdersPG{db: db} }

func (r *OrdersPG) Name() string { return "kitchen_pg" }

const ordersQuery = `
SELECT o.id, o.student_id, o.status::text, o.special_notes, o.created_at, o.updated_at,
       COALESCE(json_agg(json_build_object('menu_item_id', i.menu_item_id, 'quantity', i.quantity))
                FILTER (WHERE i.id IS NOT NULL), '[]') AS items
FROM orders o
LEFT JOIN order_items i ON i.order_id = o.id
WHERE ($1 = '' OR o.id = $1)
GROUP BY o.id
ORDER BY o.created_at ASC, o.id ASC
`

// orderRow is one scanned row before conversion.
type orderRow struct {
	ID        string
	StudentID string
	Status    string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []byte
}

func (r *OrdersPG) FetchOrders(ctx context.Context, scope poller.Scope) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, ordersQuery, scope.OrderID)
	if err != nil {
		return nil, &domain.TransientFetchError{Op: "query orders", Err: err}
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		var row orderRow
		if err := rows.Scan(&row.ID, &row.StudentID, &row.Status, &row.Notes,
			&row.CreatedAt, &row.UpdatedAt, &row.Items); err != nil {
			return nil, &domain.TransientFetchError{Op: "scan orders", Err: err}
		}
		out = append(out, row.toOrder())
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.TransientFetchError{Op: "read orders", Err: err}
	}
	return out, nil
}

// toOrder converts a row. A bad status or items column yields a row that fails
// Validate, so the engine skips it instead of failing the whole snapshot.
func (row orderRow) toOrder() domain.Order {
	st, ok := domain.ParseStatus(row.Status)
	if !ok {
		st = domain.Status(row.Status)
	}
	o := domain.Order{
		ID:        row.ID,
		StudentID: row.StudentID,
		Note:      row.Notes,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Status:    st,
	}
	if len(row.Items) > 0 {
		if err := json.Unmarshal(row.Items, &o.Items); err != nil {
			o.Items = []domain.OrderItem{{MenuItemID: fmt.Sprintf("corrupt: %v", err)}}
		}
	}
	return o
}
