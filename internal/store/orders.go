package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alextreichler/storefront/internal/models"
)

const orderColumns = `id, user_id, total_amount, status, shipping_address, created_at, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.TotalAmount = o.TotalAmount.Round(2)
	return &o, nil
}

// InsertOrder writes the order row and its items, filling in the generated ids
// and timestamps. Callers run it inside WithTx together with the stock updates.
func (q *Queries) InsertOrder(ctx context.Context, o *models.Order) error {
	if len(o.Items) == 0 {
		return errors.New("insert order: no items")
	}
	ts := now()
	err := q.queryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, shipping_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		o.UserID, o.TotalAmount.Round(2), string(o.Status), o.ShippingAddress, ts, ts,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.CreatedAt, o.UpdatedAt = ts, ts

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := q.queryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.Price.Round(2),
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

// GetOrderRow loads the order row without items or references.
func (q *Queries) GetOrderRow(ctx context.Context, id int64) (*models.Order, error) {
	o, err := scanOrder(q.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateOrderStatus overwrites the status; it is the only post-creation write
// an order ever receives.
func (q *Queries) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (time.Time, error) {
	ts := now()
	res, err := q.exec(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, string(status), ts, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("update order %d status: %w", id, err)
	}
	return ts, requireOneRow(res)
}

type OrderFilter struct {
	UserID int64              // 0 means any user
	Status models.OrderStatus // "" means any status
	Limit  int                // 0 means no limit
	// NewestFirst sorts by creation time descending instead of by id.
	NewestFirst bool
}

// ListOrders returns bare order rows; use Hydrate to attach items, products and users.
func (q *Queries) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY id"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListOrderItems returns the items of the given orders grouped by order id,
// each group in line order.
func (q *Queries) ListOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	out := make(map[int64][]models.OrderItem, len(orderIDs))
	for _, batch := range batches(orderIDs) {
		if err := q.listOrderItems(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *Queries) listOrderItems(ctx context.Context, orderIDs []int64, out map[int64][]models.OrderItem) error {
	ph, args := inList(orderIDs)
	rows, err := q.query(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id IN (`+ph+`)
		ORDER BY order_id, id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return err
		}
		it.Price = it.Price.Round(2)
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return rows.Err()
}
