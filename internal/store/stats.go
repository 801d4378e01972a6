package store

import (
	"context"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/shopspring/decimal"
)

func (q *Queries) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := q.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (q *Queries) CountProducts(ctx context.Context) (int64, error) {
	return q.count(ctx, `SELECT COUNT(*) FROM products`)
}

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	return q.count(ctx, `SELECT COUNT(*) FROM users`)
}

// CountOrders counts all orders, or only those in status when it is non-empty.
func (q *Queries) CountOrders(ctx context.Context, status models.OrderStatus) (int64, error) {
	if status == "" {
		return q.count(ctx, `SELECT COUNT(*) FROM orders`)
	}
	return q.count(ctx, `SELECT COUNT(*) FROM orders WHERE status = ?`, string(status))
}

// SumRevenue adds up total_amount over all orders (or one status), zero when none.
func (q *Queries) SumRevenue(ctx context.Context, status models.OrderStatus) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(total_amount), 0) FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	var sum decimal.Decimal
	if err := q.queryRow(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	// SQLite sums NUMERIC columns as floating point.
	return sum.Round(2), nil
}

// RevenueByStatus groups order totals by status. Statuses without orders are absent.
func (q *Queries) RevenueByStatus(ctx context.Context) (map[models.OrderStatus]decimal.Decimal, error) {
	rows, err := q.query(ctx, `SELECT status, COALESCE(SUM(total_amount), 0) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.OrderStatus]decimal.Decimal)
	for rows.Next() {
		var (
			status models.OrderStatus
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &sum); err != nil {
			return nil, err
		}
		out[status] = sum.Round(2)
	}
	return out, rows.Err()
}

// TopProducts ranks products by units sold across all orders.
func (q *Queries) TopProducts(ctx context.Context, limit int) ([]models.ProductSales, error) {
	rows, err := q.query(ctx, `
		SELECT p.id, p.name, SUM(oi.quantity) AS units_sold
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		GROUP BY p.id, p.name
		ORDER BY units_sold DESC, p.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := []models.ProductSales{}
	for rows.Next() {
		var ps models.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.UnitsSold); err != nil {
			return nil, err
		}
		top = append(top, ps)
	}
	return top, rows.Err()
}
