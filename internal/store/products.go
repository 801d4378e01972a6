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

const productColumns = `id, name, description, price, category, image, stock, created_at, updated_at`

// now is the server-assigned timestamp for every write. Microsecond precision
// is what PostgreSQL keeps, so values round-trip unchanged on both backends.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Image, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Price = p.Price.Round(2)
	return &p, nil
}

func (q *Queries) CreateProduct(ctx context.Context, p *models.Product) error {
	ts := now()
	err := q.queryRow(ctx, `
		INSERT INTO products (name, description, price, category, image, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.Name, p.Description, p.Price.Round(2), p.Category, p.Image, p.Stock, ts, ts,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.Price = p.Price.Round(2)
	p.CreatedAt, p.UpdatedAt = ts, ts
	return nil
}

func (q *Queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(q.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetProductForUpdate reads a product and, where the dialect supports it,
// holds a row lock until the surrounding transaction ends.
func (q *Queries) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(q.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`+q.d.forUpdate, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

type ProductFilter struct {
	Category string
	Query    string // case-insensitive substring of the name
	InStock  bool
}

func (q *Queries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Query)+"%")
	}
	if f.InStock {
		where = append(where, "stock > 0")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.query(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetProductsByIDs returns the products that exist, keyed by id.
func (q *Queries) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	out := make(map[int64]*models.Product, len(ids))
	for _, batch := range batches(ids) {
		if err := q.getProductsByIDs(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *Queries) getProductsByIDs(ctx context.Context, ids []int64, out map[int64]*models.Product) error {
	ph, args := inList(ids)
	rows, err := q.query(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return err
		}
		out[p.ID] = p
	}
	return rows.Err()
}

func (q *Queries) UpdateProduct(ctx context.Context, p *models.Product) error {
	ts := now()
	res, err := q.exec(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, category = ?, image = ?, stock = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price.Round(2), p.Category, p.Image, p.Stock, ts, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	if err := requireOneRow(res); err != nil {
		return err
	}
	p.Price = p.Price.Round(2)
	p.UpdatedAt = ts
	return nil
}

func (q *Queries) UpdateProductImage(ctx context.Context, id int64, image string) error {
	res, err := q.exec(ctx, `UPDATE products SET image = ?, updated_at = ? WHERE id = ?`, image, now(), id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// DecrementStock subtracts qty from the product's stock only if enough is left.
// It reports false, without writing, when stock < qty.
func (q *Queries) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	res, err := q.exec(ctx, `
		UPDATE products SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND stock >= ?`,
		qty, now(), id, qty,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock for product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteProduct refuses to remove products that existing order items point at,
// so historical orders keep a product to hydrate.
func (q *Queries) DeleteProduct(ctx context.Context, id int64) error {
	var refs int64
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE product_id = ?`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("product %d is referenced by %d order items: %w", id, refs, ErrInUse)
	}
	res, err := q.exec(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
