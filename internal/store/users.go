package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alextreichler/storefront/internal/models"
)

const userColumns = `id, email, password, first_name, last_name, role, address, city, state, zip_code, country, phone_number, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FirstName, &u.LastName, &u.Role,
		&u.Address, &u.City, &u.State, &u.ZipCode, &u.Country, &u.PhoneNumber, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user; the email is stored lower-cased.
func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	ts := now()
	err := q.queryRow(ctx, `
		INSERT INTO users (email, password, first_name, last_name, role, address, city, state, zip_code, country, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		u.Email, u.Password, u.FirstName, u.LastName, string(u.Role),
		u.Address, u.City, u.State, u.ZipCode, u.Country, u.PhoneNumber, ts,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = ts
	return nil
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetUserByEmail matches case-insensitively.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// ListUsers returns all users, or only those holding role when it is non-empty.
func (q *Queries) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY id`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (q *Queries) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error) {
	out := make(map[int64]*models.User, len(ids))
	for _, batch := range batches(ids) {
		if err := q.getUsersByIDs(ctx, batch, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *Queries) getUsersByIDs(ctx context.Context, ids []int64, out map[int64]*models.User) error {
	ph, args := inList(ids)
	rows, err := q.query(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return err
		}
		out[u.ID] = u
	}
	return rows.Err()
}

// UpdateUser writes the profile fields and role. The password hash is untouched.
func (q *Queries) UpdateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := q.exec(ctx, `
		UPDATE users
		SET email = ?, first_name = ?, last_name = ?, role = ?, address = ?, city = ?, state = ?, zip_code = ?, country = ?, phone_number = ?
		WHERE id = ?`,
		u.Email, u.FirstName, u.LastName, string(u.Role), u.Address, u.City, u.State, u.ZipCode, u.Country, u.PhoneNumber, u.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return requireOneRow(res)
}

func (q *Queries) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	res, err := q.exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// DeleteUser refuses to remove users that still own orders.
func (q *Queries) DeleteUser(ctx context.Context, id int64) error {
	var owned int64
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = ?`, id).Scan(&owned); err != nil {
		return err
	}
	if owned > 0 {
		return fmt.Errorf("user %d owns %d orders: %w", id, owned, ErrInUse)
	}
	res, err := q.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
