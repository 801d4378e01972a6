package store

import (
	"context"
	"fmt"

	"github.com/alextreichler/storefront/internal/models"
)

// Hydrate attaches items, their current products and the owning user to each
// order. It issues one query per relation; every result set is fully read and
// closed before the next query runs, which the single-connection SQLite pool
// depends on.
func (q *Queries) Hydrate(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	orderIDs := make([]int64, 0, len(orders))
	userIDs := make([]int64, 0, len(orders))
	seenUser := make(map[int64]bool)
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
		if !seenUser[o.UserID] {
			seenUser[o.UserID] = true
			userIDs = append(userIDs, o.UserID)
		}
	}

	items, err := q.ListOrderItems(ctx, orderIDs)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	var productIDs []int64
	seenProduct := make(map[int64]bool)
	for _, list := range items {
		for _, it := range list {
			if !seenProduct[it.ProductID] {
				seenProduct[it.ProductID] = true
				productIDs = append(productIDs, it.ProductID)
			}
		}
	}

	products, err := q.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	users, err := q.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	for i := range orders {
		o := &orders[i]
		o.User = users[o.UserID]
		o.Items = items[o.ID]
		if o.Items == nil {
			o.Items = []models.OrderItem{}
		}
		for j := range o.Items {
			o.Items[j].Product = products[o.Items[j].ProductID]
		}
	}
	return nil
}

// GetOrder loads and hydrates one order.
func (q *Queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := q.GetOrderRow(ctx, id)
	if err != nil {
		return nil, err
	}
	list := []models.Order{*o}
	if err := q.Hydrate(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// FindOrders lists and hydrates orders matching f.
func (q *Queries) FindOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	orders, err := q.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := q.Hydrate(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}
