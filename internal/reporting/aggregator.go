// Package reporting builds the admin dashboard figures.
package reporting

import (
	"context"
	"fmt"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/store"
	"golang.org/x/sync/errgroup"
)

const DefaultTopProducts = 5

type Aggregator struct {
	store       *store.Store
	topProducts int
}

func NewAggregator(s *store.Store) *Aggregator {
	return &Aggregator{store: s, topProducts: DefaultTopProducts}
}

// DashboardStats counts products, users and orders (overall and per status)
// and sums revenue. Revenue covers orders in every status, PENDING included.
func (a *Aggregator) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}
	g, ctx := errgroup.WithContext(ctx)

	count := func(dst *int64, name string, fn func(context.Context) (int64, error)) {
		g.Go(func() error {
			n, err := fn(ctx)
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			*dst = n
			return nil
		})
	}
	byStatus := func(status models.OrderStatus) func(context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) { return a.store.CountOrders(ctx, status) }
	}

	count(&stats.TotalProducts, "products", a.store.CountProducts)
	count(&stats.TotalUsers, "users", a.store.CountUsers)
	count(&stats.TotalOrders, "orders", byStatus(""))
	count(&stats.PendingOrders, "pending orders", byStatus(models.StatusPending))
	count(&stats.ProcessingOrders, "processing orders", byStatus(models.StatusProcessing))
	count(&stats.ShippedOrders, "shipped orders", byStatus(models.StatusShipped))
	count(&stats.DeliveredOrders, "delivered orders", byStatus(models.StatusDelivered))

	g.Go(func() error {
		sum, err := a.store.SumRevenue(ctx, "")
		if err != nil {
			return fmt.Errorf("sum revenue: %w", err)
		}
		stats.TotalRevenue = sum
		return nil
	})
	g.Go(func() error {
		by, err := a.store.RevenueByStatus(ctx)
		if err != nil {
			return fmt.Errorf("revenue by status: %w", err)
		}
		stats.RevenueByStatus = by
		return nil
	})
	g.Go(func() error {
		top, err := a.store.TopProducts(ctx, a.topProducts)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		stats.TopProducts = top
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
