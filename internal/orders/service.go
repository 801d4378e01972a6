// Package orders is the order workflow engine: it prices, reserves stock for
// and persists new orders, and moves orders through their status lifecycle.
// Callers are trusted; authorization happens in the HTTP layer.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/store"
	"github.com/shopspring/decimal"
)

const DefaultRecentLimit = 10

// Notifier is told about committed order changes. Implementations must not block for long
// and cannot fail the operation that triggered them.
type Notifier interface {
	OrderCreated(ctx context.Context, o *models.Order)
	OrderStatusChanged(ctx context.Context, o *models.Order, previous models.OrderStatus)
}

type nopNotifier struct{}

func (nopNotifier) OrderCreated(context.Context, *models.Order)                           {}
func (nopNotifier) OrderStatusChanged(context.Context, *models.Order, models.OrderStatus) {}

type Line struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	Items           []Line `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string `json:"shippingAddress" validate:"required"`
}

func (r CreateOrderRequest) check() error {
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	for i, l := range r.Items {
		if l.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be greater than 0"}
		}
	}
	if strings.TrimSpace(r.ShippingAddress) == "" {
		return &ValidationError{Field: "shippingAddress", Message: "is required"}
	}
	return nil
}

type Service struct {
	store       *store.Store
	notifier    Notifier
	recentLimit int
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRecentLimit sets how many orders GetRecentOrders returns.
func WithRecentLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		notifier:    nopNotifier{},
		recentLimit: DefaultRecentLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder places an order for userID. Every line is priced at the product's
// current price and its stock reserved; if any line fails nothing is written.
func (s *Service) CreateOrder(ctx context.Context, userID int64, req CreateOrderRequest) (*models.Order, error) {
	if err := req.check(); err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          userID,
		Status:          models.StatusPending,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
	}

	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		order.Items = make([]models.OrderItem, 0, len(req.Items))
		total := decimal.Zero

		if _, err := q.GetUserByID(ctx, userID); err != nil {
			return notFound("user", userID, err)
		}

		for _, line := range req.Items {
			p, err := q.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return notFound("product", line.ProductID, err)
			}
			short := &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   line.Quantity,
				Available:   p.Stock,
			}
			if p.Stock < line.Quantity {
				return short
			}
			ok, err := q.DecrementStock(ctx, p.ID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return short
			}

			order.Items = append(order.Items, models.OrderItem{
				ProductID: p.ID,
				Quantity:  line.Quantity,
				Price:     p.Price,
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		order.TotalAmount = total.Round(2)
		return q.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Order created", "order_id", order.ID, "user_id", userID, "items", len(order.Items), "total", order.TotalAmount.StringFixed(2))

	view, err := s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load created order %d: %w", order.ID, err)
	}
	s.notifier.OrderCreated(ctx, view)
	return view, nil
}

// UpdateOrderStatus sets any of the known statuses on an order; transitions are
// not restricted. Stock is never touched.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", status)}
	}

	var previous models.OrderStatus
	err := s.store.WithTx(ctx, func(q *store.Queries) error {
		o, err := q.GetOrderRow(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		previous = o.Status
		if _, err := q.UpdateOrderStatus(ctx, orderID, next); err != nil {
			return notFound("order", orderID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Order status updated", "order_id", orderID, "from", previous, "to", next)

	view, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	s.notifier.OrderStatusChanged(ctx, view, previous)
	return view, nil
}

func (s *Service) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound("order", id, err)
	}
	return o, nil
}

// GetOrdersByUserID returns an empty list for users without orders, including unknown users.
func (s *Service) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.FindOrders(ctx, store.OrderFilter{UserID: userID})
}

func (s *Service) GetOrdersByStatus(ctx context.Context, status string) ([]models.Order, error) {
	st, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", status)}
	}
	return s.store.FindOrders(ctx, store.OrderFilter{Status: st})
}

func (s *Service) GetAllOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.FindOrders(ctx, store.OrderFilter{})
}

// SearchOrders narrows the full list by user and/or status; zero values match everything.
func (s *Service) SearchOrders(ctx context.Context, userID int64, status string) ([]models.Order, error) {
	f := store.OrderFilter{UserID: userID}
	if status != "" {
		st, ok := models.ParseOrderStatus(status)
		if !ok {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", status)}
		}
		f.Status = st
	}
	return s.store.FindOrders(ctx, f)
}

// GetRecentOrders returns the newest orders by creation time.
func (s *Service) GetRecentOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.FindOrders(ctx, store.OrderFilter{Limit: s.recentLimit, NewestFirst: true})
}
