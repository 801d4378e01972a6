// Package notify tells the outside world about order lifecycle events. Every
// notifier is best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/alextreichler/storefront/internal/models"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type Event struct {
	Type           string             `json:"type"`
	OrderID        int64              `json:"orderId"`
	UserID         int64              `json:"userId"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previousStatus,omitempty"`
	TotalAmount    string             `json:"totalAmount"`
	At             time.Time          `json:"at"`
}

func newEvent(typ string, o *models.Order, prev models.OrderStatus) Event {
	return Event{
		Type:           typ,
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: prev,
		TotalAmount:    o.TotalAmount.StringFixed(2),
		At:             o.UpdatedAt,
	}
}

type Nop struct{}

func (Nop) OrderCreated(context.Context, *models.Order)                           {}
func (Nop) OrderStatusChanged(context.Context, *models.Order, models.OrderStatus) {}

// LogNotifier renders the customer e-mail and writes it to the log instead of
// sending it.
type LogNotifier struct {
	Templates *TemplateCache
	Logger    *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) (*LogNotifier, error) {
	tc, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Templates: tc, Logger: logger}, nil
}

type messageData struct {
	User     *models.User
	Order    *models.Order
	Previous models.OrderStatus
}

func recipient(o *models.Order) *models.User {
	if o.User != nil {
		return o.User
	}
	return &models.User{ID: o.UserID, FirstName: "there"}
}

func (n *LogNotifier) OrderCreated(ctx context.Context, o *models.Order) {
	n.send(ctx, "order_created.txt", "Order confirmation", messageData{User: recipient(o), Order: o})
}

func (n *LogNotifier) OrderStatusChanged(ctx context.Context, o *models.Order, prev models.OrderStatus) {
	n.send(ctx, "status_changed.txt", "Order update", messageData{User: recipient(o), Order: o, Previous: prev})
}

func (n *LogNotifier) send(ctx context.Context, tmpl, subject string, data messageData) {
	body, err := n.Templates.Render(tmpl, data)
	if err != nil {
		n.Logger.ErrorContext(ctx, "Failed to render notification", "template", tmpl, "order_id", data.Order.ID, "error", err)
		return
	}
	n.Logger.InfoContext(ctx, "Email sent",
		"to", data.User.Email,
		"subject", subject,
		"order_id", data.Order.ID,
		"body", body,
	)
}

// Multi fans every event out to each notifier in order.
type Multi []interface {
	OrderCreated(context.Context, *models.Order)
	OrderStatusChanged(context.Context, *models.Order, models.OrderStatus)
}

func (m Multi) OrderCreated(ctx context.Context, o *models.Order) {
	for _, n := range m {
		n.OrderCreated(ctx, o)
	}
}

func (m Multi) OrderStatusChanged(ctx context.Context, o *models.Order, prev models.OrderStatus) {
	for _, n := range m {
		n.OrderStatusChanged(ctx, o, prev)
	}
}
