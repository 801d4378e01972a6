package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStream       = "storefront:orders"
	defaultStreamMaxLen = 10000
	publishTimeout      = 2 * time.Second
)

// RedisNotifier appends order events to a Redis stream for downstream
// consumers (fulfilment, mailers).
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisNotifier(redisURL, stream string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if stream == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{client: client, stream: stream, maxLen: defaultStreamMaxLen}, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func (n *RedisNotifier) OrderCreated(ctx context.Context, o *models.Order) {
	n.publish(ctx, newEvent(EventOrderCreated, o, ""))
}

func (n *RedisNotifier) OrderStatusChanged(ctx context.Context, o *models.Order, prev models.OrderStatus) {
	n.publish(ctx, newEvent(EventOrderStatusChanged, o, prev))
}

func (n *RedisNotifier) publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal order event", "type", ev.Type, "error", err)
		return
	}

	// The request may already be finishing; the event should still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":    ev.Type,
			"orderId": ev.OrderID,
			"payload": string(data),
		},
	}).Err()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish order event", "type", ev.Type, "order_id", ev.OrderID, "error", err)
	}
}
