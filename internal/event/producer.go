package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/tentshop/storefront/pkg/kafka"
	"github.com/tentshop/storefront/pkg/logger"

	"github.com/tentshop/storefront/internal/domain"
)

// Kafka topic constants for order lifecycle events.
const (
	TopicOrderCreated  = "storefront.order.created"
	TopicOrderPaid     = "storefront.order.paid"
	TopicOrderCanceled = "storefront.order.canceled"
	TopicOrderFailed   = "storefront.order.failed"
)

// AggregateTypeOrder is the aggregate every event here belongs to.
const AggregateTypeOrder = "order"

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// publishTimeout caps how long a request waits on the broker.
const publishTimeout = 3 * time.Second

// OrderData is the order snapshot carried by every lifecycle event. The
// guest access token is never included.
type OrderData struct {
	ID                string         `json:"id"`
	UserID            *string        `json:"user_id,omitempty"`
	CustomerEmail     string         `json:"customer_email"`
	SessionID         string         `json:"session_id"`
	Status            string         `json:"status"`
	AmountCents       int64          `json:"amount_cents"`
	Currency          string         `json:"currency"`
	ShippingCountry   string         `json:"shipping_country"`
	ShippingCostCents int64          `json:"shipping_cost_cents"`
	Items             []LineItemData `json:"items"`
}

// LineItemData is the event payload for a line item.
type LineItemData struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

func orderData(o *domain.Order) OrderData {
	items := make([]LineItemData, len(o.Items))
	for i, li := range o.Items {
		items[i] = LineItemData{
			ProductID:      li.ProductID,
			ProductName:    li.ProductName,
			Quantity:       li.Quantity,
			UnitPriceCents: li.UnitPriceCents,
			TotalCents:     li.TotalCents,
		}
	}
	return OrderData{
		ID:                o.ID,
		UserID:            o.UserID,
		CustomerEmail:     o.CustomerEmail,
		SessionID:         o.SessionID,
		Status:            o.Status,
		AmountCents:       o.AmountCents,
		Currency:          o.Currency,
		ShippingCountry:   o.ShippingCountry,
		ShippingCostCents: o.ShippingCostCents,
		Items:             items,
	}
}

// topicForStatus returns the topic announcing that an order reached status.
func topicForStatus(status string) (string, bool) {
	switch status {
	case domain.OrderStatusPaid:
		return TopicOrderPaid, true
	case domain.OrderStatusCanceled:
		return TopicOrderCanceled, true
	case domain.OrderStatusFailed:
		return TopicOrderFailed, true
	}
	return "", false
}

// Producer publishes order lifecycle events to Kafka. The notification
// channel consumes them to send confirmation mail.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOrderCreated publishes the snapshot of a freshly reserved order.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, TopicOrderCreated, order)
}

// PublishOrderStatusChanged publishes the order under the topic matching
// its new terminal status.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, order *domain.Order) error {
	topic, ok := topicForStatus(order.Status)
	if !ok {
		return fmt.Errorf("no event topic for order status %q", order.Status)
	}
	return p.publish(ctx, topic, order)
}

func (p *Producer) publish(ctx context.Context, topic string, order *domain.Order) error {
	event, err := pkgkafka.NewEvent(topic, order.ID, AggregateTypeOrder, SourceStorefront, orderData(order))
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published order event",
		slog.String("topic", topic),
		slog.String("order_id", order.ID),
		slog.String("status", order.Status),
	)

	return nil
}
