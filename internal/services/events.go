package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kedai/internal/models"
)

// Topics (queues on RabbitMQ) the order service publishes to.
const (
	TopicOrderEvents    = "order.events"
	TopicOrderReconcile = "order.reconcile"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventReconcileRequested = "ReconcileRequested"
)

// ErrMalformedEvent marks a consumed message that can never be handled and should
// not be redelivered.
var ErrMalformedEvent = errors.New("malformed event")

// EventPublisher delivers order events to a broker. key is the order ID so that
// brokers which partition keep one order's events in sequence.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, body []byte) error
}

// Envelope wraps every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderEventPayload is the payload of OrderCreated and OrderStatusChanged.
type OrderEventPayload struct {
	OrderID        string             `json:"order_id"`
	OutletID       string             `json:"outlet_id,omitempty"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	PaymentStatus  string             `json:"payment_status,omitempty"`
	TotalAmount    int64              `json:"total_amount,omitempty"`
	PickupTime     *time.Time         `json:"pickup_time,omitempty"`
}

// ReconcilePayload asks the reconciler to confirm an order against the gateway.
type ReconcilePayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}
