package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"kedai/internal/models"
	"kedai/internal/payment"
	"kedai/internal/repositories"

	"github.com/google/uuid"
)

// WebhookResult describes what a payment notification did.
type WebhookResult struct {
	OrderID string             `json:"orderId"`
	Stored  bool               `json:"stored"` // kept for replay, the order does not exist yet
	Status  models.OrderStatus `json:"status,omitempty"`
	Changed bool               `json:"changed"`
}

// PaymentStatusResult is the gateway's view of a payment next to the stored order.
type PaymentStatusResult struct {
	OrderID       string                     `json:"orderId"`
	GatewayStatus *payment.TransactionStatus `json:"gatewayStatus"`
	OrderExists   bool                       `json:"orderExists"`
	OrderStatus   models.OrderStatus         `json:"orderStatus,omitempty"`
}

// PaymentDebug is an order together with every notification stored for it.
type PaymentDebug struct {
	OrderID  string                  `json:"orderId"`
	Order    *models.Order           `json:"order"`
	Webhooks []models.PendingWebhook `json:"webhooks"`
}

// ApplyWebhook verifies and applies an asynchronous payment notification. When the
// order does not exist yet the notification is stored for replay by CreateOrder.
func (s *OrderService) ApplyWebhook(ctx context.Context, n payment.Notification, signature string) (*WebhookResult, error) {
	if err := s.validate.Struct(n); err != nil {
		return nil, validationError(err)
	}
	if err := s.verifier.Verify(n, signature); err != nil {
		log.Printf("Rejected payment notification for order %s: %v", n.OrderID, err)
		return nil, &AuthenticityError{OrderID: n.OrderID, Err: err}
	}

	status := n.Status()
	result := &WebhookResult{OrderID: n.OrderID}
	var previous models.OrderStatus
	var updated *models.Order

	err := s.orderRepo.Transaction(ctx, func(repo repositories.OrderRepository) error {
		result.Stored, result.Changed = false, false
		order, err := repo.GetByID(ctx, n.OrderID)
		if errors.Is(err, repositories.ErrOrderNotFound) {
			result.Stored = true
			return repo.SavePendingWebhook(ctx, pendingWebhook(status))
		}
		if err != nil {
			return err
		}
		previous = order.Status
		if updated, err = applyStatus(ctx, repo, order, status); err != nil {
			return err
		}
		result.Status = updated.Status
		result.Changed = updated.Status != previous
		return nil
	})
	if err != nil {
		log.Printf("Error applying payment notification for order %s: %v", n.OrderID, err)
		// keep the notification so it is not lost while the gateway backs off
		if saveErr := s.orderRepo.SavePendingWebhook(ctx, pendingWebhook(status)); saveErr != nil {
			log.Printf("Error storing payment notification for order %s: %v", n.OrderID, saveErr)
		} else {
			s.requestReconcile(ctx, n.OrderID, "notification could not be applied")
		}
		return nil, &StoreError{Op: "apply notification", OrderID: n.OrderID, Err: err}
	}

	if result.Stored {
		log.Printf("Payment notification for unknown order %s stored for replay (%s)", n.OrderID, status.TransactionStatus)
		return result, nil
	}
	log.Printf("Payment notification for order %s: %s/%s -> %s", n.OrderID, status.TransactionStatus, status.FraudStatus, updated.Status)
	s.afterStatusUpdate(ctx, updated, previous)
	return result, nil
}

// ApplyGatewayStatus applies a queried gateway status to an existing order. It
// returns NotFoundError when the order has not been created.
func (s *OrderService) ApplyGatewayStatus(ctx context.Context, status payment.TransactionStatus) (*models.Order, error) {
	var previous models.OrderStatus
	var updated *models.Order
	err := s.orderRepo.Transaction(ctx, func(repo repositories.OrderRepository) error {
		order, err := repo.GetByID(ctx, status.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status
		updated, err = applyStatus(ctx, repo, order, status)
		return err
	})
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: status.OrderID}
	}
	if err != nil {
		log.Printf("Error applying gateway status for order %s: %v", status.OrderID, err)
		return nil, &StoreError{Op: "apply gateway status", OrderID: status.OrderID, Err: err}
	}
	s.afterStatusUpdate(ctx, updated, previous)
	return updated, nil
}

// applyStatus maps the gateway status onto the order and persists it. The raw
// transaction status is always recorded, even when the order status stays put.
// Notifications stored for the order after a failed write are superseded by this
// status and marked processed.
func applyStatus(ctx context.Context, repo repositories.OrderRepository, order *models.Order, status payment.TransactionStatus) (*models.Order, error) {
	next := nextStatus(order.Status, MapGatewayStatus(status.TransactionStatus, status.FraudStatus))
	if err := repo.UpdateStatus(ctx, order.ID, next, status.TransactionStatus); err != nil {
		return nil, err
	}
	if err := repo.MarkWebhooksProcessed(ctx, order.ID); err != nil {
		return nil, err
	}
	order.Status = next
	if status.TransactionStatus != "" {
		order.PaymentStatus = status.TransactionStatus
	}
	order.UpdatedAt = time.Now()
	return order, nil
}

func (s *OrderService) afterStatusUpdate(ctx context.Context, order *models.Order, previous models.OrderStatus) {
	s.cacheStatus(ctx, order)
	if order.Status != previous {
		s.publishOrderEvent(ctx, EventOrderStatusChanged, order, previous)
	}
}

func pendingWebhook(status payment.TransactionStatus) *models.PendingWebhook {
	return &models.PendingWebhook{
		OrderID:           status.OrderID,
		TransactionStatus: status.TransactionStatus,
		FraudStatus:       status.FraudStatus,
		PaymentType:       status.PaymentType,
		StatusCode:        status.StatusCode,
		GrossAmount:       status.GrossAmount,
		RawPayload:        string(status.RawPayload),
	}
}

// PaymentStatus proxies the gateway status for an order and reports whether the
// order exists. A terminal gateway status is applied to an existing order.
func (s *OrderService) PaymentStatus(ctx context.Context, orderID string) (*PaymentStatusResult, error) {
	if !ValidOrderID(orderID) {
		return nil, &ValidationError{Message: "orderId is required", Fields: map[string]string{"orderId": orderID}}
	}
	result := &PaymentStatusResult{OrderID: orderID}

	gatewayStatus, err := s.gateway.QueryStatus(ctx, orderID)
	switch {
	case payment.IsNotFound(err):
		// the buyer has not finished the payment page yet
	case err != nil:
		log.Printf("Error querying payment status for order %s: %v", orderID, err)
		return nil, err
	default:
		result.GatewayStatus = gatewayStatus
	}

	cached, ok, err := s.cache.Get(ctx, orderID)
	if err != nil {
		log.Printf("Warning: status cache read for order %s failed: %v", orderID, err)
	}
	if ok {
		result.OrderExists = true
		result.OrderStatus = cached.Status
	} else {
		order, err := s.orderRepo.GetByID(ctx, orderID)
		switch {
		case errors.Is(err, repositories.ErrOrderNotFound):
		case err != nil:
			log.Printf("Error loading order %s: %v", orderID, err)
			return nil, &StoreError{Op: "get order", OrderID: orderID, Err: err}
		default:
			result.OrderExists = true
			result.OrderStatus = order.Status
		}
	}

	if result.OrderExists && gatewayStatus != nil && gatewayStatus.IsTerminal() {
		if gatewayStatus.OrderID == "" {
			gatewayStatus.OrderID = orderID
		}
		order, err := s.ApplyGatewayStatus(ctx, *gatewayStatus)
		if err != nil {
			log.Printf("Warning: could not reconcile order %s with gateway status %s: %v", orderID, gatewayStatus.TransactionStatus, err)
		} else {
			result.OrderStatus = order.Status
		}
	}
	return result, nil
}

// PaymentDebug returns an order and all notifications stored for it.
func (s *OrderService) PaymentDebug(ctx context.Context, orderID string) (*PaymentDebug, error) {
	webhooks, err := s.orderRepo.WebhooksForOrder(ctx, orderID)
	if err != nil {
		log.Printf("Error loading notifications for order %s: %v", orderID, err)
		return nil, &StoreError{Op: "list notifications", OrderID: orderID, Err: err}
	}
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil && !errors.Is(err, repositories.ErrOrderNotFound) {
		log.Printf("Error loading order %s: %v", orderID, err)
		return nil, &StoreError{Op: "get order", OrderID: orderID, Err: err}
	}
	if order == nil && len(webhooks) == 0 {
		return nil, &NotFoundError{OrderID: orderID}
	}
	if webhooks == nil {
		webhooks = []models.PendingWebhook{}
	}
	return &PaymentDebug{OrderID: orderID, Order: order, Webhooks: webhooks}, nil
}

func (s *OrderService) cacheStatus(ctx context.Context, order *models.Order) {
	err := s.cache.Set(ctx, order.ID, repositories.CachedStatus{
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		UpdatedAt:     order.UpdatedAt,
	})
	if err != nil {
		log.Printf("Warning: failed to cache status for order %s: %v", order.ID, err)
	}
}

func (s *OrderService) publishOrderEvent(ctx context.Context, eventType string, order *models.Order, previous models.OrderStatus) {
	payload := OrderEventPayload{
		OrderID:        order.ID,
		OutletID:       order.OutletID,
		Status:         order.Status,
		PreviousStatus: previous,
		PaymentStatus:  order.PaymentStatus,
		TotalAmount:    order.TotalAmount,
	}
	if !order.PickupTime.IsZero() {
		pickup := order.PickupTime
		payload.PickupTime = &pickup
	}
	s.publish(ctx, TopicOrderEvents, eventType, order.ID, payload)
}

func (s *OrderService) requestReconcile(ctx context.Context, orderID, reason string) {
	s.publish(ctx, TopicOrderReconcile, EventReconcileRequested, orderID, ReconcilePayload{OrderID: orderID, Reason: reason})
}

func (s *OrderService) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.publisher == nil {
		return
	}
	body, err := NewEnvelope(eventType, orderID, payload)
	if err != nil {
		log.Printf("Failed to marshal %s event for order %s: %v", eventType, orderID, err)
		return
	}
	if err := s.publisher.Publish(ctx, topic, orderID, body); err != nil {
		log.Printf("Warning: Failed to publish %s event for order %s: %v", eventType, orderID, err)
	}
}

// NewEnvelope wraps payload in an Envelope and encodes it.
func NewEnvelope(eventType, correlationID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "kedai",
		CorrelationID: correlationID,
		Payload:       raw,
	})
}
