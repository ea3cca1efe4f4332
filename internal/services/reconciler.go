package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"kedai/internal/models"
	"kedai/internal/repositories"
)

const reconcileConsumer = "order-reconciler"

// AwaitResult is what the buyer's status page sees after waiting for payment.
type AwaitResult struct {
	OrderID string             `json:"orderId"`
	Outcome PollOutcome        `json:"outcome"`
	Exists  bool               `json:"exists"`
	Status  models.OrderStatus `json:"status,omitempty"`
}

// Reconciler drives orders to the state the gateway reports, either for a waiting
// buyer or from queued reconcile requests.
type Reconciler struct {
	poller *StatusPoller
	orders *OrderService
	cache  repositories.StatusCache
}

// NewReconciler creates a Reconciler. cache may be nil.
func NewReconciler(poller *StatusPoller, orders *OrderService, cache repositories.StatusCache) *Reconciler {
	if cache == nil {
		cache = repositories.NoopStatusCache{}
	}
	return &Reconciler{poller: poller, orders: orders, cache: cache}
}

// AwaitPayment polls until the payment settles, then ensures the order exists
// (creating it from details when given). A failed payment is applied to an existing
// order; an indeterminate one reports the order as it currently stands.
func (r *Reconciler) AwaitPayment(ctx context.Context, orderID string, details *OrderDetails) (*AwaitResult, error) {
	if !ValidOrderID(orderID) {
		return nil, &ValidationError{Message: "invalid order id", Fields: map[string]string{"orderId": orderID}}
	}
	poll, err := r.poller.Await(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result := &AwaitResult{OrderID: orderID, Outcome: poll.Outcome}

	switch poll.Outcome {
	case PollPaid:
		ensured, err := r.orders.EnsureOrder(ctx, orderID, details)
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		if poll.Status != nil && ensured.Status == models.StatusPending {
			if order, err := r.orders.ApplyGatewayStatus(ctx, *poll.Status); err == nil {
				ensured.Status = order.Status
			}
		}
		result.Exists, result.Status = true, ensured.Status
	default:
		if poll.Outcome == PollFailed && poll.Status != nil {
			order, err := r.orders.ApplyGatewayStatus(ctx, *poll.Status)
			var notFound *NotFoundError
			switch {
			case errors.As(err, &notFound):
				return result, nil
			case err != nil:
				return nil, err
			}
			result.Exists, result.Status = true, order.Status
			return result, nil
		}
		ensured, err := r.orders.EnsureOrder(ctx, orderID, nil)
		var notFound *NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
		result.Exists, result.Status = ensured.Exists, ensured.Status
	}
	return result, nil
}

// HandleReconcileRequest consumes one ReconcileRequested event. Events are
// deduplicated by ID and only marked once handled, so a failed attempt is redelivered.
func (r *Reconciler) HandleReconcileRequest(ctx context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: envelope: %v", ErrMalformedEvent, err)
	}
	var req ReconcilePayload
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEvent, err)
	}
	if req.OrderID == "" {
		return fmt.Errorf("%w: event %s has no order id", ErrMalformedEvent, env.EventID)
	}

	if env.EventID != "" {
		seen, err := r.cache.Seen(ctx, reconcileConsumer, env.EventID)
		if err != nil {
			log.Printf("Warning: dedup lookup for event %s failed: %v", env.EventID, err)
		}
		if seen {
			log.Printf("Skipping duplicate reconcile event %s for order %s", env.EventID, req.OrderID)
			return nil
		}
	}

	poll, err := r.poller.Await(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if poll.Status != nil {
		_, err := r.orders.ApplyGatewayStatus(ctx, *poll.Status)
		var notFound *NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return err
		}
	}
	log.Printf("Reconciled order %s (%s): %s after %d attempt(s)", req.OrderID, req.Reason, poll.Outcome, poll.Attempts)

	if env.EventID != "" {
		if err := r.cache.MarkSeen(ctx, reconcileConsumer, env.EventID); err != nil {
			log.Printf("Warning: failed to mark event %s handled: %v", env.EventID, err)
		}
	}
	return nil
}
