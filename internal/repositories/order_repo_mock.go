package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kedai/internal/models"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
// Transactions are serialized and rolled back by restoring a snapshot.
type MockOrderRepository struct {
	orders        map[string]models.Order
	webhooks      []models.PendingWebhook
	nextItemID    uint
	nextWebhookID uint
	mu            sync.RWMutex
	txMu          sync.Mutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	return cloneOrder(order), nil
}

// GetByValidationCode returns the order holding a validation code.
func (r *MockOrderRepository) GetByValidationCode(_ context.Context, code string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.ValidationCode != "" && order.ValidationCode == code {
			return cloneOrder(order), nil
		}
	}
	return nil, fmt.Errorf("order with validation code %s: %w", code, ErrOrderNotFound)
}

// ListBySession returns the orders of a session, newest first.
func (r *MockOrderRepository) ListBySession(_ context.Context, sessionID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0)
	for _, order := range r.orders {
		if order.UserSessionID == sessionID {
			orderList = append(orderList, *cloneOrder(order))
		}
	}
	sort.Slice(orderList, func(i, j int) bool {
		return orderList[i].CreatedAt.After(orderList[j].CreatedAt)
	})
	return orderList, nil
}

// Create adds a new order with its items.
func (r *MockOrderRepository) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order with ID %s: %w", order.ID, ErrDuplicateOrder)
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	for i := range order.Items {
		r.nextItemID++
		order.Items[i].ID = r.nextItemID
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
	}
	r.orders[order.ID] = *cloneOrder(*order)
	return nil
}

// UpdateStatus updates the status of an order.
func (r *MockOrderRepository) UpdateStatus(_ context.Context, id string, status models.OrderStatus, paymentStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s not found for status update: %w", id, ErrOrderNotFound)
	}
	order.Status = status
	if paymentStatus != "" {
		order.PaymentStatus = paymentStatus
	}
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

// SavePendingWebhook appends a notification.
func (r *MockOrderRepository) SavePendingWebhook(_ context.Context, webhook *models.PendingWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextWebhookID++
	now := time.Now()
	webhook.ID = r.nextWebhookID
	webhook.CreatedAt = now
	webhook.UpdatedAt = now
	r.webhooks = append(r.webhooks, *webhook)
	return nil
}

// UnprocessedWebhooks returns unprocessed notifications in arrival order.
func (r *MockOrderRepository) UnprocessedWebhooks(_ context.Context, orderID string) ([]models.PendingWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PendingWebhook
	for _, wh := range r.webhooks {
		if wh.OrderID == orderID && !wh.Processed {
			out = append(out, wh)
		}
	}
	return out, nil
}

// MarkWebhooksProcessed flags the order's unprocessed notifications as consumed.
func (r *MockOrderRepository) MarkWebhooksProcessed(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for i := range r.webhooks {
		if r.webhooks[i].OrderID == orderID && !r.webhooks[i].Processed {
			r.webhooks[i].Processed = true
			r.webhooks[i].ProcessedAt = &now
			r.webhooks[i].UpdatedAt = now
		}
	}
	return nil
}

// WebhooksForOrder returns all notifications for an order, newest first.
func (r *MockOrderRepository) WebhooksForOrder(_ context.Context, orderID string) ([]models.PendingWebhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PendingWebhook
	for i := len(r.webhooks) - 1; i >= 0; i-- {
		if r.webhooks[i].OrderID == orderID {
			out = append(out, r.webhooks[i])
		}
	}
	return out, nil
}

// Transaction runs fn and restores the previous state if it fails.
func (r *MockOrderRepository) Transaction(_ context.Context, fn func(repo OrderRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	orders := make(map[string]models.Order, len(r.orders))
	for id, order := range r.orders {
		orders[id] = *cloneOrder(order)
	}
	webhooks := append([]models.PendingWebhook(nil), r.webhooks...)
	nextItemID, nextWebhookID := r.nextItemID, r.nextWebhookID
	r.mu.RUnlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.orders = orders
		r.webhooks = webhooks
		r.nextItemID, r.nextWebhookID = nextItemID, nextWebhookID
		r.mu.Unlock()
		return err
	}
	return nil
}

func cloneOrder(order models.Order) *models.Order {
	c := order
	c.Items = make([]models.OrderItem, len(order.Items))
	for i, item := range order.Items {
		c.Items[i] = item
		c.Items[i].AddOns = append([]models.AddOn(nil), item.AddOns...)
	}
	return &c
}
