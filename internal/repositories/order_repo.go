package repositories

import (
	"context"
	"errors"

	"kedai/internal/models"
)

var (
	// ErrOrderNotFound is returned when no order has the requested identifier.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder is returned when an order with the same identifier already exists.
	ErrDuplicateOrder = errors.New("order already exists")
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByValidationCode(ctx context.Context, code string) (*models.Order, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Order, error)
	// Create inserts the order together with its items.
	Create(ctx context.Context, order *models.Order) error
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, paymentStatus string) error

	SavePendingWebhook(ctx context.Context, webhook *models.PendingWebhook) error
	// UnprocessedWebhooks returns the order's unprocessed notifications in arrival order.
	UnprocessedWebhooks(ctx context.Context, orderID string) ([]models.PendingWebhook, error)
	MarkWebhooksProcessed(ctx context.Context, orderID string) error
	// WebhooksForOrder returns every stored notification for an order, newest first.
	WebhooksForOrder(ctx context.Context, orderID string) ([]models.PendingWebhook, error)

	// Transaction runs fn against a repository bound to a single unit of work.
	// Nothing fn wrote is kept if it returns an error.
	Transaction(ctx context.Context, fn func(repo OrderRepository) error) error
}
