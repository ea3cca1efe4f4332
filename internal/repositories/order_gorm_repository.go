package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kedai/internal/models"

	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// GetByID retrieves an order and its items.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetByValidationCode retrieves an order by its pickup validation code.
func (r *GORMOrderRepository) GetByValidationCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, "validation_code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order with validation code %s: %w", code, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by validation code: %w", err)
	}
	return &order, nil
}

// ListBySession lists the orders placed from one storefront session, newest first.
func (r *GORMOrderRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for session: %w", err)
	}
	return orders, nil
}

// Create inserts the order and, through the association, its items.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("order with ID %s: %w", order.ID, ErrDuplicateOrder)
		}
		return fmt.Errorf("failed to create order %s: %w", order.ID, err)
	}
	return nil
}

// UpdateStatus sets the coarse and gateway statuses of an order.
func (r *GORMOrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, paymentStatus string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now(),
	}
	if paymentStatus != "" {
		updates["payment_status"] = paymentStatus
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update status for order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s not found for status update: %w", id, ErrOrderNotFound)
	}
	return nil
}

// SavePendingWebhook stores a notification for later replay.
func (r *GORMOrderRepository) SavePendingWebhook(ctx context.Context, webhook *models.PendingWebhook) error {
	if err := r.db.WithContext(ctx).Create(webhook).Error; err != nil {
		return fmt.Errorf("failed to store webhook for order %s: %w", webhook.OrderID, err)
	}
	return nil
}

// UnprocessedWebhooks returns unprocessed notifications in arrival order.
func (r *GORMOrderRepository) UnprocessedWebhooks(ctx context.Context, orderID string) ([]models.PendingWebhook, error) {
	var webhooks []models.PendingWebhook
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND processed = ?", orderID, false).
		Order("id ASC").
		Find(&webhooks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending webhooks for order %s: %w", orderID, err)
	}
	return webhooks, nil
}

// MarkWebhooksProcessed flags every unprocessed notification of an order as consumed.
func (r *GORMOrderRepository) MarkWebhooksProcessed(ctx context.Context, orderID string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.PendingWebhook{}).
		Where("order_id = ? AND processed = ?", orderID, false).
		Updates(map[string]any{"processed": true, "processed_at": now, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to mark webhooks processed for order %s: %w", orderID, err)
	}
	return nil
}

// WebhooksForOrder returns every stored notification of an order, newest first.
func (r *GORMOrderRepository) WebhooksForOrder(ctx context.Context, orderID string) ([]models.PendingWebhook, error) {
	var webhooks []models.PendingWebhook
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id DESC").Find(&webhooks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for order %s: %w", orderID, err)
	}
	return webhooks, nil
}

// Transaction runs fn inside a database transaction.
func (r *GORMOrderRepository) Transaction(ctx context.Context, fn func(repo OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGORMOrderRepository(tx))
	})
}
