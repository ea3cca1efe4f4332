package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kedai/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// order_status:{order_id} -> {"status": "...", "payment_status": "...", "updated_at": "..."}
	keyOrderStatus = "order_status:%s"
	// dedup:{consumer}:{event_id}
	keyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// CachedStatus is the cached view of an order's status.
type CachedStatus struct {
	Status        models.OrderStatus `json:"status"`
	PaymentStatus string             `json:"payment_status,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// StatusCache keeps recent order statuses for the polling endpoints and
// remembers which reconcile events were already handled.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (*CachedStatus, bool, error)
	Set(ctx context.Context, orderID string, status CachedStatus) error
	Seen(ctx context.Context, consumer, eventID string) (bool, error)
	MarkSeen(ctx context.Context, consumer, eventID string) error
}

// RedisStatusCache is a Redis implementation of StatusCache.
type RedisStatusCache struct {
	rdb *redis.Client
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisStatusCache creates a new instance of RedisStatusCache.
func NewRedisStatusCache(rdb *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{rdb: rdb}
}

// Get returns the cached status, if any.
func (c *RedisStatusCache) Get(ctx context.Context, orderID string) (*CachedStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached status for order %s: %w", orderID, err)
	}
	var status CachedStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached status for order %s: %w", orderID, err)
	}
	return &status, true, nil
}

// Set stores the status with the cache TTL.
func (c *RedisStatusCache) Set(ctx context.Context, orderID string, status CachedStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status for order %s: %w", orderID, err)
	}
	if err := c.rdb.Set(ctx, fmt.Sprintf(keyOrderStatus, orderID), raw, TTLStatusCache).Err(); err != nil {
		return fmt.Errorf("failed to cache status for order %s: %w", orderID, err)
	}
	return nil
}

// Seen reports whether a consumer already handled an event.
func (c *RedisStatusCache) Seen(ctx context.Context, consumer, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf(keyDedup, consumer, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// MarkSeen records that a consumer handled an event.
func (c *RedisStatusCache) MarkSeen(ctx context.Context, consumer, eventID string) error {
	if err := c.rdb.Set(ctx, fmt.Sprintf(keyDedup, consumer, eventID), "1", TTLDedup).Err(); err != nil {
		return fmt.Errorf("failed to record event %s: %w", eventID, err)
	}
	return nil
}

// NoopStatusCache is used when Redis is not configured.
type NoopStatusCache struct{}

func (NoopStatusCache) Get(context.Context, string) (*CachedStatus, bool, error) {
	return nil, false, nil
}

func (NoopStatusCache) Set(context.Context, string, CachedStatus) error {
	return nil
}

func (NoopStatusCache) Seen(context.Context, string, string) (bool, error) {
	return false, nil
}

func (NoopStatusCache) MarkSeen(context.Context, string, string) error {
	return nil
}
