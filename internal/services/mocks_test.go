package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kedai/internal/models"
	"kedai/internal/payment"
	"kedai/internal/repositories"
	"kedai/internal/services"

	"github.com/stretchr/testify/mock"
)

const testServerKey = "SB-Mid-server-test"

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateTransaction(ctx context.Context, req payment.TransactionRequest) (*payment.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Transaction), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, orderID string) (*payment.TransactionStatus, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// copy so callers mutating the result do not leak into later calls
	status := *args.Get(0).(*payment.TransactionStatus)
	return &status, args.Error(1)
}

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, key string, body []byte) error {
	args := m.Called(ctx, topic, key, body)
	return args.Error(0)
}

// envelopes returns the decoded envelopes published to topic.
func (m *MockPublisher) envelopes(topic string) []services.Envelope {
	var out []services.Envelope
	for _, call := range m.Calls {
		if call.Method != "Publish" || call.Arguments.String(1) != topic {
			continue
		}
		var env services.Envelope
		if err := json.Unmarshal(call.Arguments.Get(3).([]byte), &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// MockStatusCache is a mock implementation of repositories.StatusCache
type MockStatusCache struct {
	mock.Mock
}

func (m *MockStatusCache) Get(ctx context.Context, orderID string) (*repositories.CachedStatus, bool, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*repositories.CachedStatus), args.Bool(1), args.Error(2)
}

func (m *MockStatusCache) Set(ctx context.Context, orderID string, status repositories.CachedStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *MockStatusCache) Seen(ctx context.Context, consumer, eventID string) (bool, error) {
	args := m.Called(ctx, consumer, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStatusCache) MarkSeen(ctx context.Context, consumer, eventID string) error {
	args := m.Called(ctx, consumer, eventID)
	return args.Error(0)
}

// flakyStatusRepo fails the next *failures status updates, inside transactions too.
type flakyStatusRepo struct {
	repositories.OrderRepository
	failures *int
}

func (r *flakyStatusRepo) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, paymentStatus string) error {
	if *r.failures > 0 {
		*r.failures--
		return errors.New("connection refused")
	}
	return r.OrderRepository.UpdateStatus(ctx, id, status, paymentStatus)
}

func (r *flakyStatusRepo) Transaction(ctx context.Context, fn func(repo repositories.OrderRepository) error) error {
	return r.OrderRepository.Transaction(ctx, func(tx repositories.OrderRepository) error {
		return fn(&flakyStatusRepo{OrderRepository: tx, failures: r.failures})
	})
}

func signedNotification(orderID, transactionStatus, fraudStatus, grossAmount string) (payment.Notification, string) {
	n := payment.Notification{
		OrderID:           orderID,
		TransactionStatus: transactionStatus,
		FraudStatus:       fraudStatus,
		StatusCode:        "200",
		GrossAmount:       json.Number(grossAmount),
		PaymentType:       "qris",
	}
	n.Raw, _ = json.Marshal(n)
	return n, payment.Signature(orderID, n.StatusCode, grossAmount, testServerKey)
}

func sampleDetails() services.OrderDetails {
	return services.OrderDetails{
		OutletID:      "outlet-1",
		OutletName:    "Kedai Pusat",
		TotalAmount:   25000,
		BuyerName:     "Sari",
		PhoneNumber:   "081234567890",
		Email:         "sari@example.com",
		PickupTime:    time.Now().Add(time.Hour),
		UserSessionID: "session_abc",
		Items: []services.OrderItemDetails{
			{
				MenuID:   "menu-1",
				Name:     "Tteokbokki",
				Price:    15000,
				Quantity: 1,
				AddOns:   map[string]any{"spicyLevel": "3", "freeSauce": "cheese"},
			},
			{MenuID: "menu-2", Name: "Iced Tea", Price: 5000, Quantity: 2},
		},
	}
}

func testPolicy() services.RetryPolicy {
	return services.RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}
