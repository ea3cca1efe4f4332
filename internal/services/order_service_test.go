package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kedai/internal/models"
	"kedai/internal/payment"
	"kedai/internal/repositories"
	"kedai/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo      *repositories.MockOrderRepository
	gateway   *MockGateway
	publisher *MockPublisher
	service   *services.OrderService
}

func newFixture(t *testing.T, policy services.CreationPolicy) *fixture {
	t.Helper()
	f := &fixture{
		repo:      repositories.NewMockOrderRepository(),
		gateway:   new(MockGateway),
		publisher: new(MockPublisher),
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	verifier := payment.NewSignatureVerifier(testServerKey, true)
	f.service = services.NewOrderService(f.repo, f.gateway, verifier, f.publisher, nil, policy)
	return f
}

func (f *fixture) seed(t *testing.T, id string, status models.OrderStatus, pickup time.Time) {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), &models.Order{
		ID:             id,
		OutletID:       "outlet-1",
		TotalAmount:    25000,
		Status:         status,
		PaymentStatus:  payment.TxPending,
		PickupTime:     pickup,
		ValidationCode: strings.ToUpper("CODE" + id),
		Items:          []models.OrderItem{{MenuID: "menu-1", Name: "Tteokbokki", Price: 25000, Quantity: 1}},
	}))
}

func TestCreateOrder_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	first, existed, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, models.StatusPaid, first.Status)
	assert.Equal(t, payment.TxSettlement, first.PaymentStatus)
	assert.Len(t, first.ValidationCode, 8)

	second, existed, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ValidationCode, second.ValidationCode)

	stored, err := f.repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.ElementsMatch(t, []models.AddOn{
		{Kind: models.AddOnSauce, Value: "cheese"},
		{Kind: models.AddOnSpiceLevel, Value: "3"},
	}, stored.Items[0].AddOns)
}

func TestCreateOrder_ConcurrentCallsCreateOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, existed, err := f.service.CreateOrder(ctx, "order-race", sampleDetails())
			assert.NoError(t, err)
			if !existed {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestCreateOrder_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	var validationErr *services.ValidationError

	details := sampleDetails()
	details.ID = "someone-else"
	_, _, err := f.service.CreateOrder(ctx, "order-1", details)
	assert.ErrorAs(t, err, &validationErr)

	details = sampleDetails()
	details.TotalAmount = 1000
	_, _, err = f.service.CreateOrder(ctx, "order-1", details)
	assert.ErrorAs(t, err, &validationErr)

	details = sampleDetails()
	details.Items = nil
	_, _, err = f.service.CreateOrder(ctx, "order-1", details)
	assert.ErrorAs(t, err, &validationErr)

	_, _, err = f.service.CreateOrder(ctx, "bad id with spaces", sampleDetails())
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.repo.GetByID(ctx, "order-1")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}

func TestOrderIDLength(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	longest := strings.Repeat("a", models.MaxOrderIDLength)
	tooLong := longest + "a"

	assert.True(t, services.ValidOrderID(longest))
	assert.False(t, services.ValidOrderID(tooLong))

	_, existed, err := f.service.CreateOrder(ctx, longest, sampleDetails())
	require.NoError(t, err)
	assert.False(t, existed)

	var validationErr *services.ValidationError
	_, _, err = f.service.CreateOrder(ctx, tooLong, sampleDetails())
	assert.ErrorAs(t, err, &validationErr)

	n, sig := signedNotification(tooLong, payment.TxSettlement, payment.FraudAccept, "25000.00")
	_, err = f.service.ApplyWebhook(ctx, n, sig)
	assert.ErrorAs(t, err, &validationErr)
	stored, err := f.repo.WebhooksForOrder(ctx, tooLong)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateOrder_PublishesEvents(t *testing.T) {
	f := newFixture(t, services.CreateAfterPayment)

	_, _, err := f.service.CreateOrder(context.Background(), "order-1", sampleDetails())
	require.NoError(t, err)

	created := f.publisher.envelopes(services.TopicOrderEvents)
	require.Len(t, created, 1)
	assert.Equal(t, services.EventOrderCreated, created[0].EventType)
	assert.Equal(t, "order-1", created[0].CorrelationID)

	// the client asserted the payment, so the gateway gets asked to confirm it
	reconcile := f.publisher.envelopes(services.TopicOrderReconcile)
	require.Len(t, reconcile, 1)
	assert.Equal(t, services.EventReconcileRequested, reconcile[0].EventType)
}

func TestWebhookBeforeOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	n, sig := signedNotification("order-1", payment.TxSettlement, payment.FraudAccept, "25000.00")
	result, err := f.service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)
	assert.True(t, result.Stored)

	pending, err := f.repo.UnprocessedWebhooks(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	order, existed, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, models.StatusPaid, order.Status)
	assert.Equal(t, payment.TxSettlement, order.PaymentStatus)

	pending, err = f.repo.UnprocessedWebhooks(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := f.repo.WebhooksForOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Processed)
	assert.NotNil(t, all[0].ProcessedAt)
}

func TestWebhookReplay_MostRecentWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	for _, status := range []string{payment.TxPending, payment.TxExpire} {
		n, sig := signedNotification("order-1", status, "", "25000.00")
		_, err := f.service.ApplyWebhook(ctx, n, sig)
		require.NoError(t, err)
	}

	order, _, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, order.Status)
	assert.Equal(t, payment.TxExpire, order.PaymentStatus)

	pending, err := f.repo.UnprocessedWebhooks(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOrderBeforeWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	_, _, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
	require.NoError(t, err)

	n, sig := signedNotification("order-1", payment.TxDeny, "", "25000.00")
	result, err := f.service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)
	assert.False(t, result.Stored)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusCanceled, result.Status)

	order, err := f.repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, order.Status)
	assert.Equal(t, payment.TxDeny, order.PaymentStatus)

	changed := f.publisher.envelopes(services.TopicOrderEvents)
	require.Len(t, changed, 2)
	assert.Equal(t, services.EventOrderStatusChanged, changed[1].EventType)
}

func TestApplyWebhook_StoreFailureKeepsNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "order-1", models.StatusPending, time.Now().Add(time.Hour))

	failures := 1
	repo := &flakyStatusRepo{OrderRepository: f.repo, failures: &failures}
	verifier := payment.NewSignatureVerifier(testServerKey, true)
	service := services.NewOrderService(repo, f.gateway, verifier, f.publisher, nil, services.CreateAfterPayment)

	n, sig := signedNotification("order-1", payment.TxSettlement, payment.FraudAccept, "25000.00")
	_, err := service.ApplyWebhook(ctx, n, sig)
	var storeErr *services.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "order-1", storeErr.OrderID)

	pending, err := f.repo.UnprocessedWebhooks(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, payment.TxSettlement, pending[0].TransactionStatus)

	order, err := f.repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)

	reconcile := f.publisher.envelopes(services.TopicOrderReconcile)
	require.Len(t, reconcile, 1)
	assert.Equal(t, services.EventReconcileRequested, reconcile[0].EventType)
	assert.Equal(t, "order-1", reconcile[0].CorrelationID)

	// the gateway's retry applies the status and consumes the stored copy
	result, err := service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, result.Status)
	assert.True(t, result.Changed)

	pending, err = f.repo.UnprocessedWebhooks(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyGatewayStatus_ConsumesStoredNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "order-1", models.StatusPending, time.Now().Add(time.Hour))
	require.NoError(t, f.repo.SavePendingWebhook(ctx, &models.PendingWebhook{OrderID: "order-1", TransactionStatus: payment.TxPending}))

	order, err := f.service.ApplyGatewayStatus(ctx, payment.TransactionStatus{OrderID: "order-1", TransactionStatus: payment.TxSettlement})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.Status)

	pending, err := f.repo.UnprocessedWebhooks(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyWebhook_TerminalOrderUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "order-1", models.StatusCompleted, time.Now())

	n, sig := signedNotification("order-1", payment.TxExpire, "", "25000.00")
	result, err := f.service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)
	assert.False(t, result.Changed)

	order, err := f.repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, order.Status)
	assert.Equal(t, payment.TxExpire, order.PaymentStatus)
}

func TestApplyWebhook_SignatureRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "order-2", models.StatusPending, time.Now().Add(time.Hour))

	var authErr *services.AuthenticityError

	// unknown order: nothing is stored for replay
	n, sig := signedNotification("order-1", payment.TxSettlement, payment.FraudAccept, "25000.00")
	n.GrossAmount = "1.00"
	_, err := f.service.ApplyWebhook(ctx, n, sig)
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	webhooks, err := f.repo.WebhooksForOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, webhooks)

	// existing order: status stays put
	n, sig = signedNotification("order-2", payment.TxSettlement, payment.FraudAccept, "25000.00")
	n.GrossAmount = "1.00"
	_, err = f.service.ApplyWebhook(ctx, n, sig)
	require.ErrorAs(t, err, &authErr)
	order, err := f.repo.GetByID(ctx, "order-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)

	// missing signature
	n, _ = signedNotification("order-2", payment.TxSettlement, payment.FraudAccept, "25000.00")
	_, err = f.service.ApplyWebhook(ctx, n, "")
	assert.ErrorIs(t, err, payment.ErrMissingSignature)

	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyWebhook_Validation(t *testing.T) {
	f := newFixture(t, services.CreateAfterPayment)

	_, err := f.service.ApplyWebhook(context.Background(), payment.Notification{TransactionStatus: payment.TxSettlement}, "")
	var validationErr *services.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestStatusMappingTable(t *testing.T) {
	cases := []struct {
		transactionStatus string
		fraudStatus       string
		want              models.OrderStatus
	}{
		{payment.TxSettlement, "", models.StatusPaid},
		{payment.TxCapture, payment.FraudAccept, models.StatusPaid},
		{payment.TxCapture, payment.FraudChallenge, models.StatusPending},
		{payment.TxPending, "", models.StatusPending},
		{payment.TxDeny, "", models.StatusCanceled},
		{payment.TxCancel, "", models.StatusCanceled},
		{payment.TxExpire, "", models.StatusCanceled},
	}

	for _, tc := range cases {
		name := tc.transactionStatus + "/" + tc.fraudStatus
		t.Run("map "+name, func(t *testing.T) {
			assert.Equal(t, tc.want, services.MapGatewayStatus(tc.transactionStatus, tc.fraudStatus))
		})

		t.Run("apply webhook "+name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, services.CreateAfterPayment)
			f.seed(t, "order-1", models.StatusPending, time.Now().Add(time.Hour))

			n, sig := signedNotification("order-1", tc.transactionStatus, tc.fraudStatus, "25000.00")
			_, err := f.service.ApplyWebhook(ctx, n, sig)
			require.NoError(t, err)

			order, err := f.repo.GetByID(ctx, "order-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, order.Status)
			assert.Equal(t, tc.transactionStatus, order.PaymentStatus)
		})

		t.Run("replay "+name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, services.CreateAfterPayment)

			n, sig := signedNotification("order-1", tc.transactionStatus, tc.fraudStatus, "25000.00")
			_, err := f.service.ApplyWebhook(ctx, n, sig)
			require.NoError(t, err)

			order, _, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
			require.NoError(t, err)
			assert.Equal(t, tc.want, order.Status)
			assert.Equal(t, tc.transactionStatus, order.PaymentStatus)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "done", models.StatusCompleted, time.Now().Add(time.Hour))
	f.seed(t, "open", models.StatusPending, time.Now().Add(time.Hour))
	f.seed(t, "late", models.StatusPaid, time.Now().Add(-time.Minute))
	f.seed(t, "cooking", models.StatusCooking, time.Now().Add(time.Hour))

	var transitionErr *services.InvalidTransitionError

	_, err := f.service.CancelOrder(ctx, "done")
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.StatusCompleted, transitionErr.From)

	order, err := f.service.CancelOrder(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, order.Status)
	stored, err := f.repo.GetByID(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, stored.Status)

	_, err = f.service.CancelOrder(ctx, "late")
	require.ErrorAs(t, err, &transitionErr)
	assert.Contains(t, transitionErr.Reason, "pickup time")

	_, err = f.service.CancelOrder(ctx, "cooking")
	assert.ErrorAs(t, err, &transitionErr)

	// already canceled orders stay canceled
	_, err = f.service.CancelOrder(ctx, "open")
	assert.ErrorAs(t, err, &transitionErr)

	var notFound *services.NotFoundError
	_, err = f.service.CancelOrder(ctx, "missing")
	assert.ErrorAs(t, err, &notFound)
}

func TestAdvanceStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "paid", models.StatusPaid, time.Now().Add(time.Hour))
	f.seed(t, "pending", models.StatusPending, time.Now().Add(time.Hour))

	for _, to := range []models.OrderStatus{models.StatusReceived, models.StatusCooking, models.StatusReady, models.StatusCompleted} {
		order, err := f.service.AdvanceStatus(ctx, "paid", to)
		require.NoError(t, err)
		assert.Equal(t, to, order.Status)
	}

	var transitionErr *services.InvalidTransitionError
	_, err := f.service.AdvanceStatus(ctx, "paid", models.StatusCanceled)
	assert.ErrorAs(t, err, &transitionErr)

	_, err = f.service.AdvanceStatus(ctx, "pending", models.StatusCooking)
	require.ErrorAs(t, err, &transitionErr)
	assert.Contains(t, transitionErr.Reason, "payment")

	var validationErr *services.ValidationError
	_, err = f.service.AdvanceStatus(ctx, "pending", models.StatusPaid)
	assert.ErrorAs(t, err, &validationErr)
	_, err = f.service.AdvanceStatus(ctx, "pending", "shipped")
	assert.ErrorAs(t, err, &validationErr)
}

func TestValidatePickup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "ready1", models.StatusReady, time.Now())
	f.seed(t, "cook1", models.StatusCooking, time.Now())

	order, err := f.service.ValidatePickup(ctx, "codeready1")
	require.NoError(t, err)
	assert.Equal(t, "ready1", order.ID)

	var transitionErr *services.InvalidTransitionError
	_, err = f.service.ValidatePickup(ctx, "CODECOOK1")
	assert.ErrorAs(t, err, &transitionErr)

	var notFound *services.NotFoundError
	_, err = f.service.ValidatePickup(ctx, "NOPE")
	assert.ErrorAs(t, err, &notFound)

	var validationErr *services.ValidationError
	_, err = f.service.ValidatePickup(ctx, "  ")
	assert.ErrorAs(t, err, &validationErr)
}

func TestEnsureOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	var notFound *services.NotFoundError
	result, err := f.service.EnsureOrder(ctx, "order-1", nil)
	require.ErrorAs(t, err, &notFound)
	assert.False(t, result.Exists)

	details := sampleDetails()
	result, err = f.service.EnsureOrder(ctx, "order-1", &details)
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.Equal(t, models.StatusPaid, result.Status)

	result, err = f.service.EnsureOrder(ctx, "order-1", nil)
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.Equal(t, models.StatusPaid, result.Status)
}

func TestListOrdersBySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	_, _, err := f.service.CreateOrder(ctx, "order-1", sampleDetails())
	require.NoError(t, err)
	other := sampleDetails()
	other.UserSessionID = "session_other"
	_, _, err = f.service.CreateOrder(ctx, "order-2", other)
	require.NoError(t, err)

	orders, err := f.service.ListOrdersBySession(ctx, "session_abc")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "order-1", orders[0].ID)

	var validationErr *services.ValidationError
	_, err = f.service.ListOrdersBySession(ctx, "")
	assert.ErrorAs(t, err, &validationErr)
}

func checkoutRequest(orderID string) services.CheckoutRequest {
	return services.CheckoutRequest{
		OrderID: orderID,
		Amount:  25000,
		CustomerDetails: services.CustomerDetails{
			FirstName: "Sari",
			Email:     "sari@example.com",
			Phone:     "081234567890",
		},
		Items: []services.CheckoutItem{
			{ID: "menu-1", Name: "Tteokbokki", Price: 15000, Quantity: 1, AddOns: map[string]any{"spicyLevel": "3"}},
			{ID: "menu-2", Name: "Iced Tea", Price: 5000, Quantity: 2},
		},
		OutletID:        "outlet-1",
		OutletName:      "Kedai Pusat",
		BuyerName:       "Sari",
		PhoneNumber:     "081234567890",
		Email:           "sari@example.com",
		PickupTime:      time.Now().Add(time.Hour),
		UserSessionID:   "session_abc",
		CallbackBaseURL: "https://kedai.example.com/",
	}
}

func TestCreateTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	f.gateway.On("CreateTransaction", ctx, mock.MatchedBy(func(req payment.TransactionRequest) bool {
		return req.OrderID == "order-1" &&
			req.Amount == 25000 &&
			len(req.Items) == 2 &&
			req.Callbacks.Finish == "https://kedai.example.com/orders/order-1" &&
			req.Callbacks.Error == "https://kedai.example.com/payment/failed?order_id=order-1"
	})).Return(&payment.Transaction{Token: "tok-1", RedirectURL: "https://pay.example.com/tok-1"}, nil).Once()

	result, err := f.service.CreateTransaction(ctx, checkoutRequest("order-1"))
	require.NoError(t, err)
	assert.Equal(t, "tok-1", result.Token)
	assert.Equal(t, "order-1", result.OrderID)
	f.gateway.AssertExpectations(t)

	// no durable row before payment
	_, err = f.repo.GetByID(ctx, "order-1")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}

func TestCreateTransaction_AmountMismatch(t *testing.T) {
	f := newFixture(t, services.CreateAfterPayment)

	req := checkoutRequest("order-1")
	req.Amount = 30000
	_, err := f.service.CreateTransaction(context.Background(), req)
	var validationErr *services.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	f.gateway.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestCreateTransaction_AtCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAtCheckout)

	f.gateway.On("CreateTransaction", ctx, mock.Anything).
		Return(&payment.Transaction{Token: "tok-1"}, nil).Once()

	_, err := f.service.CreateTransaction(ctx, checkoutRequest("order-1"))
	require.NoError(t, err)

	order, err := f.repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, payment.TxPending, order.PaymentStatus)
	assert.Equal(t, "tok-1", order.PaymentToken)
	assert.Len(t, order.Items, 2)

	// the notification then advances the pending row
	n, sig := signedNotification("order-1", payment.TxSettlement, "", "25000.00")
	_, err = f.service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)
	order, err = f.repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.Status)
}

func TestCreateTransaction_GatewayFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAtCheckout)

	gatewayErr := &payment.GatewayError{Op: "create transaction", OrderID: "order-1", StatusCode: 500, Err: errors.New("upstream down")}
	f.gateway.On("CreateTransaction", ctx, mock.Anything).Return(nil, gatewayErr).Once()

	_, err := f.service.CreateTransaction(ctx, checkoutRequest("order-1"))
	var ge *payment.GatewayError
	require.ErrorAs(t, err, &ge)

	_, err = f.repo.GetByID(ctx, "order-1")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}

func TestPaymentStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.seed(t, "order-1", models.StatusPending, time.Now().Add(time.Hour))

	f.gateway.On("QueryStatus", ctx, "order-1").Return(&payment.TransactionStatus{
		OrderID:           "order-1",
		TransactionStatus: payment.TxSettlement,
		GrossAmount:       "25000.00",
	}, nil).Once()
	f.gateway.On("QueryStatus", ctx, "order-2").
		Return(nil, &payment.GatewayError{Op: "query status", OrderID: "order-2", StatusCode: 404, Err: payment.ErrTransactionNotFound}).Once()

	result, err := f.service.PaymentStatus(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, result.GatewayStatus)
	assert.True(t, result.OrderExists)
	assert.Equal(t, models.StatusPaid, result.OrderStatus)

	result, err = f.service.PaymentStatus(ctx, "order-2")
	require.NoError(t, err)
	assert.Nil(t, result.GatewayStatus)
	assert.False(t, result.OrderExists)
}

func TestPaymentDebug(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)

	n, sig := signedNotification("order-1", payment.TxPending, "", "25000.00")
	_, err := f.service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)

	debug, err := f.service.PaymentDebug(ctx, "order-1")
	require.NoError(t, err)
	assert.Nil(t, debug.Order)
	assert.Len(t, debug.Webhooks, 1)

	var notFound *services.NotFoundError
	_, err = f.service.PaymentDebug(ctx, "order-9")
	assert.ErrorAs(t, err, &notFound)
}

func TestCheckoutEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, services.CreateAfterPayment)
	f.gateway.On("CreateTransaction", ctx, mock.Anything).
		Return(&payment.Transaction{Token: "tok-O1", RedirectURL: "https://pay.example.com/tok-O1"}, nil).Once()

	checkout, err := f.service.CreateTransaction(ctx, checkoutRequest("O1"))
	require.NoError(t, err)

	// the gateway's notification outruns the buyer
	n, sig := signedNotification("O1", payment.TxSettlement, payment.FraudAccept, "25000.00")
	_, err = f.service.ApplyWebhook(ctx, n, sig)
	require.NoError(t, err)

	details := sampleDetails()
	details.PaymentToken = checkout.Token
	_, _, err = f.service.CreateOrder(ctx, "O1", details)
	require.NoError(t, err)

	order, err := f.repo.GetByID(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, order.Status)
	assert.Equal(t, "settlement", order.PaymentStatus)
	assert.Equal(t, int64(25000), order.TotalAmount)
	assert.Len(t, order.Items, len(details.Items))
}
