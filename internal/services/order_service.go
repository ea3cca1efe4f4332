package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"kedai/internal/models"
	"kedai/internal/payment"
	"kedai/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreationPolicy decides when the durable order row is written.
type CreationPolicy string

const (
	// CreateAfterPayment writes the order only once the buyer returns from a
	// successful payment (or a notification/poll confirms it).
	CreateAfterPayment CreationPolicy = "after_payment"
	// CreateAtCheckout writes a pending order as soon as the gateway issues a token.
	CreateAtCheckout CreationPolicy = "at_checkout"
)

// ParseCreationPolicy returns the policy named by s, defaulting to CreateAfterPayment.
func ParseCreationPolicy(s string) (CreationPolicy, error) {
	switch CreationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CreateAfterPayment:
		return CreateAfterPayment, nil
	case CreateAtCheckout:
		return CreateAtCheckout, nil
	default:
		return "", fmt.Errorf("unknown order creation policy %q", s)
	}
}

// OrderService reconciles buyer orders with the payment gateway.
type OrderService struct {
	orderRepo repositories.OrderRepository
	gateway   payment.Gateway
	verifier  *payment.SignatureVerifier
	publisher EventPublisher
	cache     repositories.StatusCache
	policy    CreationPolicy
	validate  *validator.Validate
	now       func() time.Time
}

// NewOrderService creates a new OrderService. publisher and cache may be nil.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	gateway payment.Gateway,
	verifier *payment.SignatureVerifier,
	publisher EventPublisher,
	cache repositories.StatusCache,
	policy CreationPolicy,
) *OrderService {
	if cache == nil {
		cache = repositories.NoopStatusCache{}
	}
	if policy == "" {
		policy = CreateAfterPayment
	}
	return &OrderService{
		orderRepo: orderRepo,
		gateway:   gateway,
		verifier:  verifier,
		publisher: publisher,
		cache:     cache,
		policy:    policy,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// CustomerDetails is the buyer as entered at checkout.
type CustomerDetails struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
}

// CheckoutItem is one cart line at checkout.
type CheckoutItem struct {
	ID       string         `json:"id" validate:"required"`
	Name     string         `json:"name" validate:"required"`
	Price    int64          `json:"price" validate:"gte=0"`
	Quantity int            `json:"quantity" validate:"gt=0"`
	AddOns   map[string]any `json:"add_ons,omitempty"`
}

// CheckoutRequest asks for a hosted-payment transaction.
type CheckoutRequest struct {
	OrderID         string          `json:"orderId" validate:"required,orderid"`
	Amount          int64           `json:"amount" validate:"gt=0"`
	CustomerDetails CustomerDetails `json:"customerDetails"`
	Items           []CheckoutItem  `json:"items" validate:"required,min=1,dive"`
	OutletID        string          `json:"outletId"`
	OutletName      string          `json:"outletName"`
	BuyerName       string          `json:"buyerName"`
	PhoneNumber     string          `json:"phoneNumber"`
	Email           string          `json:"email"`
	PickupTime      time.Time       `json:"pickupTime"`
	UserSessionID   string          `json:"userSessionId"`

	// CallbackBaseURL is the storefront origin the gateway redirects back to.
	CallbackBaseURL string `json:"-"`
}

// CheckoutResult is the gateway's token for a checkout.
type CheckoutResult struct {
	OrderID     string `json:"orderId"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirectUrl"`
}

// OrderItemDetails is one cart line submitted when an order is materialized.
type OrderItemDetails struct {
	MenuID   string         `json:"menu_id" validate:"required"`
	Name     string         `json:"name" validate:"required"`
	Price    int64          `json:"price" validate:"gte=0"`
	Quantity int            `json:"quantity" validate:"gt=0"`
	AddOns   map[string]any `json:"add_ons,omitempty"`
}

// OrderDetails is the order content the storefront submits after payment.
type OrderDetails struct {
	ID            string             `json:"id,omitempty"`
	OutletID      string             `json:"outlet_id" validate:"required"`
	OutletName    string             `json:"outlet_name"`
	TotalAmount   int64              `json:"total_amount" validate:"gt=0"`
	PaymentToken  string             `json:"payment_token"`
	BuyerName     string             `json:"buyer_name" validate:"required"`
	PhoneNumber   string             `json:"phone_number" validate:"required"`
	Email         string             `json:"email" validate:"omitempty,email"`
	PickupTime    time.Time          `json:"pickup_time"`
	UserSessionID string             `json:"user_session_id"`
	Items         []OrderItemDetails `json:"items" validate:"required,min=1,dive"`
}

// EnsureResult reports whether an order exists and its status.
type EnsureResult struct {
	OrderID string             `json:"orderId"`
	Exists  bool               `json:"exists"`
	Status  models.OrderStatus `json:"status,omitempty"`
	Order   *models.Order      `json:"-"`
}

// CreateTransaction asks the gateway for a payment token. Nothing is persisted when
// the gateway call fails; with CreateAtCheckout a pending order is written afterwards.
func (s *OrderService) CreateTransaction(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	var sum int64
	for _, item := range req.Items {
		sum += item.Price * int64(item.Quantity)
	}
	if sum != req.Amount {
		return nil, &ValidationError{
			Message: fmt.Sprintf("amount %d does not match item total %d", req.Amount, sum),
			Fields:  map[string]string{"amount": "must equal the sum of price x quantity"},
		}
	}

	var pending *OrderDetails
	if s.policy == CreateAtCheckout {
		details := checkoutOrderDetails(req, "")
		if err := s.validate.Struct(details); err != nil {
			return nil, validationError(err)
		}
		pending = &details
	}

	items := make([]payment.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, payment.Item{ID: item.ID, Name: item.Name, Price: item.Price, Quantity: item.Quantity})
	}
	txReq := payment.TransactionRequest{
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Customer: payment.Customer{
			FirstName: req.CustomerDetails.FirstName,
			LastName:  req.CustomerDetails.LastName,
			Email:     req.CustomerDetails.Email,
			Phone:     req.CustomerDetails.Phone,
		},
		Items:     items,
		Callbacks: callbackURLs(req.CallbackBaseURL, req.OrderID),
	}

	tx, err := s.gateway.CreateTransaction(ctx, txReq)
	if err != nil {
		log.Printf("Error creating payment transaction for order %s: %v", req.OrderID, err)
		return nil, err
	}

	if pending != nil {
		pending.PaymentToken = tx.Token
		if _, _, err := s.materialize(ctx, req.OrderID, *pending, models.StatusPending, payment.TxPending); err != nil {
			return nil, err
		}
	}

	return &CheckoutResult{OrderID: req.OrderID, Token: tx.Token, RedirectURL: tx.RedirectURL}, nil
}

func callbackURLs(base, orderID string) payment.Callbacks {
	if base == "" {
		return payment.Callbacks{}
	}
	base = strings.TrimRight(base, "/")
	orderPage := base + "/orders/" + url.PathEscape(orderID)
	return payment.Callbacks{
		Finish:  orderPage,
		Pending: orderPage,
		Error:   base + "/payment/failed?order_id=" + url.QueryEscape(orderID),
	}
}

func checkoutOrderDetails(req CheckoutRequest, token string) OrderDetails {
	buyer := req.BuyerName
	if buyer == "" {
		buyer = strings.TrimSpace(req.CustomerDetails.FirstName + " " + req.CustomerDetails.LastName)
	}
	phone := req.PhoneNumber
	if phone == "" {
		phone = req.CustomerDetails.Phone
	}
	email := req.Email
	if email == "" {
		email = req.CustomerDetails.Email
	}
	details := OrderDetails{
		ID:            req.OrderID,
		OutletID:      req.OutletID,
		OutletName:    req.OutletName,
		TotalAmount:   req.Amount,
		PaymentToken:  token,
		BuyerName:     buyer,
		PhoneNumber:   phone,
		Email:         email,
		PickupTime:    req.PickupTime,
		UserSessionID: req.UserSessionID,
	}
	for _, item := range req.Items {
		details.Items = append(details.Items, OrderItemDetails{
			MenuID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			AddOns:   item.AddOns,
		})
	}
	return details
}

// CreateOrder materializes an order after the buyer completed payment. It is
// idempotent: an existing order is returned unchanged with existed=true.
func (s *OrderService) CreateOrder(ctx context.Context, orderID string, details OrderDetails) (*models.Order, bool, error) {
	if !ValidOrderID(orderID) {
		return nil, false, &ValidationError{Message: "invalid order id", Fields: map[string]string{"orderId": orderID}}
	}
	return s.materialize(ctx, orderID, details, models.StatusPaid, payment.TxSettlement)
}

// EnsureOrder reports the status of an existing order, or creates it when details
// are supplied.
func (s *OrderService) EnsureOrder(ctx context.Context, orderID string, details *OrderDetails) (EnsureResult, error) {
	if !ValidOrderID(orderID) {
		return EnsureResult{}, &ValidationError{Message: "invalid order id", Fields: map[string]string{"orderId": orderID}}
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err == nil {
		return EnsureResult{OrderID: orderID, Exists: true, Status: order.Status, Order: order}, nil
	}
	if !errors.Is(err, repositories.ErrOrderNotFound) {
		log.Printf("Error loading order %s: %v", orderID, err)
		return EnsureResult{}, &StoreError{Op: "get order", OrderID: orderID, Err: err}
	}
	if details == nil {
		return EnsureResult{OrderID: orderID}, &NotFoundError{OrderID: orderID}
	}

	order, _, err = s.CreateOrder(ctx, orderID, *details)
	if err != nil {
		return EnsureResult{}, err
	}
	return EnsureResult{OrderID: orderID, Exists: true, Status: order.Status, Order: order}, nil
}

// materialize inserts the order and its items, then replays any notifications that
// arrived before it, all in one transaction.
func (s *OrderService) materialize(ctx context.Context, orderID string, details OrderDetails, defaultStatus models.OrderStatus, defaultPaymentStatus string) (*models.Order, bool, error) {
	if err := s.validate.Struct(details); err != nil {
		return nil, false, validationError(err)
	}
	if details.ID != "" && details.ID != orderID {
		return nil, false, &ValidationError{
			Message: fmt.Sprintf("order details id %s does not match order %s", details.ID, orderID),
			Fields:  map[string]string{"id": "must match orderId"},
		}
	}

	order, err := s.newOrder(orderID, details, defaultStatus, defaultPaymentStatus)
	if err != nil {
		return nil, false, err
	}

	var (
		existing *models.Order
		replayed bool
	)
	err = s.orderRepo.Transaction(ctx, func(repo repositories.OrderRepository) error {
		found, err := repo.GetByID(ctx, orderID)
		if err == nil {
			existing = found
			return nil
		}
		if !errors.Is(err, repositories.ErrOrderNotFound) {
			return err
		}

		pending, err := repo.UnprocessedWebhooks(ctx, orderID)
		if err != nil {
			return err
		}
		if n := len(pending); n > 0 {
			latest := pending[n-1]
			order.Status = MapGatewayStatus(latest.TransactionStatus, latest.FraudStatus)
			order.PaymentStatus = latest.TransactionStatus
			replayed = true
		}

		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		if replayed {
			return repo.MarkWebhooksProcessed(ctx, orderID)
		}
		return nil
	})
	if errors.Is(err, repositories.ErrDuplicateOrder) {
		// lost the insert race to a concurrent create
		existing, err = s.orderRepo.GetByID(ctx, orderID)
	}
	if err != nil {
		log.Printf("Error creating order %s: %v", orderID, err)
		return nil, false, &StoreError{Op: "create order", OrderID: orderID, Err: err}
	}

	if existing != nil {
		if existing.Status == models.StatusPending {
			s.requestReconcile(ctx, orderID, "order still pending")
		}
		return existing, true, nil
	}

	log.Printf("Order %s created with status %s (payment %s)", orderID, order.Status, order.PaymentStatus)
	s.cacheStatus(ctx, order)
	s.publishOrderEvent(ctx, EventOrderCreated, order, "")
	switch {
	case defaultStatus == models.StatusPending && !replayed:
		// written at checkout, the buyer has not paid yet
	case order.Status == models.StatusPending:
		s.requestReconcile(ctx, orderID, "payment still pending")
	case !replayed:
		s.requestReconcile(ctx, orderID, "payment asserted by client")
	}
	return order, false, nil
}

func (s *OrderService) newOrder(orderID string, details OrderDetails, status models.OrderStatus, paymentStatus string) (*models.Order, error) {
	var total int64
	items := make([]models.OrderItem, 0, len(details.Items))
	for i, item := range details.Items {
		addOns := models.ParseAddOns(item.AddOns)
		for _, a := range addOns {
			if err := a.Validate(); err != nil {
				return nil, &ValidationError{
					Message: err.Error(),
					Fields:  map[string]string{fmt.Sprintf("items[%d].add_ons", i): err.Error()},
				}
			}
		}
		total += item.Price * int64(item.Quantity)
		items = append(items, models.OrderItem{
			OrderID:  orderID,
			MenuID:   item.MenuID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			AddOns:   addOns,
		})
	}
	if total != details.TotalAmount {
		return nil, &ValidationError{
			Message: fmt.Sprintf("total_amount %d does not match item total %d", details.TotalAmount, total),
			Fields:  map[string]string{"total_amount": "must equal the sum of price x quantity"},
		}
	}

	session := details.UserSessionID
	if session == "" {
		session = "session_" + uuid.NewString()
	}
	now := s.now()
	return &models.Order{
		ID:             orderID,
		OutletID:       details.OutletID,
		OutletName:     details.OutletName,
		TotalAmount:    details.TotalAmount,
		BuyerName:      details.BuyerName,
		PhoneNumber:    details.PhoneNumber,
		Email:          details.Email,
		PickupTime:     details.PickupTime,
		PaymentToken:   details.PaymentToken,
		Status:         status,
		PaymentStatus:  paymentStatus,
		ValidationCode: newValidationCode(),
		UserSessionID:  session,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// newValidationCode returns the 8-character code shown to the buyer at pickup.
func newValidationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// GetOrder retrieves a single order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: orderID}
	}
	if err != nil {
		log.Printf("Error loading order %s: %v", orderID, err)
		return nil, &StoreError{Op: "get order", OrderID: orderID, Err: err}
	}
	return order, nil
}

// ListOrdersBySession returns the orders placed from one browser session.
func (s *OrderService) ListOrdersBySession(ctx context.Context, sessionID string) ([]models.Order, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &ValidationError{Message: "session id is required", Fields: map[string]string{"sessionId": "required"}}
	}
	orders, err := s.orderRepo.ListBySession(ctx, sessionID)
	if err != nil {
		log.Printf("Error listing orders for session %s: %v", sessionID, err)
		return nil, &StoreError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// CancelOrder cancels a pending or paid order whose pickup time has not passed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.StatusCanceled, func(order *models.Order) string {
		if !order.Status.IsCancelable() {
			return "only pending or paid orders can be canceled"
		}
		if !order.PickupTime.IsZero() && !s.now().Before(order.PickupTime) {
			return "pickup time has passed"
		}
		return ""
	})
}

// AdvanceStatus moves an order along the kitchen workflow. paid is only ever set
// from the payment gateway.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID string, to models.OrderStatus) (*models.Order, error) {
	if !to.IsValid() || to == models.StatusPending || to == models.StatusPaid {
		return nil, &ValidationError{
			Message: fmt.Sprintf("status %q cannot be set by staff", to),
			Fields:  map[string]string{"status": "must be one of received, cooking, ready, completed, canceled"},
		}
	}
	return s.transition(ctx, orderID, to, func(order *models.Order) string {
		if order.Status == models.StatusPending && to != models.StatusCanceled {
			return "payment has not been confirmed"
		}
		if !models.CanTransition(order.Status, to) {
			return "transition not allowed"
		}
		return ""
	})
}

// transition applies a status change guarded by check, which returns a non-empty
// reason to refuse it.
func (s *OrderService) transition(ctx context.Context, orderID string, to models.OrderStatus, check func(*models.Order) string) (*models.Order, error) {
	var (
		updated  *models.Order
		previous models.OrderStatus
		refusal  *InvalidTransitionError
	)
	err := s.orderRepo.Transaction(ctx, func(repo repositories.OrderRepository) error {
		order, err := repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if reason := check(order); reason != "" {
			refusal = &InvalidTransitionError{OrderID: orderID, From: order.Status, To: to, Reason: reason}
			return refusal
		}
		if err := repo.UpdateStatus(ctx, orderID, to, ""); err != nil {
			return err
		}
		previous = order.Status
		order.Status = to
		order.UpdatedAt = s.now()
		updated = order
		return nil
	})
	if refusal != nil {
		return nil, refusal
	}
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: orderID}
	}
	if err != nil {
		log.Printf("Error updating order %s to %s: %v", orderID, to, err)
		return nil, &StoreError{Op: "update status", OrderID: orderID, Err: err}
	}

	log.Printf("Order %s moved from %s to %s", orderID, previous, to)
	s.cacheStatus(ctx, updated)
	s.publishOrderEvent(ctx, EventOrderStatusChanged, updated, previous)
	return updated, nil
}

// ValidatePickup looks up an order by the code the buyer shows at the counter.
// Only ready or completed orders validate.
func (s *OrderService) ValidatePickup(ctx context.Context, code string) (*models.Order, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, &ValidationError{Message: "Validation code is required", Fields: map[string]string{"validationCode": "required"}}
	}
	order, err := s.orderRepo.GetByValidationCode(ctx, code)
	if errors.Is(err, repositories.ErrOrderNotFound) {
		return nil, &NotFoundError{OrderID: code}
	}
	if err != nil {
		log.Printf("Error validating pickup code %s: %v", code, err)
		return nil, &StoreError{Op: "validate pickup", Err: err}
	}
	if order.Status != models.StatusReady && order.Status != models.StatusCompleted {
		return nil, &InvalidTransitionError{
			OrderID: order.ID,
			From:    order.Status,
			To:      models.StatusCompleted,
			Reason:  fmt.Sprintf("order cannot be validated, current status: %s", order.Status),
		}
	}
	return order, nil
}
