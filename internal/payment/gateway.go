package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Gateway transaction statuses.
const (
	TxAuthorize     = "authorize"
	TxCapture       = "capture"
	TxSettlement    = "settlement"
	TxPending       = "pending"
	TxDeny          = "deny"
	TxCancel        = "cancel"
	TxExpire        = "expire"
	TxFailure       = "failure"
	TxRefund        = "refund"
	TxPartialRefund = "partial_refund"
)

// Gateway fraud statuses.
const (
	FraudAccept    = "accept"
	FraudChallenge = "challenge"
	FraudDeny      = "deny"
)

// ErrTransactionNotFound is returned (wrapped in a GatewayError) when the provider
// has no record of an order, e.g. the payment page was never completed.
var ErrTransactionNotFound = errors.New("transaction not found")

// GatewayError reports a failure talking to the payment provider. It is safe to retry.
type GatewayError struct {
	Op         string
	OrderID    string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s for order %s failed: %v", e.Op, e.OrderID, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the provider does not know the transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

// Customer is the buyer as sent to the hosted payment page.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address,omitempty"`
}

// Item is one line shown on the hosted payment page.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Callbacks are the storefront pages the gateway redirects to.
type Callbacks struct {
	Finish  string
	Pending string
	Error   string
}

// TransactionRequest opens a hosted-payment transaction.
type TransactionRequest struct {
	OrderID   string
	Amount    int64
	Customer  Customer
	Items     []Item
	Callbacks Callbacks
}

// Transaction is the provider's answer to a TransactionRequest.
type Transaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionStatus is the provider's current view of a transaction.
type TransactionStatus struct {
	OrderID           string          `json:"order_id"`
	TransactionStatus string          `json:"transaction_status"`
	FraudStatus       string          `json:"fraud_status,omitempty"`
	StatusCode        string          `json:"status_code,omitempty"`
	GrossAmount       string          `json:"gross_amount,omitempty"`
	PaymentType       string          `json:"payment_type,omitempty"`
	RawPayload        json.RawMessage `json:"-"`
}

// IsTerminal reports whether the transaction will not change without buyer action.
func (s TransactionStatus) IsTerminal() bool {
	switch s.TransactionStatus {
	case TxSettlement, TxDeny, TxCancel, TxExpire, TxFailure, TxRefund, TxPartialRefund:
		return true
	case TxCapture:
		// a capture is only final once fraud screening accepted it
		return s.FraudStatus == FraudAccept
	default:
		return false
	}
}

// Gateway is the hosted payment provider.
type Gateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	QueryStatus(ctx context.Context, orderID string) (*TransactionStatus, error)
}
