package payment

import (
	"encoding/json"
	"fmt"
)

// Notification is the body of an asynchronous payment notification.
type Notification struct {
	OrderID           string      `json:"order_id" validate:"required,orderid"`
	TransactionStatus string      `json:"transaction_status" validate:"required"`
	FraudStatus       string      `json:"fraud_status"`
	StatusCode        string      `json:"status_code"`
	GrossAmount       json.Number `json:"gross_amount"`
	PaymentType       string      `json:"payment_type"`
	SignatureKey      string      `json:"signature_key,omitempty"`
	TransactionID     string      `json:"transaction_id,omitempty"`
	TransactionTime   string      `json:"transaction_time,omitempty"`

	// Raw is the body exactly as received.
	Raw json.RawMessage `json:"-"`
}

// ParseNotification decodes a notification body and keeps the raw bytes.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	n.Raw = append(json.RawMessage(nil), body...)
	return n, nil
}

// Status converts the notification to the gateway status shape.
func (n Notification) Status() TransactionStatus {
	return TransactionStatus{
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		StatusCode:        n.StatusCode,
		GrossAmount:       n.GrossAmount.String(),
		PaymentType:       n.PaymentType,
		RawPayload:        n.Raw,
	}
}
