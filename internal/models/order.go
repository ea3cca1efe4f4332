package models

import "time"

// MaxOrderIDLength is the longest order reference the payment gateway accepts. Every
// column holding an order ID is sized to it.
const MaxOrderIDLength = 50

// Order is a buyer's pickup order. The ID is generated by the storefront before
// payment and doubles as the gateway's order reference.
type Order struct {
	ID             string      `json:"id" gorm:"primaryKey;type:varchar(50)"`
	OutletID       string      `json:"outlet_id" gorm:"type:varchar(64);index"`
	OutletName     string      `json:"outlet_name" gorm:"type:varchar(255)"`
	TotalAmount    int64       `json:"total_amount"`
	BuyerName      string      `json:"buyer_name" gorm:"type:varchar(255)"`
	PhoneNumber    string      `json:"phone_number" gorm:"type:varchar(32)"`
	Email          string      `json:"email" gorm:"type:varchar(255)"`
	PickupTime     time.Time   `json:"pickup_time"`
	PaymentToken   string      `json:"payment_token,omitempty" gorm:"type:varchar(255)"`
	Status         OrderStatus `json:"status" gorm:"type:varchar(20);index;not null"`
	PaymentStatus  string      `json:"payment_status" gorm:"type:varchar(32)"` // raw gateway transaction status
	ValidationCode string      `json:"validation_code,omitempty" gorm:"type:varchar(16);uniqueIndex"`
	UserSessionID  string      `json:"-" gorm:"type:varchar(128);index"`
	Items          []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderItem is one cart line of an order.
type OrderItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	OrderID   string    `json:"order_id" gorm:"type:varchar(50);index;not null"`
	MenuID    string    `json:"menu_id" gorm:"type:varchar(64)"`
	Name      string    `json:"name" gorm:"type:varchar(255)"`
	Price     int64     `json:"price"` // unit price at the time of order
	Quantity  int       `json:"quantity"`
	AddOns    []AddOn   `json:"add_ons,omitempty" gorm:"type:text;serializer:json"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingWebhook is a payment notification kept for replay. Rows are written when
// the notification arrives before its order exists and are consumed once, when the
// order is finally created.
type PendingWebhook struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	OrderID           string     `json:"order_id" gorm:"type:varchar(50);index;not null"`
	TransactionStatus string     `json:"transaction_status" gorm:"type:varchar(32)"`
	FraudStatus       string     `json:"fraud_status" gorm:"type:varchar(32)"`
	PaymentType       string     `json:"payment_type" gorm:"type:varchar(64)"`
	StatusCode        string     `json:"status_code" gorm:"type:varchar(8)"`
	GrossAmount       string     `json:"gross_amount" gorm:"type:varchar(32)"`
	RawPayload        string     `json:"raw_payload" gorm:"type:text"`
	Processed         bool       `json:"processed" gorm:"default:false;index"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName keeps the table name used by the storefront database.
func (PendingWebhook) TableName() string {
	return "payment_webhooks"
}
