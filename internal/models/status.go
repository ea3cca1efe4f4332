package models

// OrderStatus is the coarse lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusReceived  OrderStatus = "received"
	StatusCooking   OrderStatus = "cooking"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCanceled  OrderStatus = "canceled"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:   {StatusPaid: true, StatusReceived: true, StatusCanceled: true},
	StatusPaid:      {StatusReceived: true, StatusCanceled: true},
	StatusReceived:  {StatusCooking: true, StatusCanceled: true},
	StatusCooking:   {StatusReady: true, StatusCanceled: true},
	StatusReady:     {StatusCompleted: true, StatusCanceled: true},
	StatusCompleted: {},
	StatusCanceled:  {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// IsValid reports whether s is one of the known statuses.
func (s OrderStatus) IsValid() bool {
	_, ok := validNext[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// IsCancelable reports whether a buyer may still cancel.
func (s OrderStatus) IsCancelable() bool {
	return s == StatusPending || s == StatusPaid
}
