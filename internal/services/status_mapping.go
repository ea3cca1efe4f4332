package services

import (
	"kedai/internal/models"
	"kedai/internal/payment"
)

// MapGatewayStatus maps a gateway transaction/fraud status pair to an order status.
//
//	settlement               -> paid
//	capture + accept         -> paid
//	capture + anything else  -> pending
//	pending                  -> pending
//	deny, cancel, expire     -> canceled
func MapGatewayStatus(transactionStatus, fraudStatus string) models.OrderStatus {
	switch transactionStatus {
	case payment.TxSettlement:
		return models.StatusPaid
	case payment.TxCapture:
		if fraudStatus == payment.FraudAccept {
			return models.StatusPaid
		}
		return models.StatusPending
	case payment.TxDeny, payment.TxCancel, payment.TxExpire, payment.TxFailure:
		return models.StatusCanceled
	default:
		return models.StatusPending
	}
}

// nextStatus applies a mapped gateway status to an existing order. Terminal orders
// never change, a pending mapping is a no-op, a paid mapping only advances pending
// orders and a canceled mapping cancels anything still open.
func nextStatus(current, mapped models.OrderStatus) models.OrderStatus {
	if current.IsTerminal() {
		return current
	}
	switch mapped {
	case models.StatusPaid:
		if current == models.StatusPending {
			return models.StatusPaid
		}
	case models.StatusCanceled:
		return models.StatusCanceled
	}
	return current
}
