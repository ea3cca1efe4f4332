package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

// MidtransConfig holds the credentials for the Midtrans gateway.
type MidtransConfig struct {
	ServerKey  string
	Production bool
}

// MidtransGateway implements Gateway with Midtrans Snap (hosted payment page) and
// the Core API (status queries).
type MidtransGateway struct {
	snap snap.Client
	core coreapi.Client
}

// NewMidtransGateway creates a gateway for the configured environment.
func NewMidtransGateway(cfg MidtransConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	g := &MidtransGateway{}
	g.snap.New(cfg.ServerKey, env)
	g.core.New(cfg.ServerKey, env)
	return g
}

// CreateTransaction opens a Snap transaction and returns its token and redirect URL.
func (g *MidtransGateway) CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "create transaction", OrderID: req.OrderID, Err: err}
	}

	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, midtrans.ItemDetails{
			ID:    it.ID,
			Name:  it.Name,
			Price: it.Price,
			Qty:   int32(it.Quantity),
		})
	}
	address := &midtrans.CustomerAddress{
		FName:   req.Customer.FirstName,
		LName:   req.Customer.LastName,
		Phone:   req.Customer.Phone,
		Address: req.Customer.Address,
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		CreditCard: &snap.CreditCardDetails{Secure: true},
		CustomerDetail: &midtrans.CustomerDetails{
			FName:    req.Customer.FirstName,
			LName:    req.Customer.LastName,
			Email:    req.Customer.Email,
			Phone:    req.Customer.Phone,
			BillAddr: address,
			ShipAddr: address,
		},
		Items: &items,
	}
	if req.Callbacks.Finish != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: req.Callbacks.Finish}
	}

	resp, mErr := g.snap.CreateTransaction(snapReq)
	if mErr != nil {
		return nil, &GatewayError{Op: "create transaction", OrderID: req.OrderID, StatusCode: mErr.StatusCode, Err: mErr}
	}
	if resp == nil || resp.Token == "" {
		return nil, &GatewayError{Op: "create transaction", OrderID: req.OrderID, Err: fmt.Errorf("empty transaction token")}
	}
	return &Transaction{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// QueryStatus fetches the current transaction status for an order.
func (g *MidtransGateway) QueryStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "query status", OrderID: orderID, Err: err}
	}

	resp, mErr := g.core.CheckTransaction(orderID)
	if mErr != nil {
		if mErr.StatusCode == http.StatusNotFound {
			return nil, &GatewayError{Op: "query status", OrderID: orderID, StatusCode: mErr.StatusCode, Err: ErrTransactionNotFound}
		}
		return nil, &GatewayError{Op: "query status", OrderID: orderID, StatusCode: mErr.StatusCode, Err: mErr}
	}
	if resp == nil || resp.StatusCode == "404" {
		return nil, &GatewayError{Op: "query status", OrderID: orderID, StatusCode: http.StatusNotFound, Err: ErrTransactionNotFound}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, &GatewayError{Op: "query status", OrderID: orderID, Err: fmt.Errorf("encode status payload: %w", err)}
	}
	return &TransactionStatus{
		OrderID:           orderID,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		StatusCode:        resp.StatusCode,
		GrossAmount:       resp.GrossAmount,
		PaymentType:       resp.PaymentType,
		RawPayload:        raw,
	}, nil
}
