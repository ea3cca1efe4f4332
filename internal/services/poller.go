package services

import (
	"context"
	"log"
	"time"

	"kedai/internal/models"
	"kedai/internal/payment"
)

// RetryPolicy bounds how long a payment is polled for.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy polls for roughly a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     6,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

// Backoff returns the wait before the given retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	wait := p.InitialInterval
	for i := 1; i < retry; i++ {
		wait = time.Duration(float64(wait) * p.Multiplier)
		if p.MaxInterval > 0 && wait >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	if p.MaxInterval > 0 && wait > p.MaxInterval {
		return p.MaxInterval
	}
	return wait
}

// PollOutcome is the result of waiting for a payment.
type PollOutcome string

const (
	PollPaid          PollOutcome = "paid"
	PollFailed        PollOutcome = "failed"
	PollIndeterminate PollOutcome = "indeterminate" // still pending, check back later
)

// PollResult is the last status observed while polling.
type PollResult struct {
	OrderID  string                     `json:"orderId"`
	Outcome  PollOutcome                `json:"outcome"`
	Status   *payment.TransactionStatus `json:"gatewayStatus,omitempty"`
	Attempts int                        `json:"attempts"`
}

// StatusPoller queries the gateway until a payment settles or the retry budget runs out.
type StatusPoller struct {
	gateway payment.Gateway
	policy  RetryPolicy
}

// NewStatusPoller creates a poller. A zero MaxAttempts falls back to DefaultRetryPolicy.
func NewStatusPoller(gateway payment.Gateway, policy RetryPolicy) *StatusPoller {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &StatusPoller{gateway: gateway, policy: policy}
}

// Await polls the gateway for orderID. A transaction the gateway does not know yet
// counts as unpaid and gateway errors are retried; both end as PollIndeterminate once
// the attempts are used up. The only error returned is ctx's.
func (p *StatusPoller) Await(ctx context.Context, orderID string) (PollResult, error) {
	result := PollResult{OrderID: orderID, Outcome: PollIndeterminate}
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.policy.Backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
		result.Attempts = attempt

		status, err := p.gateway.QueryStatus(ctx, orderID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			if !payment.IsNotFound(err) {
				log.Printf("Polling payment status for order %s (attempt %d/%d) failed: %v", orderID, attempt, p.policy.MaxAttempts, err)
			}
			continue
		}
		if status.OrderID == "" {
			status.OrderID = orderID
		}
		result.Status = status
		if !status.IsTerminal() {
			continue
		}
		if MapGatewayStatus(status.TransactionStatus, status.FraudStatus) == models.StatusPaid {
			result.Outcome = PollPaid
		} else {
			result.Outcome = PollFailed
		}
		return result, nil
	}
	return result, nil
}
