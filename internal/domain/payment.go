/**
 * @description
 * This file defines the payment domain model. A payment is created PENDING
 * when a subscription owner initiates billing and is resolved terminally to
 * PAID or FAILED by the OnePipe webhook. The idempotency key is unique across
 * all payments ever created, which is what makes client retries safe.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses. PENDING is the only state a webhook callback can move
// away from; PAID and FAILED are terminal.
const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
	PaymentFailed  = "FAILED"
)

// Payment maps to the `payments` table.
type Payment struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	SubscriptionID   uuid.UUID  `json:"subscription_id"`
	Amount           int64      `json:"amount"` // in kobo
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference"`
	OnePipeReference *string    `json:"onepipe_reference,omitempty"`
	IdempotencyKey   string     `json:"-"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	OnePipeResponse  *string    `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// InitiatePaymentRequest is the DTO for incoming payment initiation requests.
// Bank account details are relayed to OnePipe so the invoice can be mandated
// against the customer's account; they are never persisted here.
type InitiatePaymentRequest struct {
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	BankAccount    BankAccount `json:"bank_account"`
}

// BankAccount carries the customer account OnePipe should invoice.
type BankAccount struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

// PaymentResponse is the API shape returned for payments. The account number
// is masked before it leaves the service.
type PaymentResponse struct {
	ID               uuid.UUID  `json:"id"`
	SubscriptionID   uuid.UUID  `json:"subscription_id"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// ToResponse converts a stored payment into its API shape.
func (p *Payment) ToResponse() PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		SubscriptionID:   p.SubscriptionID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           p.Status,
		PaymentReference: p.PaymentReference,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		PaidAt:           p.PaidAt,
	}
}
